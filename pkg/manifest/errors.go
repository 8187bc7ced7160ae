package manifest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse matches every *ParseError
	ErrParse = errors.New("malformed manifest")
	// ErrNotFound matches every *FileNotFoundError
	ErrNotFound = errors.New("manifest file not found")
	// ErrCycle matches every *CycleError
	ErrCycle = errors.New("manifest cycle")
)

// ParseError is returned when a manifest is not a list of strings.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// FileNotFoundError is returned when a referenced manifest (or, with leaf checks enabled,
// a referenced file) does not exist.
type FileNotFoundError struct {
	Path string
	// Manifest is the manifest referencing Path. It's empty for the root manifest.
	Manifest string
	Err      error
}

func (e *FileNotFoundError) Error() string {
	if e.Manifest != "" {
		return fmt.Sprintf("%s (referenced by %s) does not exist", e.Path, e.Manifest)
	}
	return fmt.Sprintf("%s does not exist", e.Path)
}

func (e *FileNotFoundError) Unwrap() error { return e.Err }

func (e *FileNotFoundError) Is(target error) bool { return target == ErrNotFound }

// CycleError is returned when a manifest references itself, directly or through other
// manifests. Chain lists the manifests from the first occurrence to the repeated one.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "manifest cycle detected: " + strings.Join(e.Chain, " -> ")
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }
