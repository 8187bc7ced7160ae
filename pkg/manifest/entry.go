package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EntryKind tells leaf files and nested manifests apart
type EntryKind int

const (
	Leaf EntryKind = iota
	Manifest
)

func (k EntryKind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Manifest:
		return "manifest"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// DefaultSuffixes lists the suffixes which mark an entry as a nested manifest unless
// configured otherwise.
var DefaultSuffixes = []string{".json"}

// Entry is a single line of a manifest
type Entry struct {
	// Raw is the entry as written in the manifest
	Raw string
	// Path is Raw resolved against the manifest's directory
	Path string
	Kind EntryKind
}

// Classify decides whether entry refers to a nested manifest based on its suffix.
// The check is case-sensitive.
func Classify(entry string, suffixes []string) EntryKind {
	for _, suffix := range suffixes {
		if strings.HasSuffix(entry, suffix) {
			return Manifest
		}
	}
	return Leaf
}

// Load reads the manifest at path and returns its entries in order. Files ending in
// .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &FileNotFoundError{Path: path, Err: err}
		}
		return nil, err
	}

	return parse(path, data)
}

func parse(path string, data []byte) ([]string, error) {
	var doc interface{}
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	items, ok := doc.([]interface{})
	if !ok {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("expected a list of strings but found %T", doc)}
	}

	lines := make([]string, len(items))
	for idx, item := range items {
		line, ok := item.(string)
		if !ok {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("entry #%d is a %T, not a string", idx, item)}
		}
		lines[idx] = line
	}

	return lines, nil
}

// Entries loads the manifest at path and classifies each entry.
func Entries(path string, suffixes []string) ([]Entry, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	lines, err := Load(path)
	if err != nil {
		return nil, err
	}

	return classifyLines(path, lines, suffixes), nil
}

func classifyLines(path string, lines []string, suffixes []string) []Entry {
	dir := filepath.Dir(path)
	entries := make([]Entry, len(lines))
	for idx, line := range lines {
		entries[idx] = Entry{
			Raw:  line,
			Path: resolveEntry(dir, line),
			Kind: Classify(line, suffixes),
		}
	}
	return entries
}

func resolveEntry(dir, entry string) string {
	entry = filepath.FromSlash(entry)
	if filepath.IsAbs(entry) {
		return filepath.Clean(entry)
	}
	return filepath.Join(dir, entry)
}
