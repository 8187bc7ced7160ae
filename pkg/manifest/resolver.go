package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Tree is the result of a resolution: the leaf files and every manifest that was read
// on the way.
type Tree struct {
	Files     *FileSet
	Manifests *FileSet
}

func newTree() *Tree {
	return &Tree{
		Files:     NewFileSet(),
		Manifests: NewFileSet(),
	}
}

func (t *Tree) union(other *Tree) {
	t.Files.Union(other.Files)
	t.Manifests.Union(other.Manifests)
}

// Resolver expands manifests. Parsed manifests are cached, so a Resolver should not
// outlive the build it was created for. It is safe for concurrent use.
type Resolver struct {
	suffixes    []string
	checkLeaves bool

	lock  sync.Mutex
	cache map[string][]string
}

// Option configures a Resolver
type Option func(*Resolver)

// WithSuffixes replaces the suffixes which mark nested manifests.
func WithSuffixes(suffixes ...string) Option {
	return func(r *Resolver) {
		r.suffixes = suffixes
	}
}

// WithLeafCheck makes the resolver fail with a *FileNotFoundError if a leaf file is
// missing. Without it, leaves are returned without touching the filesystem.
func WithLeafCheck(enabled bool) Option {
	return func(r *Resolver) {
		r.checkLeaves = enabled
	}
}

// NewResolver creates a resolver which treats ".json" entries as nested manifests.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		suffixes: DefaultSuffixes,
		cache:    make(map[string][]string),
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the set of absolute leaf paths the manifest at path references.
func (r *Resolver) Resolve(path string) (*FileSet, error) {
	tree, err := r.ResolveTree(path)
	if err != nil {
		return nil, err
	}
	return tree.Files, nil
}

// ResolveTree works like Resolve but also reports the manifests which were read.
func (r *Resolver) ResolveTree(path string) (*Tree, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	return r.resolve(path, "", nil)
}

func (r *Resolver) resolve(path, parent string, chain []string) (*Tree, error) {
	for idx, item := range chain {
		if item == path {
			cycle := make([]string, 0, len(chain)-idx+1)
			cycle = append(cycle, chain[idx:]...)
			return nil, &CycleError{Chain: append(cycle, path)}
		}
	}

	lines, err := r.load(path)
	if err != nil {
		var notFound *FileNotFoundError
		if errors.As(err, &notFound) {
			notFound.Manifest = parent
		}
		return nil, err
	}

	// full slice expression so that siblings never share the backing array
	chain = append(chain[:len(chain):len(chain)], path)

	tree := newTree()
	tree.Manifests.Add(path)
	for _, entry := range classifyLines(path, lines, r.suffixes) {
		if entry.Kind == Manifest {
			nested, err := r.resolve(entry.Path, path, chain)
			if err != nil {
				return nil, err
			}
			tree.union(nested)
			continue
		}

		if r.checkLeaves {
			_, err := os.Stat(entry.Path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil, &FileNotFoundError{Path: entry.Path, Manifest: path, Err: err}
				}
				return nil, err
			}
		}
		tree.Files.Add(entry.Path)
	}

	return tree, nil
}

func (r *Resolver) load(path string) ([]string, error) {
	r.lock.Lock()
	lines, cached := r.cache[path]
	r.lock.Unlock()
	if cached {
		return lines, nil
	}

	lines, err := Load(path)
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	r.cache[path] = lines
	r.lock.Unlock()
	return lines, nil
}

// Resolve expands the manifest at path with the default settings and returns the leaf
// paths in the order they were first encountered.
func Resolve(path string) ([]string, error) {
	files, err := NewResolver().Resolve(path)
	if err != nil {
		return nil, err
	}
	return files.Paths(), nil
}
