package manifest

import "sort"

// FileSet is a set of paths which remembers the order in which paths were first added.
type FileSet struct {
	order []string
	index map[string]struct{}
}

// NewFileSet returns a set containing the given paths
func NewFileSet(paths ...string) *FileSet {
	set := &FileSet{
		order: make([]string, 0, len(paths)),
		index: make(map[string]struct{}, len(paths)),
	}
	for _, path := range paths {
		set.Add(path)
	}
	return set
}

// Add inserts path and reports whether it was new.
func (s *FileSet) Add(path string) bool {
	if _, present := s.index[path]; present {
		return false
	}

	s.index[path] = struct{}{}
	s.order = append(s.order, path)
	return true
}

// Union adds all paths of other which are not in s yet.
func (s *FileSet) Union(other *FileSet) {
	if other == nil {
		return
	}

	for _, path := range other.order {
		s.Add(path)
	}
}

// Contains reports whether path was added to the set.
func (s *FileSet) Contains(path string) bool {
	_, present := s.index[path]
	return present
}

// Len returns the number of unique paths in the set.
func (s *FileSet) Len() int {
	return len(s.order)
}

// Paths returns a copy of the contained paths in insertion order.
func (s *FileSet) Paths() []string {
	result := make([]string, len(s.order))
	copy(result, s.order)
	return result
}

// Sorted returns the contained paths in lexical order.
func (s *FileSet) Sorted() []string {
	result := s.Paths()
	sort.Strings(result)
	return result
}

// Equal compares the contents of both sets, ignoring order.
func (s *FileSet) Equal(other *FileSet) bool {
	if s.Len() != other.Len() {
		return false
	}

	for _, path := range s.order {
		if !other.Contains(path) {
			return false
		}
	}
	return true
}
