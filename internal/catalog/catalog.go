// Package catalog holds the managed set of configuration file descriptors.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/yzhelezko/confedit/internal/remote"
)

var (
	ErrDuplicate = errors.New("file is already managed")
	ErrNotFound  = errors.New("file is not managed")
	ErrReorder   = errors.New("reorder must list every managed file exactly once")
)

// FileDescriptor identifies one managed configuration file. A non-nil
// RemoteInfo marks the file as remote.
type FileDescriptor struct {
	FilePath    string           `json:"filePath" validate:"required"`
	Description string           `json:"description" validate:"required"`
	RefreshCmd  string           `json:"refreshCmd"`
	RemoteInfo  *remote.Endpoint `json:"remoteInfo,omitempty"`
}

// IsRemote reports whether the file lives on another host.
func (d FileDescriptor) IsRemote() bool {
	return d.RemoteInfo != nil
}

var validate = validator.New()

// Validate checks the required fields.
func (d *FileDescriptor) Validate() error {
	return validate.Struct(d)
}

// DefaultRefreshCmd guesses the command that activates path.
func DefaultRefreshCmd(path string) string {
	switch {
	case strings.Contains(path, "nginx"):
		return "nginx -s reload"
	case strings.HasSuffix(path, ".zshrc"), strings.HasSuffix(path, ".bashrc"), strings.HasSuffix(path, "vimrc"):
		return "source " + path
	case strings.Contains(path, "tmux.conf"):
		return "tmux source-file " + path
	case strings.Contains(path, "gitconfig"):
		return "git config --global -e"
	default:
		return "cat " + path
	}
}

// normalize trims the descriptor and fills the refresh command.
func normalize(d FileDescriptor) FileDescriptor {
	d.FilePath = strings.TrimSpace(d.FilePath)
	d.Description = strings.TrimSpace(d.Description)
	if strings.TrimSpace(d.RefreshCmd) == "" {
		d.RefreshCmd = DefaultRefreshCmd(d.FilePath)
	}
	return d
}

// Set is the ordered managed list with one descriptor per file path.
type Set struct {
	mu    sync.RWMutex
	items []FileDescriptor
}

// NewSet builds a set from persisted items. Later duplicates are dropped.
func NewSet(items []FileDescriptor) *Set {
	s := &Set{}
	for _, d := range items {
		d = normalize(d)
		if d.FilePath == "" || s.index(d.FilePath) >= 0 {
			continue
		}
		s.items = append(s.items, d)
	}
	return s
}

func (s *Set) index(path string) int {
	for i, d := range s.items {
		if d.FilePath == path {
			return i
		}
	}
	return -1
}

// List returns a copy of the descriptors in user order.
func (s *Set) List() []FileDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FileDescriptor, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the descriptor for path.
func (s *Set) Get(path string) (FileDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(path); i >= 0 {
		return s.items[i], true
	}
	return FileDescriptor{}, false
}

// Contains reports whether path is managed.
func (s *Set) Contains(path string) bool {
	_, ok := s.Get(path)
	return ok
}

// Add appends d to the end of the list.
func (s *Set) Add(d FileDescriptor) (FileDescriptor, error) {
	d = normalize(d)
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("invalid file descriptor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(d.FilePath) >= 0 {
		return d, fmt.Errorf("%w: %s", ErrDuplicate, d.FilePath)
	}
	s.items = append(s.items, d)
	return d, nil
}

// Update replaces the descriptor stored under path, keeping its position.
// The new descriptor may move to another path that is not yet managed.
func (s *Set) Update(path string, d FileDescriptor) (FileDescriptor, error) {
	d = normalize(d)
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("invalid file descriptor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(path)
	if i < 0 {
		return d, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if d.FilePath != path && s.index(d.FilePath) >= 0 {
		return d, fmt.Errorf("%w: %s", ErrDuplicate, d.FilePath)
	}
	s.items[i] = d
	return d, nil
}

// Remove drops path from the set.
func (s *Set) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(path)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// Reorder applies a user-chosen order. paths must be a permutation of the
// managed paths.
func (s *Set) Reorder(paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(paths) != len(s.items) {
		return ErrReorder
	}
	seen := make(map[string]bool, len(paths))
	next := make([]FileDescriptor, 0, len(paths))
	for _, p := range paths {
		i := s.index(p)
		if i < 0 || seen[p] {
			return ErrReorder
		}
		seen[p] = true
		next = append(next, s.items[i])
	}
	s.items = next
	return nil
}
