package upload

import (
	"errors"
	"strings"
	"sync"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/models"
)

var (
	// ErrNoSelection is returned when the chooser was dismissed without a file.
	ErrNoSelection = errors.New("no file selected")
	// ErrUnchanged is returned when the same path is picked again before a reset.
	ErrUnchanged = errors.New("selection unchanged")
)

// Chooser is the file picker owned by a single widget.
type Chooser interface {
	Open(kind models.AttachmentKind) (files.File, error)
	Reset()
}

// PathChooser picks local files by path. Like a file input, picking the same
// path twice in a row is not a change until Reset is called.
type PathChooser struct {
	Source func(kind models.AttachmentKind) (string, error)

	mu   sync.Mutex
	last string
}

// NewPathChooser returns a chooser that asks source for a path.
func NewPathChooser(source func(kind models.AttachmentKind) (string, error)) *PathChooser {
	return &PathChooser{Source: source}
}

// StaticPath returns a source that always yields path.
func StaticPath(path string) func(models.AttachmentKind) (string, error) {
	return func(models.AttachmentKind) (string, error) {
		return path, nil
	}
}

func (c *PathChooser) Open(kind models.AttachmentKind) (files.File, error) {
	if c.Source == nil {
		return nil, ErrNoSelection
	}
	path, err := c.Source(kind)
	if err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrNoSelection
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if path == c.last {
		return nil, ErrUnchanged
	}
	f, err := files.NewLocalFile(path)
	if err != nil {
		return nil, err
	}
	c.last = path
	return f, nil
}

func (c *PathChooser) Reset() {
	c.mu.Lock()
	c.last = ""
	c.mu.Unlock()
}
