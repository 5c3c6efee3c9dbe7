package tui

import (
	"sync"

	"go-case-tracker/internal/models"
	"go-case-tracker/internal/upload"
)

// Choosers are the two file inputs of the dashboard form. The path typed in
// the form is handed to the chooser right before the widget asks for it.
type Choosers struct {
	Image *upload.PathChooser
	Model *upload.PathChooser

	mu    sync.Mutex
	paths map[models.AttachmentKind]string
}

func NewChoosers() *Choosers {
	c := &Choosers{paths: make(map[models.AttachmentKind]string)}
	c.Image = upload.NewPathChooser(c.source)
	c.Model = upload.NewPathChooser(c.source)
	return c
}

// Set records the path the next Open of kind returns.
func (c *Choosers) Set(kind models.AttachmentKind, path string) {
	c.mu.Lock()
	c.paths[kind] = path
	c.mu.Unlock()
}

// Reset forgets typed paths and previous selections, as a freshly mounted form would.
func (c *Choosers) Reset() {
	c.mu.Lock()
	c.paths = make(map[models.AttachmentKind]string)
	c.mu.Unlock()
	c.Image.Reset()
	c.Model.Reset()
}

func (c *Choosers) source(kind models.AttachmentKind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.paths[kind]
	if !ok || path == "" {
		return "", upload.ErrNoSelection
	}
	return path, nil
}
