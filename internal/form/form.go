// Package form drives one create or edit submission: two attachment widgets,
// the name and description fields, and a single in-flight network call.
package form

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/api"
	"go-case-tracker/internal/files"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/mutation"
	"go-case-tracker/internal/upload"
)

var (
	ErrBusy          = errors.New("a submission is already in flight")
	ErrMissingTarget = errors.New("edit form has no case id")
	ErrClosed        = errors.New("form is closed")
)

const (
	MsgMissingTarget = messages.MissingTarget
	MsgNetwork       = "Network error during upload"

	DefaultSettleDelay = 200 * time.Millisecond
)

// Submitter performs the submission. *mutation.Service satisfies it.
type Submitter interface {
	Submit(ctx context.Context, sub models.Submission) (mutation.Outcome, error)
}

// Deps are the collaborators and callbacks of a form.
type Deps struct {
	Submitter    Submitter
	Timing       upload.Timing
	SettleDelay  time.Duration
	ImageChooser upload.Chooser
	ModelChooser upload.Chooser

	// OnDone is called once after a successful submission and its settle delay.
	OnDone func(mutation.Outcome)
	// OnWarn reports attachment rejections.
	OnWarn func(kind models.AttachmentKind, reason string)
	// OnChange is called after any visible state change.
	OnChange func()
}

// Controller is one form instance. It is discarded when its modal closes.
type Controller struct {
	mode     models.Mode
	targetID int
	deps     Deps

	Image *upload.Widget
	Model *upload.Widget

	mu          sync.Mutex
	name        string
	description string
	busy        bool
	done        bool
	closed      bool
	errMsg      string
}

// New builds a form. In edit mode the fields and widgets are seeded from target.
func New(mode models.Mode, target *models.Case, deps Deps) *Controller {
	c := &Controller{mode: mode, deps: deps}

	c.Image = upload.NewWidget(upload.Options{
		Kind:       models.KindImage,
		Timing:     deps.Timing,
		Chooser:    deps.ImageChooser,
		OnAccepted: func(f files.File) { c.accepted(models.KindImage, f) },
		OnWarn:     func(reason string) { c.warn(models.KindImage, reason) },
		OnChange:   c.changed,
	})
	c.Model = upload.NewWidget(upload.Options{
		Kind:       models.KindModel,
		Timing:     deps.Timing,
		Chooser:    deps.ModelChooser,
		OnAccepted: func(f files.File) { c.accepted(models.KindModel, f) },
		OnWarn:     func(reason string) { c.warn(models.KindModel, reason) },
		OnChange:   c.changed,
	})

	if mode == models.ModeEdit && target != nil {
		c.targetID = target.ID
		c.name = target.Name
		c.description = target.Description
		if target.ImageRef != nil {
			c.Image.Seed(*target.ImageRef)
		}
		if target.ModelRef != nil {
			c.Model.Seed(*target.ModelRef)
		}
	}
	return c
}

func (c *Controller) Mode() models.Mode { return c.mode }
func (c *Controller) TargetID() int     { return c.targetID }

func (c *Controller) SetName(v string) {
	c.mu.Lock()
	c.name = v
	c.mu.Unlock()
}

func (c *Controller) SetDescription(v string) {
	c.mu.Lock()
	c.description = v
	c.mu.Unlock()
}

func (c *Controller) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Controller) Description() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.description
}

// Busy reports whether a submission is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Done reports whether a submission succeeded.
func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Error is the inline error of the last failed submission, or "".
func (c *Controller) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Submit sends the form. It blocks until the call and the settle delay are over.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.busy:
		c.mu.Unlock()
		return ErrBusy
	case c.mode == models.ModeEdit && c.targetID <= 0:
		c.errMsg = MsgMissingTarget
		c.mu.Unlock()
		c.changed()
		return ErrMissingTarget
	}
	sub := c.submissionLocked()
	c.busy = true
	c.errMsg = ""
	c.mu.Unlock()
	c.changed()

	logger := log.WithFields(log.Fields{"mode": c.mode, "case_id": c.targetID})
	logger.Debug("Submitting case form")

	out, err := c.deps.Submitter.Submit(ctx, sub)
	if err == nil {
		c.settle(ctx)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logger.Debug("Form closed before submission finished, discarding result")
		return err
	}
	c.busy = false
	if err != nil {
		c.errMsg = Message(err)
		c.mu.Unlock()
		logger.WithError(err).Warn("Case submission failed")
		c.changed()
		return err
	}
	c.done = true
	c.mu.Unlock()

	c.changed()
	if c.deps.OnDone != nil {
		c.deps.OnDone(out)
	}
	return nil
}

// Close unmounts the form. A submission still in flight completes but its
// result is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Image.Close()
	c.Model.Close()
}

// Message turns a submission error into the inline text shown on the form.
func Message(err error) string {
	var statusErr *api.StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &statusErr):
		return statusErr.Error()
	case errors.Is(err, api.ErrNetwork):
		return MsgNetwork
	case errors.Is(err, mutation.ErrNoIdentity), errors.Is(err, ErrMissingTarget):
		return MsgMissingTarget
	default:
		return err.Error()
	}
}

func (c *Controller) submissionLocked() models.Submission {
	sub := models.Submission{
		Mode:        c.mode,
		Name:        c.name,
		Description: c.description,
	}
	if c.mode == models.ModeEdit {
		sub.TargetID = c.targetID
	}
	// Only settled local files are sent; seeded remote references are not.
	if f := c.Image.File(); f != nil {
		sub.Image = f
	}
	if f := c.Model.File(); f != nil {
		sub.Model = f
	}
	return sub
}

func (c *Controller) settle(ctx context.Context) {
	delay := c.deps.SettleDelay
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (c *Controller) accepted(kind models.AttachmentKind, f files.File) {
	log.WithFields(log.Fields{"kind": kind, "file": f.Name(), "size": f.Size()}).Debug("Attachment ready for submission")
	c.changed()
}

func (c *Controller) warn(kind models.AttachmentKind, reason string) {
	if c.deps.OnWarn != nil {
		c.deps.OnWarn(kind, reason)
	}
}

func (c *Controller) changed() {
	if c.deps.OnChange != nil {
		c.deps.OnChange()
	}
}
