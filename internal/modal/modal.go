// Package modal holds the per card modal state: closed, form open or delete
// confirmation open.
package modal

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/api"
	"go-case-tracker/internal/form"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/mutation"
)

var (
	// ErrNotAllowed is returned when a transition is not valid for the card or state.
	ErrNotAllowed = errors.New("modal transition not allowed")
	// ErrBusy is returned when a delete is already in flight.
	ErrBusy = errors.New("delete already in flight")
)

const MsgDeleteNetwork = "Network error during delete"

// Kind of the visible modal.
type Kind int

const (
	Closed Kind = iota
	FormOpen
	ConfirmOpen
)

func (k Kind) String() string {
	switch k {
	case Closed:
		return "closed"
	case FormOpen:
		return "form"
	case ConfirmOpen:
		return "confirm"
	default:
		return "unknown"
	}
}

// State is the modal state of one card. Mode is only set for FormOpen.
type State struct {
	Kind Kind
	Mode models.Mode
}

// Deleter removes a case. *mutation.Service satisfies it.
type Deleter interface {
	Delete(ctx context.Context, id int) (mutation.Outcome, error)
}

// Deps are shared by every card of a list.
type Deps struct {
	Deleter Deleter
	// Form is the template for forms opened from the card. Its OnDone is wrapped.
	Form form.Deps
	// OnChanged asks the owner to refresh the collection.
	OnChanged func()
	// OnState reports every state change of the card.
	OnState func(State)
}

// Card is one entry of the list view: the add card has a zero Case.
type Card struct {
	Case  models.Case
	Modal *Controller
}

// IsAdd reports whether this is the "add new" card.
func (c Card) IsAdd() bool {
	return c.Case.IsPlaceholder()
}

// Controller owns the modal state of exactly one card.
type Controller struct {
	card models.Case
	deps Deps

	mu       sync.Mutex
	state    State
	form     *form.Controller
	errMsg   string
	deleting bool
}

// NewController returns a closed controller for card.
func NewController(card models.Case, deps Deps) *Controller {
	return &Controller{card: card, deps: deps}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Form returns the open form, or nil.
func (c *Controller) Form() *form.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// Error is the inline error of the last failed delete.
func (c *Controller) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Deleting reports whether the confirmed delete is in flight.
func (c *Controller) Deleting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleting
}

// OpenCreate opens an empty form. Only the add card may do this.
func (c *Controller) OpenCreate() (*form.Controller, error) {
	if !c.card.IsPlaceholder() {
		return nil, ErrNotAllowed
	}
	return c.openForm(models.ModeCreate, nil)
}

// OpenEdit opens a form prefilled from the card's case. It fails with ErrBusy
// while a confirmed delete is in flight.
func (c *Controller) OpenEdit() (*form.Controller, error) {
	if c.card.IsPlaceholder() {
		return nil, ErrNotAllowed
	}
	target := c.card
	return c.openForm(models.ModeEdit, &target)
}

// OpenConfirm opens the delete confirmation.
func (c *Controller) OpenConfirm() error {
	if c.card.IsPlaceholder() {
		return ErrNotAllowed
	}
	c.mu.Lock()
	if c.deleting {
		c.mu.Unlock()
		return ErrBusy
	}
	old := c.detachFormLocked()
	c.state = State{Kind: ConfirmOpen}
	c.errMsg = ""
	st := c.state
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.notify(st)
	return nil
}

// Close returns to Closed from any state.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state.Kind == Closed {
		c.mu.Unlock()
		return
	}
	old := c.detachFormLocked()
	c.state = State{Kind: Closed}
	c.errMsg = ""
	st := c.state
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.notify(st)
}

// BackdropClick closes the modal for clicks outside its body. Clicks inside
// the body never close it. It reports whether the modal was closed.
func (c *Controller) BackdropClick(inside bool) bool {
	if inside || c.State().Kind == Closed {
		return false
	}
	c.Close()
	return true
}

// Confirm deletes the card's case. On success the modal closes and the owner
// is asked to refresh; on failure the confirmation stays open with an error.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Kind != ConfirmOpen {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	if c.deleting {
		c.mu.Unlock()
		return ErrBusy
	}
	c.deleting = true
	c.errMsg = ""
	c.mu.Unlock()
	c.notify(c.State())

	_, err := c.deps.Deleter.Delete(ctx, c.card.ID)

	c.mu.Lock()
	c.deleting = false
	if err != nil {
		if c.state.Kind == ConfirmOpen {
			c.errMsg = deleteMessage(err)
		}
		st := c.state
		c.mu.Unlock()
		log.WithError(err).WithField("case_id", c.card.ID).Warn("Case delete failed")
		c.notify(st)
		return err
	}
	old := c.detachFormLocked()
	c.state = State{Kind: Closed}
	st := c.state
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.notify(st)
	c.changed()
	return nil
}

func (c *Controller) openForm(mode models.Mode, target *models.Case) (*form.Controller, error) {
	deps := c.deps.Form
	userDone := deps.OnDone
	var f *form.Controller
	deps.OnDone = func(out mutation.Outcome) {
		c.formDone(f)
		if userDone != nil {
			userDone(out)
		}
	}
	f = form.New(mode, target, deps)

	c.mu.Lock()
	if c.deleting {
		c.mu.Unlock()
		f.Close()
		return nil, ErrBusy
	}
	old := c.detachFormLocked()
	c.form = f
	c.state = State{Kind: FormOpen, Mode: mode}
	c.errMsg = ""
	st := c.state
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	log.WithFields(log.Fields{"case_id": c.card.ID, "mode": mode}).Debug("Form modal opened")
	c.notify(st)
	return f, nil
}

func (c *Controller) formDone(f *form.Controller) {
	c.mu.Lock()
	if c.form != f || c.state.Kind != FormOpen {
		c.mu.Unlock()
		return
	}
	c.form = nil
	c.state = State{Kind: Closed}
	st := c.state
	c.mu.Unlock()

	f.Close()
	c.notify(st)
	c.changed()
}

func (c *Controller) detachFormLocked() *form.Controller {
	f := c.form
	c.form = nil
	return f
}

func (c *Controller) notify(st State) {
	if c.deps.OnState != nil {
		c.deps.OnState(st)
	}
}

func (c *Controller) changed() {
	if c.deps.OnChanged != nil {
		c.deps.OnChanged()
	}
}

func deleteMessage(err error) string {
	var statusErr *api.StatusError
	switch {
	case errors.As(err, &statusErr):
		return statusErr.Error()
	case errors.Is(err, api.ErrNetwork):
		return MsgDeleteNetwork
	default:
		return err.Error()
	}
}
