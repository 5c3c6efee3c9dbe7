// Package caselist owns the in-memory case collection of a view. The
// collection is only ever replaced wholesale by a fresh fetch.
package caselist

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/modal"
	"go-case-tracker/internal/models"
)

// Fetcher loads the whole collection. *api.Client satisfies it.
type Fetcher interface {
	ListCases(ctx context.Context) ([]models.Case, error)
}

// Observer is told about every applied refresh.
type Observer interface {
	CasesRefreshed(cases []models.Case)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(cases []models.Case)

func (f ObserverFunc) CasesRefreshed(cases []models.Case) { f(cases) }

// Controller holds the collection, its loading and error state, and the cards
// built from it.
//
// Overlapping refreshes are tagged with a sequence number. A response is
// applied only if no later-issued refresh has been applied already.
type Controller struct {
	fetcher   Fetcher
	modalDeps modal.Deps
	ctx       context.Context

	mu        sync.Mutex
	cases     []models.Case
	cards     []modal.Card
	inFlight  int
	err       error
	issued    uint64
	applied   uint64
	observers []Observer
	onChange  []func()
}

// New returns an empty controller. Mutations reported by any card trigger a
// refresh using ctx.
func New(ctx context.Context, fetcher Fetcher, modalDeps modal.Deps) *Controller {
	c := &Controller{fetcher: fetcher, ctx: ctx}

	userChanged := modalDeps.OnChanged
	modalDeps.OnChanged = func() {
		if userChanged != nil {
			userChanged()
		}
		if err := c.Refresh(c.ctx); err != nil {
			log.WithError(err).Warn("Refresh after mutation failed")
		}
	}
	c.modalDeps = modalDeps
	c.cards = []modal.Card{c.addCard()}
	return c
}

// Subscribe registers an observer of applied refreshes.
func (c *Controller) Subscribe(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// OnChange registers a callback for any state change, loading included.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// Refresh fetches the collection. On success the collection is replaced and
// the error cleared; on failure the error is set and the collection kept.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.inFlight++
	c.mu.Unlock()
	c.changed()

	cases, err := c.fetcher.ListCases(ctx)

	c.mu.Lock()
	c.inFlight--
	if seq <= c.applied {
		applied := c.applied
		c.mu.Unlock()
		log.WithFields(log.Fields{"seq": seq, "applied": applied}).Debug("Discarding stale case list response")
		c.changed()
		return err
	}
	c.applied = seq
	if err != nil {
		c.err = err
		c.mu.Unlock()
		log.WithError(err).Warn("Failed to fetch cases")
		c.changed()
		return err
	}

	c.cases = withIdentity(cases)
	var stale []*modal.Controller
	c.cards, stale = c.buildCardsLocked()
	c.err = nil
	snapshot := append([]models.Case(nil), c.cases...)
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	for _, ctrl := range stale {
		ctrl.Close()
	}

	log.WithField("count", len(snapshot)).Debug("Case list refreshed")
	for _, o := range observers {
		o.CasesRefreshed(snapshot)
	}
	c.changed()
	return nil
}

// Cases returns a copy of the collection.
func (c *Controller) Cases() []models.Case {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Case(nil), c.cases...)
}

// Loading reports whether any refresh is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

// Err is the error of the last applied refresh, nil after a success.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Cards returns the add card followed by one card per case.
func (c *Controller) Cards() []modal.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]modal.Card(nil), c.cards...)
}

func (c *Controller) addCard() modal.Card {
	return modal.Card{Modal: modal.NewController(models.Case{}, c.modalDeps)}
}

// buildCardsLocked keeps the controller of any card whose modal is open so a
// refresh does not close it under the user; every other card gets a fresh one.
// Open controllers whose case disappeared are returned for closing.
func (c *Controller) buildCardsLocked() ([]modal.Card, []*modal.Controller) {
	open := make(map[int]*modal.Controller)
	var add modal.Card
	for _, card := range c.cards {
		if card.IsAdd() {
			add = card
			continue
		}
		if card.Modal.State().Kind != modal.Closed {
			open[card.Case.ID] = card.Modal
		}
	}
	if add.Modal == nil {
		add = c.addCard()
	}

	cards := make([]modal.Card, 0, len(c.cases)+1)
	cards = append(cards, add)
	for _, kase := range c.cases {
		ctrl, ok := open[kase.ID]
		if ok {
			delete(open, kase.ID)
		} else {
			ctrl = modal.NewController(kase, c.modalDeps)
		}
		cards = append(cards, modal.Card{Case: kase, Modal: ctrl})
	}

	stale := make([]*modal.Controller, 0, len(open))
	for _, ctrl := range open {
		stale = append(stale, ctrl)
	}
	return cards, stale
}

// withIdentity copies cases, dropping entries without a positive id. Only the
// synthetic add card may lack one.
func withIdentity(cases []models.Case) []models.Case {
	kept := make([]models.Case, 0, len(cases))
	for _, kase := range cases {
		if kase.ID <= 0 {
			log.WithFields(log.Fields{"id": kase.ID, "name": kase.Name}).Warn("Ignoring case without a valid id")
			continue
		}
		kept = append(kept, kase)
	}
	return kept
}

func (c *Controller) changed() {
	c.mu.Lock()
	fns := append([]func(){}, c.onChange...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
