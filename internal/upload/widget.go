package upload

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/models"
)

// Snapshot is the display state of a widget.
type Snapshot struct {
	Kind        models.AttachmentKind
	State       State
	DisplayName string
	Preview     string
	RemoteRef   string
	Progress    int
	HasFile     bool
}

// Options configures a Widget. All callbacks are optional and are invoked
// outside the widget lock. OnChange carries no state: calls from the ticker
// and from the owner may interleave, so read Snapshot for the current state.
type Options struct {
	Kind       models.AttachmentKind
	Timing     Timing
	Chooser    Chooser
	OnAccepted func(files.File)
	OnWarn     func(reason string)
	OnChange   func()
}

// Widget runs a Slot: it owns the simulation ticker, the preview decoding and
// the chooser, and reports acceptance and warnings to its owner.
type Widget struct {
	opts Options

	mu       sync.Mutex
	slot     Slot
	stopTick chan struct{}
	tickGen  uint64
	closed   bool
}

// NewWidget returns an idle widget.
func NewWidget(opts Options) *Widget {
	if opts.Timing.Total <= 0 || opts.Timing.Interval <= 0 {
		opts.Timing = DefaultTiming()
	}
	return &Widget{opts: opts, slot: NewSlot(opts.Kind, opts.Timing)}
}

// Seed shows an existing remote attachment. It is only honoured while idle.
func (w *Widget) Seed(ref string) {
	w.mu.Lock()
	if w.closed || w.slot.State != Idle {
		w.mu.Unlock()
		return
	}
	w.slot = w.slot.Seed(ref)
	w.mu.Unlock()

	w.changed()
}

func (w *Widget) DragEnter()            { w.Dispatch(DragEnter{HasFiles: true}) }
func (w *Widget) DragLeave()            { w.Dispatch(DragLeave{}) }
func (w *Widget) Drop(fs ...files.File) { w.Dispatch(Drop{Files: fs}) }
func (w *Widget) Click()                { w.Dispatch(Click{}) }
func (w *Widget) Choose(f files.File)   { w.Dispatch(Chosen{File: f}) }
func (w *Widget) Clear()                { w.Dispatch(Clear{}) }

// Kind is the attachment kind the widget accepts.
func (w *Widget) Kind() models.AttachmentKind {
	return w.opts.Kind
}

// Dispatch applies ev and runs the resulting effects.
func (w *Widget) Dispatch(ev Event) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	prev := w.slot.State
	next, effects := w.slot.Apply(ev)
	w.slot = next
	w.mu.Unlock()

	if prev != next.State {
		log.WithFields(log.Fields{
			"kind": w.opts.Kind,
			"from": prev.String(),
			"to":   next.State.String(),
		}).Debug("Upload slot transition")
	}

	w.changed()
	for _, effect := range effects {
		w.run(effect)
	}
}

// Snapshot returns the current display state.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// File returns the accepted local file, or nil while none has settled.
func (w *Widget) File() files.File {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.slot.State != Settled {
		return nil
	}
	return w.slot.File
}

// Close stops any running simulation and ignores all further events.
func (w *Widget) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.stopTickerLocked(w.tickGen)
}

func (w *Widget) snapshotLocked() Snapshot {
	return Snapshot{
		Kind:        w.slot.Kind,
		State:       w.slot.State,
		DisplayName: w.slot.DisplayName,
		Preview:     w.slot.Preview,
		RemoteRef:   w.slot.RemoteRef,
		Progress:    w.slot.Progress,
		HasFile:     w.slot.File != nil,
	}
}

func (w *Widget) changed() {
	if w.opts.OnChange != nil {
		w.opts.OnChange()
	}
}

func (w *Widget) run(effect Effect) {
	switch e := effect.(type) {
	case OpenChooser:
		w.openChooser()
	case StartSimulation:
		w.startTicker(e.Gen)
	case StopSimulation:
		w.mu.Lock()
		w.stopTickerLocked(e.Gen)
		w.mu.Unlock()
	case StartPreview:
		go w.decodePreview(e.Gen, e.File)
	case ResetChooser:
		if w.opts.Chooser != nil {
			w.opts.Chooser.Reset()
		}
	case Warn:
		log.WithField("kind", w.opts.Kind).Warn(e.Reason)
		if w.opts.OnWarn != nil {
			w.opts.OnWarn(e.Reason)
		}
	case Accepted:
		log.WithFields(log.Fields{"kind": w.opts.Kind, "file": e.File.Name()}).Debug("Attachment accepted")
		if w.opts.OnAccepted != nil {
			w.opts.OnAccepted(e.File)
		}
	}
}

func (w *Widget) openChooser() {
	if w.opts.Chooser == nil {
		return
	}
	f, err := w.opts.Chooser.Open(w.opts.Kind)
	switch {
	case errors.Is(err, ErrNoSelection), errors.Is(err, ErrUnchanged):
		log.WithField("kind", w.opts.Kind).Debugf("Chooser closed: %v", err)
		return
	case err != nil:
		w.run(Warn{Reason: err.Error(), Err: err})
		return
	}
	w.Dispatch(Chosen{File: f})
}

func (w *Widget) startTicker(gen uint64) {
	w.mu.Lock()
	if w.closed || w.slot.Gen != gen || w.slot.State != Loading {
		w.mu.Unlock()
		return
	}
	w.stopTickerLocked(w.tickGen)
	stop := make(chan struct{})
	w.stopTick = stop
	w.tickGen = gen
	interval := w.opts.Timing.Interval
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				w.Dispatch(Tick{Gen: gen})
			}
		}
	}()
}

func (w *Widget) stopTickerLocked(gen uint64) {
	if w.stopTick == nil || w.tickGen != gen {
		return
	}
	close(w.stopTick)
	w.stopTick = nil
}

func (w *Widget) decodePreview(gen uint64, f files.File) {
	payload, err := files.DataURL(f)
	if err != nil {
		log.WithError(err).WithField("file", f.Name()).Warn("Failed to build preview")
		return
	}
	w.Dispatch(PreviewReady{Gen: gen, Payload: payload})
}
