// Package upload implements the attachment slot state machine and the widget
// runtime that drives it.
package upload

import (
	"math"
	"time"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/helpers"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/validator"
)

// State of an attachment slot.
type State int

const (
	Idle State = iota
	Dragging
	Loading
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Loading:
		return "loading"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// Timing configures the progress simulation.
type Timing struct {
	Total    time.Duration
	Interval time.Duration
}

// DefaultTiming is 20 steps of 100ms.
func DefaultTiming() Timing {
	return Timing{Total: 2000 * time.Millisecond, Interval: 100 * time.Millisecond}
}

// Steps is the number of ticks needed to reach 100, never less than one.
func (t Timing) Steps() int {
	if t.Interval <= 0 || t.Total <= 0 {
		return 1
	}
	n := int(t.Total / t.Interval)
	if n < 1 {
		return 1
	}
	return n
}

// Event is an input to Slot.Apply.
type Event interface{ isEvent() }

type (
	// DragEnter is a pointer entering the zone; HasFiles is false for text drags.
	DragEnter struct{ HasFiles bool }
	DragOver  struct{ HasFiles bool }
	DragLeave struct{}
	// Drop carries the dropped files. Only the first is considered.
	Drop  struct{ Files []files.File }
	Click struct{}
	// Chosen is the file returned by the chooser.
	Chosen struct{ File files.File }
	// Tick advances the simulation started for Gen.
	Tick struct{ Gen uint64 }
	// PreviewReady delivers the decoded preview of the acceptance Gen.
	PreviewReady struct {
		Gen     uint64
		Payload string
	}
	Clear struct{}
)

func (DragEnter) isEvent()    {}
func (DragOver) isEvent()     {}
func (DragLeave) isEvent()    {}
func (Drop) isEvent()         {}
func (Click) isEvent()        {}
func (Chosen) isEvent()       {}
func (Tick) isEvent()         {}
func (PreviewReady) isEvent() {}
func (Clear) isEvent()        {}

// Effect is an instruction emitted by Slot.Apply for the runtime to carry out.
type Effect interface{ isEffect() }

type (
	OpenChooser     struct{}
	StartSimulation struct{ Gen uint64 }
	StopSimulation  struct{ Gen uint64 }
	StartPreview    struct {
		Gen  uint64
		File files.File
	}
	ResetChooser struct{}
	Warn         struct {
		Reason string
		Err    error
	}
	// Accepted is emitted once per acceptance, after progress reached 100.
	Accepted struct{ File files.File }
)

func (OpenChooser) isEffect()     {}
func (StartSimulation) isEffect() {}
func (StopSimulation) isEffect()  {}
func (StartPreview) isEffect()    {}
func (ResetChooser) isEffect()    {}
func (Warn) isEffect()            {}
func (Accepted) isEffect()        {}

// Slot is the value state of one attachment slot.
// Gen identifies the current acceptance; timer and preview results tagged with
// an older Gen are ignored.
type Slot struct {
	Kind        models.AttachmentKind
	State       State
	File        files.File
	Preview     string
	DisplayName string
	RemoteRef   string
	Progress    int
	Gen         uint64
	Steps       int

	step int
}

// NewSlot returns an idle slot of the given kind.
func NewSlot(kind models.AttachmentKind, timing Timing) Slot {
	return Slot{Kind: kind, State: Idle, Steps: timing.Steps()}
}

// Seed shows a remote reference as a settled slot without a local file.
// It does not start a simulation and never produces Accepted.
func (s Slot) Seed(ref string) Slot {
	if ref == "" {
		return s
	}
	s.State = Settled
	s.File = nil
	s.RemoteRef = ref
	s.DisplayName = helpers.BaseNameFromRef(ref)
	s.Progress = 100
	s.Preview = ""
	if s.Kind == models.KindImage {
		s.Preview = ref
	}
	return s
}

// Apply is the transition function: it returns the next slot and the effects to run.
func (s Slot) Apply(ev Event) (Slot, []Effect) {
	switch e := ev.(type) {
	case DragEnter:
		return s.drag(e.HasFiles), nil
	case DragOver:
		return s.drag(e.HasFiles), nil
	case DragLeave:
		if s.State == Dragging {
			s.State = Idle
		}
		return s, nil
	case Drop:
		if s.State != Idle && s.State != Dragging {
			return s, nil
		}
		s.State = Idle
		if len(e.Files) == 0 || e.Files[0] == nil {
			return s, nil
		}
		return s.accept(e.Files[0])
	case Click:
		if s.State != Idle {
			return s, nil
		}
		return s, []Effect{OpenChooser{}}
	case Chosen:
		if s.State != Idle || e.File == nil {
			return s, nil
		}
		return s.accept(e.File)
	case Tick:
		return s.tick(e.Gen)
	case PreviewReady:
		if e.Gen != s.Gen || s.File == nil || s.Kind != models.KindImage {
			return s, nil
		}
		s.Preview = e.Payload
		return s, nil
	case Clear:
		if s.State == Idle {
			return s, nil
		}
		var effects []Effect
		if s.State == Loading {
			effects = append(effects, StopSimulation{Gen: s.Gen})
		}
		s = s.cleared()
		return s, append(effects, ResetChooser{})
	}
	return s, nil
}

func (s Slot) drag(hasFiles bool) Slot {
	if hasFiles && s.State == Idle {
		s.State = Dragging
	}
	return s
}

func (s Slot) accept(f files.File) (Slot, []Effect) {
	if err := validator.Validate(f, s.Kind); err != nil {
		return s, []Effect{Warn{Reason: err.Error(), Err: err}}
	}

	s.Gen++
	s.State = Loading
	s.File = f
	s.DisplayName = f.Name()
	s.Preview = ""
	s.RemoteRef = ""
	s.Progress = 0
	s.step = 0

	effects := []Effect{StartSimulation{Gen: s.Gen}}
	if s.Kind == models.KindImage {
		effects = append(effects, StartPreview{Gen: s.Gen, File: f})
	}
	return s, effects
}

func (s Slot) tick(gen uint64) (Slot, []Effect) {
	if s.State != Loading || gen != s.Gen {
		return s, nil
	}
	steps := s.Steps
	if steps < 1 {
		steps = 1
	}
	s.step++
	if s.step >= steps {
		s.Progress = 100
		s.State = Settled
		return s, []Effect{StopSimulation{Gen: gen}, Accepted{File: s.File}}
	}
	p := int(math.Round(float64(s.step) * 100 / float64(steps)))
	if p > 100 {
		p = 100
	}
	if p > s.Progress {
		s.Progress = p
	}
	return s, nil
}

func (s Slot) cleared() Slot {
	// Bumping Gen invalidates any tick or preview still in flight.
	return Slot{Kind: s.Kind, State: Idle, Steps: s.Steps, Gen: s.Gen + 1}
}
