// Package mutation maps case level intents to single calls against the store.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/models"
)

var (
	// ErrNoIdentity is returned for update or delete intents without a case id.
	ErrNoIdentity = errors.New("case has no id")
	// ErrUnknownMode is returned for submissions that are neither create nor edit.
	ErrUnknownMode = errors.New("unknown submission mode")
)

// Store is the remote case store.
type Store interface {
	CreateCase(ctx context.Context, sub models.Submission) (models.Case, error)
	UpdateCase(ctx context.Context, id int, sub models.Submission) (models.Case, error)
	DeleteCase(ctx context.Context, id int) error
}

// Journal records mutations locally.
type Journal interface {
	Put(entry models.JournalEntry) error
}

// Outcome is the result of a successful mutation.
type Outcome struct {
	Changed bool
	Case    models.Case
}

// Service performs create, update and delete intents.
type Service struct {
	store   Store
	journal Journal
	now     func() time.Time
}

// NewService returns a Service. journal may be nil.
func NewService(store Store, journal Journal) *Service {
	return &Service{store: store, journal: journal, now: time.Now}
}

// Delete removes the case with the given id.
func (s *Service) Delete(ctx context.Context, id int) (Outcome, error) {
	if id <= 0 {
		return Outcome{}, ErrNoIdentity
	}

	entry := s.begin(models.JournalEntry{Operation: models.OpDelete, CaseID: id})
	err := s.store.DeleteCase(ctx, id)
	s.finish(entry, err)
	if err != nil {
		return Outcome{}, err
	}

	log.WithField("case_id", id).Info("Case deleted")
	return Outcome{Changed: true}, nil
}

// Submit creates or updates a case depending on sub.Mode.
func (s *Service) Submit(ctx context.Context, sub models.Submission) (Outcome, error) {
	var op string
	switch sub.Mode {
	case models.ModeCreate:
		op = models.OpCreate
	case models.ModeEdit:
		if sub.TargetID <= 0 {
			return Outcome{}, ErrNoIdentity
		}
		op = models.OpUpdate
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownMode, sub.Mode)
	}

	entry := s.begin(s.describe(op, sub))

	var (
		kase models.Case
		err  error
	)
	if op == models.OpCreate {
		kase, err = s.store.CreateCase(ctx, sub)
	} else {
		kase, err = s.store.UpdateCase(ctx, sub.TargetID, sub)
	}
	if err == nil && entry != nil && entry.CaseID == 0 {
		entry.CaseID = kase.ID
	}
	s.finish(entry, err)
	if err != nil {
		return Outcome{}, err
	}

	log.WithFields(log.Fields{
		"operation": op,
		"case_id":   sub.TargetID,
		"name":      sub.Name,
	}).Info("Case submitted")
	return Outcome{Changed: true, Case: kase}, nil
}

func (s *Service) describe(op string, sub models.Submission) models.JournalEntry {
	entry := models.JournalEntry{Operation: op, CaseID: sub.TargetID, CaseName: sub.Name}
	if s.journal == nil {
		return entry
	}
	if sub.Image != nil {
		entry.ImageName = sub.Image.Name()
		entry.ImageHash = fingerprint(sub.Image)
	}
	if sub.Model != nil {
		entry.ModelName = sub.Model.Name()
		entry.ModelHash = fingerprint(sub.Model)
	}
	return entry
}

func fingerprint(f files.File) string {
	sum, err := files.Fingerprint(f)
	if err != nil {
		log.WithError(err).WithField("file", f.Name()).Warn("Failed to fingerprint attachment")
		return ""
	}
	return sum
}

// begin records entry as pending. Journal failures are logged and never fail the mutation.
func (s *Service) begin(entry models.JournalEntry) *models.JournalEntry {
	if s.journal == nil {
		return nil
	}
	now := s.now().UTC()
	entry.ID = uuid.NewString()
	entry.Status = models.StatusPending
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if err := s.journal.Put(entry); err != nil {
		log.WithError(err).Warn("Failed to record pending mutation")
	}
	return &entry
}

func (s *Service) finish(entry *models.JournalEntry, err error) {
	if entry == nil {
		return
	}
	entry.UpdatedAt = s.now().UTC()
	if err != nil {
		entry.Status = models.StatusError
		entry.ErrorDetails = err.Error()
	} else {
		entry.Status = models.StatusDone
	}
	if putErr := s.journal.Put(*entry); putErr != nil {
		log.WithError(putErr).Warn("Failed to record mutation result")
	}
}
