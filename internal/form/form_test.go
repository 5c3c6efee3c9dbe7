package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-case-tracker/internal/api"
	"go-case-tracker/internal/files"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/mutation"
	"go-case-tracker/internal/upload"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	subs    []models.Submission
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, sub models.Submission) (mutation.Outcome, error) {
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return mutation.Outcome{}, f.err
	}
	return mutation.Outcome{Changed: true}, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func fastDeps(sub Submitter) Deps {
	return Deps{
		Submitter: sub,
		Timing:    upload.Timing{Total: 10 * time.Millisecond, Interval: 2 * time.Millisecond},
	}
}

func strPtr(s string) *string { return &s }

func settle(t *testing.T, w *upload.Widget) {
	t.Helper()
	require.Eventually(t, func() bool { return w.Snapshot().State == upload.Settled }, time.Second, time.Millisecond)
}

func TestSubmit_CreateAssemblesSubmission(t *testing.T) {
	sub := &fakeSubmitter{}
	var done atomic.Int32
	deps := fastDeps(sub)
	deps.OnDone = func(mutation.Outcome) { done.Add(1) }

	c := New(models.ModeCreate, nil, deps)
	defer c.Close()
	assert.Empty(t, c.Name())

	c.SetName("Ponte")
	c.SetDescription("Teste")
	c.Image.Drop(files.NewBytesFile("photo.png", "image/png", []byte("png")))
	c.Model.Drop(files.NewBytesFile("tower.ifc", "", []byte("ifc")))
	settle(t, c.Image)
	settle(t, c.Model)

	require.NoError(t, c.Submit(context.Background()))
	require.Equal(t, 1, sub.count())

	got := sub.subs[0]
	assert.Equal(t, models.ModeCreate, got.Mode)
	assert.Zero(t, got.TargetID)
	assert.Equal(t, "Ponte", got.Name)
	assert.Equal(t, "Teste", got.Description)
	require.NotNil(t, got.Image)
	assert.Equal(t, "photo.png", got.Image.Name())
	require.NotNil(t, got.Model)
	assert.Equal(t, "tower.ifc", got.Model.Name())

	assert.Equal(t, int32(1), done.Load())
	assert.True(t, c.Done())
	assert.False(t, c.Busy())
	assert.Empty(t, c.Error())
}

func TestSubmit_LoadingAttachmentIsNotSent(t *testing.T) {
	sub := &fakeSubmitter{}
	deps := fastDeps(sub)
	deps.Timing = upload.Timing{Total: time.Hour, Interval: time.Minute}

	c := New(models.ModeCreate, nil, deps)
	defer c.Close()
	c.Model.Drop(files.NewBytesFile("tower.ifc", "", nil))
	require.Equal(t, upload.Loading, c.Model.Snapshot().State)

	require.NoError(t, c.Submit(context.Background()))
	assert.Nil(t, sub.subs[0].Model)
}

func TestNew_EditSeedsFromTarget(t *testing.T) {
	target := &models.Case{
		ID:          7,
		Name:        "Ponte",
		Description: "Teste",
		ImageRef:    strPtr("http://localhost:8000/files/case_7/photo.png"),
		ModelRef:    strPtr("http://localhost:8000/files/case_7/tower.ifc"),
	}
	sub := &fakeSubmitter{}
	c := New(models.ModeEdit, target, fastDeps(sub))
	defer c.Close()

	assert.Equal(t, "Ponte", c.Name())
	assert.Equal(t, "Teste", c.Description())
	assert.Equal(t, 7, c.TargetID())

	img := c.Image.Snapshot()
	assert.Equal(t, upload.Settled, img.State)
	assert.Equal(t, "photo.png", img.DisplayName)
	assert.False(t, img.HasFile)
	assert.Equal(t, "tower.ifc", c.Model.Snapshot().DisplayName)

	c.SetName("Ponte nova")
	require.NoError(t, c.Submit(context.Background()))
	got := sub.subs[0]
	assert.Equal(t, models.ModeEdit, got.Mode)
	assert.Equal(t, 7, got.TargetID)
	assert.Equal(t, "Ponte nova", got.Name)
	assert.Nil(t, got.Image, "unreplaced attachments are omitted")
	assert.Nil(t, got.Model)
}

func TestSubmit_EditWithoutIDNeverCallsNetwork(t *testing.T) {
	for name, target := range map[string]*models.Case{"nil target": nil, "placeholder": {}} {
		t.Run(name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			c := New(models.ModeEdit, target, fastDeps(sub))
			defer c.Close()

			err := c.Submit(context.Background())
			assert.ErrorIs(t, err, ErrMissingTarget)
			assert.Equal(t, MsgMissingTarget, c.Error())
			assert.Equal(t, 0, sub.count())
			assert.False(t, c.Busy())
		})
	}
}

func TestSubmit_NoConcurrentDuplicates(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := New(models.ModeCreate, nil, fastDeps(sub))
	defer c.Close()

	errs := make(chan error, 1)
	go func() { errs <- c.Submit(context.Background()) }()
	<-sub.started

	assert.True(t, c.Busy())
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.Submit(context.Background()), ErrBusy)
	}

	close(sub.release)
	require.NoError(t, <-errs)
	assert.Equal(t, 1, sub.count())
	assert.False(t, c.Busy())
}

func TestSubmit_FailureKeepsValuesAndIsRetryable(t *testing.T) {
	sub := &fakeSubmitter{err: &api.StatusError{Op: "Upload", Code: 500, Status: "Internal Server Error", Body: "db locked"}}
	var done atomic.Int32
	deps := fastDeps(sub)
	deps.OnDone = func(mutation.Outcome) { done.Add(1) }

	c := New(models.ModeCreate, nil, deps)
	defer c.Close()
	c.SetName("Ponte")

	err := c.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Upload failed: 500 Internal Server Error — db locked", c.Error())
	assert.Equal(t, "Ponte", c.Name())
	assert.False(t, c.Busy())
	assert.False(t, c.Done())
	assert.Equal(t, int32(0), done.Load())

	sub.err = nil
	require.NoError(t, c.Submit(context.Background()))
	assert.Empty(t, c.Error())
	assert.Equal(t, int32(1), done.Load())
	assert.Equal(t, 2, sub.count())
}

func TestSubmit_SettleDelayBeforeDone(t *testing.T) {
	sub := &fakeSubmitter{}
	deps := fastDeps(sub)
	deps.SettleDelay = 30 * time.Millisecond
	var doneAt time.Time
	deps.OnDone = func(mutation.Outcome) { doneAt = time.Now() }

	c := New(models.ModeCreate, nil, deps)
	defer c.Close()

	start := time.Now()
	require.NoError(t, c.Submit(context.Background()))
	assert.GreaterOrEqual(t, doneAt.Sub(start), 30*time.Millisecond)
}

func TestSubmit_ClosedFormDiscardsLateResult(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{}), started: make(chan struct{}, 1), err: errors.New("late failure")}
	var done atomic.Int32
	deps := fastDeps(sub)
	deps.OnDone = func(mutation.Outcome) { done.Add(1) }

	c := New(models.ModeCreate, nil, deps)
	errs := make(chan error, 1)
	go func() { errs <- c.Submit(context.Background()) }()
	<-sub.started

	c.Close()
	close(sub.release)
	<-errs

	assert.Empty(t, c.Error(), "no state mutation after close")
	assert.True(t, c.Busy())
	assert.Equal(t, int32(0), done.Load())
	assert.ErrorIs(t, c.Submit(context.Background()), ErrClosed)
}

func TestSubmit_RejectedAttachmentWarns(t *testing.T) {
	var warnings []string
	deps := fastDeps(&fakeSubmitter{})
	deps.OnWarn = func(kind models.AttachmentKind, reason string) {
		warnings = append(warnings, fmt.Sprintf("%s: %s", kind, reason))
	}
	c := New(models.ModeCreate, nil, deps)
	defer c.Close()

	c.Model.Drop(files.NewBytesFile("notes.txt", "text/plain", nil))
	assert.Equal(t, []string{"model: Por favor, selecione apenas arquivos IFC."}, warnings)
	assert.Equal(t, upload.Idle, c.Model.Snapshot().State)
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Equal(t, MsgNetwork, Message(fmt.Errorf("%w: dial tcp: refused", api.ErrNetwork)))
	assert.Equal(t, MsgMissingTarget, Message(mutation.ErrNoIdentity))
	assert.Equal(t, "Upload failed: 404 Not Found", Message(fmt.Errorf("wrapped: %w", &api.StatusError{Op: "Upload", Code: 404, Status: "Not Found"})))
	assert.Equal(t, "other", Message(errors.New("other")))
}
