package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/models"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		file     files.File
		kind     models.AttachmentKind
		accepted bool
	}{
		{name: "png image", file: files.NewBytesFile("photo.png", "image/png", nil), kind: models.KindImage, accepted: true},
		{name: "jpeg image", file: files.NewBytesFile("photo.JPG", "image/jpeg", nil), kind: models.KindImage, accepted: true},
		{name: "image declared by type not name", file: files.NewBytesFile("scan", "image/webp", nil), kind: models.KindImage, accepted: true},
		{name: "text as image", file: files.NewBytesFile("notes.txt", "text/plain", nil), kind: models.KindImage, accepted: false},
		{name: "missing media type", file: files.NewBytesFile("photo.png", "", nil), kind: models.KindImage, accepted: false},
		{name: "ifc model", file: files.NewBytesFile("tower.ifc", "application/octet-stream", nil), kind: models.KindModel, accepted: true},
		{name: "ifc uppercase extension", file: files.NewBytesFile("TOWER.IFC", "", nil), kind: models.KindModel, accepted: true},
		{name: "text as model", file: files.NewBytesFile("notes.txt", "text/plain", nil), kind: models.KindModel, accepted: false},
		{name: "ifc substring only", file: files.NewBytesFile("tower.ifc.zip", "application/zip", nil), kind: models.KindModel, accepted: false},
		{name: "image as model", file: files.NewBytesFile("photo.png", "image/png", nil), kind: models.KindModel, accepted: false},
		{name: "unknown kind", file: files.NewBytesFile("photo.png", "image/png", nil), kind: models.AttachmentKind("video"), accepted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.file, tt.kind)
			if tt.accepted {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))

			var rejection *RejectionError
			require.True(t, errors.As(err, &rejection))
			assert.Equal(t, tt.kind, rejection.Kind)
			assert.NotEmpty(t, rejection.Reason)
		})
	}
}

func TestValidate_NilFile(t *testing.T) {
	err := Validate(nil, models.KindImage)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestValidate_Reasons(t *testing.T) {
	reason := func(err error) string {
		var rejection *RejectionError
		require.True(t, errors.As(err, &rejection))
		return rejection.Reason
	}
	text := files.NewBytesFile("notes.txt", "text/plain", nil)

	assert.Equal(t, messages.NoFileSelected, reason(Validate(nil, models.KindModel)))
	assert.Equal(t, messages.OnlyImageFiles, reason(Validate(text, models.KindImage)))
	assert.Equal(t, messages.OnlyIFCFiles, reason(Validate(text, models.KindModel)))
}

func TestValidate_Deterministic(t *testing.T) {
	f := files.NewBytesFile("notes.txt", "text/plain", []byte("hello"))
	first := Validate(f, models.KindModel)
	for i := 0; i < 5; i++ {
		again := Validate(f, models.KindModel)
		assert.Equal(t, first.Error(), again.Error())
	}
	// Validation does not consume the file
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 5)
	n, _ := rc.Read(buf)
	assert.Equal(t, "hello", string(buf[:n]))
}
