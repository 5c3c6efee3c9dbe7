// Package validator decides whether a file may fill an attachment slot.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/models"
)

// ErrRejected is wrapped by every rejection.
var ErrRejected = errors.New("file rejected")

// RejectionError carries the user facing reason for a rejection.
type RejectionError struct {
	Kind   models.AttachmentKind
	Name   string
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// Validate returns nil when f is acceptable for kind, or a *RejectionError.
func Validate(f files.File, kind models.AttachmentKind) error {
	if f == nil {
		return &RejectionError{Kind: kind, Reason: messages.NoFileSelected}
	}

	switch kind {
	case models.KindImage:
		if !strings.HasPrefix(strings.ToLower(f.MediaType()), "image/") {
			return &RejectionError{Kind: kind, Name: f.Name(), Reason: messages.OnlyImageFiles}
		}
	case models.KindModel:
		if !strings.HasSuffix(strings.ToLower(f.Name()), ".ifc") {
			return &RejectionError{Kind: kind, Name: f.Name(), Reason: messages.OnlyIFCFiles}
		}
	default:
		return &RejectionError{Kind: kind, Name: f.Name(), Reason: fmt.Sprintf(messages.UnknownKindFmt, string(kind))}
	}
	return nil
}
