package models

import (
	"strings"
	"time"

	"go-case-tracker/internal/files"
)

type (
	// Config holds the application's configuration settings.
	Config struct {
		BaseURL             string            `toml:"BaseURL" json:"BaseURL"`
		DataPath            string            `toml:"DataPath" json:"DataPath"`
		DatabasePath        string            `toml:"DatabasePath" json:"DatabasePath"`
		SnapshotPath        string            `toml:"SnapshotPath" json:"SnapshotPath"`
		BleveIndexPath      string            `toml:"BleveIndexPath" json:"BleveIndexPath"`
		LogLevel            string            `toml:"LogLevel" json:"LogLevel"`
		LogFormat           string            `toml:"LogFormat" json:"LogFormat"`
		Upload              UploadConfig      `toml:"Upload" json:"Upload"`
		Form                FormConfig        `toml:"Form" json:"Form"`
		Journal             ToggleConfig      `toml:"Journal" json:"Journal"`
		Snapshot            ToggleConfig      `toml:"Snapshot" json:"Snapshot"`
		Index               ToggleConfig      `toml:"Index" json:"Index"`
		Attachments         AttachmentsConfig `toml:"Attachments" json:"Attachments"`
		APIClientTimeoutSec int               `toml:"ApiClientTimeoutSec" json:"ApiClientTimeoutSec"`
		FetchAttempts       int               `toml:"FetchAttempts" json:"FetchAttempts"`
		FetchRetryDelayMs   int               `toml:"FetchRetryDelayMs" json:"FetchRetryDelayMs"`
		LogApiRequests      bool              `toml:"LogApiRequests" json:"LogApiRequests"`
	}

	// UploadConfig drives the attachment progress simulation.
	UploadConfig struct {
		TotalMs    int `toml:"TotalMs" json:"TotalMs"`
		IntervalMs int `toml:"IntervalMs" json:"IntervalMs"`
	}

	// FormConfig holds settings for the case form.
	FormConfig struct {
		SettleDelayMs int `toml:"SettleDelayMs" json:"SettleDelayMs"`
	}

	// AttachmentsConfig controls where downloaded case attachments are written.
	AttachmentsConfig struct {
		OutputDir   string `toml:"OutputDir" json:"OutputDir"`
		PathPattern string `toml:"PathPattern" json:"PathPattern"`
	}

	// ToggleConfig switches an optional local store on or off.
	ToggleConfig struct {
		Enabled bool `toml:"Enabled" json:"Enabled"`
	}
)

// AttachmentKind identifies one of the two upload targets of a case form.
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindModel AttachmentKind = "model"
)

// Valid reports whether k is a known attachment kind.
func (k AttachmentKind) Valid() bool {
	return k == KindImage || k == KindModel
}

// FieldName is the multipart field the attachment is submitted under.
func (k AttachmentKind) FieldName() string {
	if k == KindImage {
		return "img"
	}
	return "ifc"
}

// Accept is the chooser filter for the kind, in the browser "accept" syntax.
func (k AttachmentKind) Accept() string {
	if k == KindImage {
		return "image/*"
	}
	return ".ifc"
}

// Mode says whether a form inserts a new case or updates an existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Case is one tracked record as returned by the collaborator store.
type Case struct {
	ID           int     `json:"id"`
	Name         string  `json:"caso"`
	Description  string  `json:"descricao"`
	Progress     float64 `json:"progress_pct"`
	ImageRef     *string `json:"img_path"`
	ModelRef     *string `json:"ifc_path"`
	DisplayDate  string  `json:"data"`
	CreatedAtISO string  `json:"uploaded_at_iso"`
}

// CaseList is the body of GET /casos.
type CaseList struct {
	Cases []Case `json:"cases"`
}

// IsPlaceholder reports whether c is the zero-valued "add new" card.
func (c Case) IsPlaceholder() bool {
	return c.ID == 0
}

// NormalizedProgress clamps the completion percentage to [0,100].
func (c Case) NormalizedProgress() float64 {
	if c.Progress < 0 {
		return 0
	}
	if c.Progress > 100 {
		return 100
	}
	return c.Progress
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// CreatedAt parses the creation instant. Instants without a zone are taken as UTC.
func (c Case) CreatedAt() (time.Time, bool) {
	raw := strings.TrimSpace(c.CreatedAtISO)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateLabel is the human display date, derived from the instant when the store sent none.
func (c Case) DateLabel() string {
	if c.DisplayDate != "" {
		return c.DisplayDate
	}
	if t, ok := c.CreatedAt(); ok {
		return t.Format("02/01/2006")
	}
	return c.CreatedAtISO
}

// Submission is the payload of one create or update call.
// Image and Model are nil when the slot holds no local file.
type Submission struct {
	Mode        Mode
	TargetID    int
	Name        string
	Description string
	Image       files.File
	Model       files.File
}

// Journal status constants
const (
	StatusPending = "Pending"
	StatusDone    = "Done"
	StatusError   = "Error"
)

// Journal operation constants
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// JournalEntry records one mutation sent to the store.
type JournalEntry struct {
	ID           string    `json:"id"`
	Operation    string    `json:"operation"`
	CaseID       int       `json:"case_id"`
	CaseName     string    `json:"case_name"`
	ImageName    string    `json:"image_name,omitempty"`
	ImageHash    string    `json:"image_hash,omitempty"`
	ModelName    string    `json:"model_name,omitempty"`
	ModelHash    string    `json:"model_hash,omitempty"`
	Status       string    `json:"status"`
	ErrorDetails string    `json:"error_details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
