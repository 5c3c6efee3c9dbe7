package helpers

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
)

// CounterWriter counts the bytes written through it. OnWrite, when set, is
// called with the running total after every write.
type CounterWriter struct {
	Writer  io.Writer
	Total   uint64
	OnWrite func(total uint64)
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	if cw.OnWrite != nil {
		cw.OnWrite(cw.Total)
	}
	return n, err
}

// BytesToSize renders a byte count with a binary unit suffix.
func BytesToSize(bytes uint64) string {
	if bytes == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", value, units[i])
}

// SanitizePath cleans a user supplied path and strips parent traversal.
func SanitizePath(path string) string {
	cleaned := filepath.Clean(path)
	parts := strings.Split(cleaned, string(filepath.Separator))
	kept := parts[:0]
	for _, p := range parts {
		if p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, string(filepath.Separator))
}

// CheckAndMakeDir makes sure dir exists, creating it when missing.
func CheckAndMakeDir(dir string) bool {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", dir)
		return false
	}
	return true
}

// BaseNameFromRef derives the file name shown for a remote attachment reference.
// URLs contribute the last path segment; anything else is split on "/".
func BaseNameFromRef(ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		return lastSegment(u.Path)
	}
	return lastSegment(ref)
}

func lastSegment(p string) string {
	segments := strings.Split(p, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}

// ConvertToSlug turns a display name into a single path segment: lower case,
// spaces become underscores, anything but letters, digits, '_', '-' and '.'
// is dropped and runs of dots collapse to one.
func ConvertToSlug(s string) string {
	var b strings.Builder
	lastDot := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			b.WriteRune(r)
			lastDot = false
		case unicode.IsSpace(r):
			b.WriteRune('_')
			lastDot = false
		case r == '.':
			if !lastDot {
				b.WriteRune(r)
			}
			lastDot = true
		}
	}
	return strings.Trim(b.String(), ".")
}
