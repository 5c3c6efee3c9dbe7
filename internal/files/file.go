// Package files abstracts the file handles accepted by attachment slots.
package files

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// File is a handle to a file picked by the user. It is read only when previewed,
// fingerprinted or submitted.
type File interface {
	Name() string
	MediaType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// LocalFile is a File backed by a path on disk.
type LocalFile struct {
	path      string
	mediaType string
	size      int64
}

// NewLocalFile stats path and resolves its declared media type.
func NewLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	mediaType, err := DetectMediaType(path)
	if err != nil {
		return nil, err
	}
	return &LocalFile{path: path, mediaType: mediaType, size: info.Size()}, nil
}

func (f *LocalFile) Name() string      { return filepath.Base(f.path) }
func (f *LocalFile) MediaType() string { return f.mediaType }
func (f *LocalFile) Size() int64       { return f.size }
func (f *LocalFile) Path() string      { return f.path }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	// #nosec G304
	return os.Open(f.path)
}

// BytesFile is an in-memory File.
type BytesFile struct {
	name      string
	mediaType string
	data      []byte
}

// NewBytesFile returns a File holding data under name with the given media type.
func NewBytesFile(name, mediaType string, data []byte) *BytesFile {
	return &BytesFile{name: name, mediaType: mediaType, data: data}
}

func (f *BytesFile) Name() string      { return f.name }
func (f *BytesFile) MediaType() string { return f.mediaType }
func (f *BytesFile) Size() int64       { return int64(len(f.data)) }

func (f *BytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// DetectMediaType resolves the media type from the extension, falling back to
// sniffing the first 512 bytes. Parameters such as charset are dropped.
func DetectMediaType(path string) (string, error) {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return stripParams(byExt), nil
	}

	// #nosec G304
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for media type detection: %w", path, err)
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading %s for media type detection: %w", path, err)
	}
	return stripParams(http.DetectContentType(buffer[:n])), nil
}

func stripParams(mediaType string) string {
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return mediaType
	}
	return parsed
}

// DataURL encodes the file contents as a data: URL, used as an image preview payload.
func DataURL(f File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", f.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	return "data:" + f.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Fingerprint returns the hex BLAKE3 digest of the file contents.
func Fingerprint(f File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", f.Name(), err)
	}
	defer rc.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, rc); err != nil {
		return "", fmt.Errorf("hashing %s: %w", f.Name(), err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
