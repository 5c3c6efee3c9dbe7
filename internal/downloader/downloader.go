package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/helpers"
)

// Custom Downloader Errors
var (
	ErrEmptyRef    = errors.New("attachment reference is empty")
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
)

const fallbackName = "attachment"

// Downloader fetches the stored attachments of a case to local disk.
type Downloader struct {
	client  *http.Client
	baseURL string
}

// Options tune one download.
type Options struct {
	// Overwrite replaces a file already present at the target path.
	Overwrite bool
	// Progress is called with the bytes written so far and the announced
	// length, 0 when the server sent none.
	Progress func(written, total uint64)
}

// Result describes a finished download.
type Result struct {
	Path        string
	Size        uint64
	Fingerprint string
	Skipped     bool
}

// NewDownloader creates a new Downloader instance. Relative references are
// resolved against baseURL.
func NewDownloader(client *http.Client, baseURL string) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Minute,
		}
	}
	return &Downloader{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ResolveURL turns an attachment reference into an absolute URL. Absolute
// http(s) references are returned unchanged.
func (d *Downloader) ResolveURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyRef
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return ref, nil
	}
	if d.baseURL == "" {
		return "", fmt.Errorf("%w: relative reference %q without a base URL", ErrHttpRequest, ref)
	}
	return d.baseURL + "/" + strings.TrimLeft(ref, "/"), nil
}

// DownloadAttachment downloads ref into targetDir. The file name comes from
// the Content-Disposition header, falling back to the last segment of ref.
// An existing file is kept, and reported as skipped, unless opts.Overwrite is set.
func (d *Downloader) DownloadAttachment(ctx context.Context, targetDir, ref string, opts Options) (Result, error) {
	rawURL, err := d.ResolveURL(ref)
	if err != nil {
		return Result{}, err
	}

	name := safeName(helpers.BaseNameFromRef(ref))
	if res, ok := existing(filepath.Join(targetDir, name), opts); ok {
		return res, nil
	}

	if !helpers.CheckAndMakeDir(targetDir) {
		return Result{}, fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, rawURL, err)
	}

	log.Debugf("Attempting to download attachment from URL: %s", rawURL)
	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: performing request for %s: %w", ErrHttpRequest, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("Error downloading attachment: Received status code %d from %s", resp.StatusCode, rawURL)
		return Result{}, fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, rawURL)
	}

	if headerName := filenameFromResponse(resp); headerName != "" && headerName != name {
		name = headerName
		if res, ok := existing(filepath.Join(targetDir, name), opts); ok {
			return res, nil
		}
	}
	finalPath := filepath.Join(targetDir, name)

	tempFile, err := os.CreateTemp(targetDir, name+".*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, finalPath, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	total, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	counter := &helpers.CounterWriter{Writer: tempFile}
	if opts.Progress != nil {
		counter.OnWrite = func(written uint64) { opts.Progress(written, total) }
	}

	log.Infof("Downloading %s (Size: %s)...", finalPath, helpers.BytesToSize(total))
	if _, err := io.Copy(counter, resp.Body); err != nil {
		_ = tempFile.Close()
		return Result{}, fmt.Errorf("writing to temporary file %s: %w", tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return Result{}, fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	if err := os.Rename(tempFile.Name(), finalPath); err != nil {
		return Result{}, fmt.Errorf("%w: renaming temporary file %s to %s: %w", ErrFileSystem, tempFile.Name(), finalPath, err)
	}
	shouldCleanupTemp = false

	fingerprint, err := fingerprintOf(finalPath)
	if err != nil {
		return Result{}, err
	}
	log.WithFields(log.Fields{"path": finalPath, "size": counter.Total, "blake3": fingerprint}).Info("Attachment downloaded")
	return Result{Path: finalPath, Size: counter.Total, Fingerprint: fingerprint}, nil
}

func existing(path string, opts Options) (Result, bool) {
	if opts.Overwrite {
		return Result{}, false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Result{}, false
	}
	fingerprint, err := fingerprintOf(path)
	if err != nil {
		log.WithError(err).Warnf("Existing file %s could not be read, downloading again", path)
		return Result{}, false
	}
	log.Infof("Found existing file %s. Skipping download.", path)
	return Result{Path: path, Size: uint64(info.Size()), Fingerprint: fingerprint, Skipped: true}, true
}

func fingerprintOf(path string) (string, error) {
	f, err := files.NewLocalFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	return files.Fingerprint(f)
}

// filenameFromResponse extracts the file name from the Content-Disposition header.
func filenameFromResponse(resp *http.Response) string {
	contentDisposition := resp.Header.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		log.WithError(err).Warnf("Could not parse Content-Disposition header: %s", contentDisposition)
		return ""
	}
	if params["filename"] == "" {
		return ""
	}
	return safeName(params["filename"])
}

// safeName keeps only the base name so a server supplied name cannot leave
// the target directory.
func safeName(name string) string {
	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if name == "/" || name == "." || name == "" {
		return fallbackName
	}
	return name
}
