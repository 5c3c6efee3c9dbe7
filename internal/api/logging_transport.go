package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/helpers"
)

var (
	activeLoggingTransports []*LoggingTransport
	transportsMu            sync.Mutex
)

// LoggingTransport wraps an http.RoundTripper and appends request and
// response dumps to a log file.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	writer    *bufio.Writer
	mu        sync.Mutex
}

// NewLoggingTransport opens logFilePath for appending and registers the
// transport so CloseAllLoggingTransports can flush it on exit.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	safeLogFilePath := helpers.SanitizePath(logFilePath)
	// #nosec G304
	f, err := os.OpenFile(safeLogFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", safeLogFilePath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	lt := &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}

	transportsMu.Lock()
	activeLoggingTransports = append(activeLoggingTransports, lt)
	transportsMu.Unlock()
	log.Debugf("Registered LoggingTransport for file: %s", safeLogFilePath)

	return lt, nil
}

// RoundTrip executes a single HTTP transaction and records it under its
// request id. Multipart request bodies are not dumped, and only JSON response
// bodies are.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	requestID := req.Header.Get(RequestIDHeader)

	withBody := !strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/")
	if reqDump, err := httputil.DumpRequestOut(req, withBody); err != nil {
		log.WithError(err).WithField("request_id", requestID).Error("Could not dump API request")
	} else {
		t.record(fmt.Sprintf(">>> %s %s %s\n%s", requestID, req.Method, started.Format(time.RFC3339), reqDump))
	}

	resp, err := t.Transport.RoundTrip(req)
	elapsed := time.Since(started)
	if err != nil {
		t.record(fmt.Sprintf("<<< %s failed after %v\n%s", requestID, elapsed, err))
		return nil, err
	}
	t.record(fmt.Sprintf("<<< %s %d in %v\n%s", requestID, resp.StatusCode, elapsed, responseText(resp)))
	return resp, nil
}

// responseText renders the response head and, for JSON, its body. The body
// is buffered and put back so the caller can still read it.
func responseText(resp *http.Response) string {
	head, _ := httputil.DumpResponse(resp, false)
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return fmt.Sprintf("%s(Body not logged, type %q)", head, contentType)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Error("Could not read API response body for logging")
		return fmt.Sprintf("%s(Body read failed)", head)
	}
	return fmt.Sprintf("%s%s", head, body)
}

func (t *LoggingTransport) record(entry string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLog(entry)
	if err := t.writer.Flush(); err != nil {
		log.WithError(err).Error("Failed to flush API log writer")
	}
}

func (t *LoggingTransport) writeLog(logString string) {
	if _, err := t.writer.WriteString(logString + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\nLog message: %s\n", err, logString)
	}
}

// Close flushes and closes the log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}

// CloseAllLoggingTransports closes every transport created so far.
func CloseAllLoggingTransports() {
	transportsMu.Lock()
	defer transportsMu.Unlock()

	for _, t := range activeLoggingTransports {
		if err := t.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logging transport for %s: %v\n", t.logFile.Name(), err)
		}
	}
	log.Debugf("Closed %d logging transports.", len(activeLoggingTransports))
	activeLoggingTransports = nil
}
