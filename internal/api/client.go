package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/helpers"
	"go-case-tracker/internal/models"
)

// Custom Error Types
var (
	ErrNotFound    = errors.New("API resource not found")
	ErrServerError = errors.New("API server error")
	ErrNetwork     = errors.New("network error")
)

const (
	DefaultBaseURL  = "http://localhost:8000"
	RequestIDHeader = "X-Request-ID"

	casesPath       = "casos"
	maxErrorBodyLen = 4096
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op     string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s failed: %d %s", e.Op, e.Code, e.Status)
	if e.Body != "" {
		msg += " — " + e.Body
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code >= 500:
		return ErrServerError
	default:
		return nil
	}
}

// Client talks to the case store over HTTP.
type Client struct {
	BaseURL         string
	HttpClient      *http.Client
	FetchAttempts   uint
	FetchRetryDelay time.Duration
}

// NewClient creates a new API client
func NewClient(httpClient *http.Client, cfg models.Config) *Client {
	if httpClient == nil {
		timeout := 30 * time.Second
		if cfg.APIClientTimeoutSec > 0 {
			timeout = time.Duration(cfg.APIClientTimeoutSec) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	attempts := uint(3)
	if cfg.FetchAttempts > 0 {
		attempts = uint(cfg.FetchAttempts)
	}
	delay := 500 * time.Millisecond
	if cfg.FetchRetryDelayMs > 0 {
		delay = time.Duration(cfg.FetchRetryDelayMs) * time.Millisecond
	}
	log.Debugf("NewClient called for %s (API logging handled by transport if enabled)", base)

	return &Client{
		BaseURL:         base,
		HttpClient:      httpClient,
		FetchAttempts:   attempts,
		FetchRetryDelay: delay,
	}
}

// ListCases fetches the whole collection. Transport failures and 5xx
// responses are retried; the call is one logical fetch for the caller.
func (c *Client) ListCases(ctx context.Context) ([]models.Case, error) {
	var list models.CaseList
	err := retry.Do(
		func() error {
			return c.getJSON(ctx, "Fetch cases", &list, casesPath)
		},
		retry.Attempts(c.FetchAttempts),
		retry.LastErrorOnly(true),
		retry.Delay(c.FetchRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("Retrying case list fetch (%d/%d)...", n+1, c.FetchAttempts)
		}),
	)
	if err != nil {
		return nil, err
	}
	if list.Cases == nil {
		list.Cases = []models.Case{}
	}
	return list.Cases, nil
}

// GetCase fetches a single case.
func (c *Client) GetCase(ctx context.Context, id int) (models.Case, error) {
	var kase models.Case
	if err := c.getJSON(ctx, "Fetch case", &kase, casesPath, strconv.Itoa(id)); err != nil {
		return models.Case{}, err
	}
	return kase, nil
}

// CreateCase sends POST /casos with the multipart submission.
func (c *Client) CreateCase(ctx context.Context, sub models.Submission) (models.Case, error) {
	return c.sendSubmission(ctx, http.MethodPost, sub, casesPath)
}

// UpdateCase sends PUT /casos/{id} with the multipart submission.
func (c *Client) UpdateCase(ctx context.Context, id int, sub models.Submission) (models.Case, error) {
	return c.sendSubmission(ctx, http.MethodPut, sub, casesPath, strconv.Itoa(id))
}

// DeleteCase sends DELETE /casos/{id}.
func (c *Client) DeleteCase(ctx context.Context, id int) error {
	req, err := c.newRequest(ctx, http.MethodDelete, nil, casesPath, strconv.Itoa(id))
	if err != nil {
		return err
	}
	resp, err := c.do(req, "Delete")
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

// SeedSamples asks the store to insert its demo cases.
func (c *Client) SeedSamples(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, nil, "seed")
	if err != nil {
		return err
	}
	resp, err := c.do(req, "Seed")
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, op string, into any, segments ...string) error {
	req, err := c.newRequest(ctx, http.MethodGet, nil, segments...)
	if err != nil {
		return err
	}
	resp, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		log.WithError(err).Errorf("Error unmarshalling %s response JSON", op)
		return fmt.Errorf("error unmarshalling response JSON: %w", err)
	}
	return nil
}

func (c *Client) sendSubmission(ctx context.Context, method string, sub models.Submission, segments ...string) (models.Case, error) {
	pr, pw := io.Pipe()
	counter := &helpers.CounterWriter{Writer: pw}
	mw := multipart.NewWriter(counter)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeSubmission(mw, sub))
	}()

	req, err := c.newRequest(ctx, method, pr, segments...)
	if err != nil {
		pr.Close()
		<-done
		return models.Case{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req, "Upload")
	pr.Close()
	<-done
	if err != nil {
		return models.Case{}, err
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"method":  method,
		"url":     req.URL.String(),
		"payload": helpers.BytesToSize(counter.Total),
	}).Debug("Submission sent")

	var kase models.Case
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		return kase, nil
	}
	if err := json.Unmarshal(body, &kase); err != nil {
		log.WithError(err).Debug("Submission response is not a case")
	}
	return kase, nil
}

func writeSubmission(mw *multipart.Writer, sub models.Submission) error {
	if err := writeFilePart(mw, models.KindImage.FieldName(), sub.Image); err != nil {
		return err
	}
	if err := writeFilePart(mw, models.KindModel.FieldName(), sub.Model); err != nil {
		return err
	}
	if err := mw.WriteField("caso", sub.Name); err != nil {
		return err
	}
	if err := mw.WriteField("desc", sub.Description); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(mw *multipart.Writer, field string, f files.File) error {
	if f == nil {
		return nil
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, quoteEscaper.Replace(f.Name())))
	contentType := f.MediaType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", field, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name(), err)
	}
	defer rc.Close()
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("writing %s: %w", f.Name(), err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, body io.Reader, segments ...string) (*http.Request, error) {
	reqURL, err := url.JoinPath(c.BaseURL, segments...)
	if err != nil {
		return nil, fmt.Errorf("error building URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		log.WithError(err).Errorf("Error creating request for %s", reqURL)
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	logger := log.WithFields(log.Fields{
		"method":     req.Method,
		"url":        req.URL.String(),
		"request_id": req.Header.Get(RequestIDHeader),
	})

	resp, err := c.HttpClient.Do(req) // Transport will log if enabled
	if err != nil {
		logger.WithError(err).Debug("HTTP request failed")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		drainAndClose(resp.Body)
		statusErr := &StatusError{
			Op:     op,
			Code:   resp.StatusCode,
			Status: http.StatusText(resp.StatusCode),
			Body:   strings.TrimSpace(string(body)),
		}
		logger.WithField("status", resp.StatusCode).Debug(statusErr.Error())
		return nil, statusErr
	}

	logger.WithField("status", resp.StatusCode).Debug("HTTP request succeeded")
	return resp, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServerError)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
