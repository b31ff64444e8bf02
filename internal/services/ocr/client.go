// Package ocr talks to the hosted document-digitization service. A
// recognition run is an asynchronous job: create, upload the scanned PDF to
// a presigned URL, start, poll until terminal, then download the result
// archive and extract the markdown it contains.
package ocr

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"granth/internal/config"
	"granth/internal/services"
)

const stageName = "recognize"

// Job states reported by the service. PartiallyCompleted still yields a
// usable result archive.
const (
	StateAccepted           = "Accepted"
	StatePending            = "Pending"
	StateRunning            = "Running"
	StatePartiallyCompleted = "PartiallyCompleted"
	StateCompleted          = "Completed"
	StateFailed             = "Failed"
)

// Client drives the document recognition job API.
type Client struct {
	cfg          config.OCR
	http         *resty.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	sleeper      func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithPollInterval overrides the configured poll cadence (useful for tests).
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithPollTimeout overrides the configured poll deadline.
func WithPollTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.pollTimeout = timeout
		}
	}
}

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a recognition client from configuration.
func NewClient(cfg config.OCR, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.RequestTimeout) * time.Second).
		SetHeader("api-subscription-key", cfg.APIKey)

	client := &Client{
		cfg:          cfg,
		http:         httpClient,
		pollInterval: time.Duration(cfg.PollInterval) * time.Second,
		pollTimeout:  time.Duration(cfg.PollTimeout) * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type jobEnvelope struct {
	JobID        string `json:"job_id"`
	State        string `json:"state"`
	ErrorMessage string `json:"error_message"`
	UploadURL    string `json:"upload_url"`
	DownloadURL  string `json:"download_url"`
}

// Recognize runs one PDF through the full job lifecycle and returns the
// extracted markdown.
func (c *Client) Recognize(ctx context.Context, pdfPath string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "recognize", "ocr api key required", nil)
	}

	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "read input", pdfPath, err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		return nil, services.Wrap(services.ErrValidation, stageName, "read input",
			fmt.Sprintf("%s is not a PDF", filepath.Base(pdfPath)), nil)
	}

	jobID, err := c.createJob(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.uploadPDF(ctx, jobID, pdf); err != nil {
		return nil, err
	}
	if err := c.startJob(ctx, jobID); err != nil {
		return nil, err
	}
	if err := c.waitForCompletion(ctx, jobID); err != nil {
		return nil, err
	}
	return c.fetchResult(ctx, jobID)
}

func (c *Client) createJob(ctx context.Context) (string, error) {
	var job jobEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"language":      c.cfg.Language,
			"output_format": c.cfg.OutputFormat,
		}).
		SetResult(&job).
		Post("/doc-digitization/job")
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "create job", "request failed", err)
	}
	if resp.IsError() {
		return "", classifyStatus(resp, "create job")
	}
	if job.JobID == "" {
		return "", services.Wrap(services.ErrTransient, stageName, "create job", "response missing job_id", nil)
	}
	return job.JobID, nil
}

func (c *Client) uploadPDF(ctx context.Context, jobID string, pdf []byte) error {
	var job jobEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&job).
		Post("/doc-digitization/job/" + jobID + "/upload-url")
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "request upload url", "request failed", err)
	}
	if resp.IsError() {
		return classifyStatus(resp, "request upload url")
	}
	if job.UploadURL == "" {
		return services.Wrap(services.ErrTransient, stageName, "request upload url", "response missing upload_url", nil)
	}

	// The presigned URL points at blob storage, not the API host.
	put, err := resty.New().
		SetTimeout(time.Duration(c.cfg.RequestTimeout)*time.Second).
		R().
		SetContext(ctx).
		SetHeader("x-ms-blob-type", "BlockBlob").
		SetHeader("Content-Type", "application/pdf").
		SetBody(pdf).
		Put(job.UploadURL)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "upload pdf", "request failed", err)
	}
	if put.IsError() {
		return services.Wrap(services.ErrTransient, stageName, "upload pdf",
			fmt.Sprintf("blob storage returned %s", put.Status()), nil)
	}
	return nil
}

func (c *Client) startJob(ctx context.Context, jobID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post("/doc-digitization/job/" + jobID + "/start")
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "start job", "request failed", err)
	}
	if resp.IsError() {
		return classifyStatus(resp, "start job")
	}
	return nil
}

func (c *Client) waitForCompletion(ctx context.Context, jobID string) error {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		var job jobEnvelope
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&job).
			Get("/doc-digitization/job/" + jobID + "/status")
		if err != nil {
			return services.Wrap(services.ErrTransient, stageName, "poll job", "request failed", err)
		}
		if resp.IsError() {
			return classifyStatus(resp, "poll job")
		}

		switch job.State {
		case StateCompleted, StatePartiallyCompleted:
			return nil
		case StateFailed:
			return classifyJobFailure(job.ErrorMessage)
		case StateAccepted, StatePending, StateRunning, "":
			// keep polling
		default:
			return services.Wrap(services.ErrTransient, stageName, "poll job",
				fmt.Sprintf("unknown job state %q", job.State), nil)
		}

		if time.Now().After(deadline) {
			return services.Wrap(services.ErrTransient, stageName, "poll job",
				fmt.Sprintf("job %s not finished after %s", jobID, c.pollTimeout), nil)
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return err
		}
	}
}

func (c *Client) fetchResult(ctx context.Context, jobID string) ([]byte, error) {
	var job jobEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&job).
		Post("/doc-digitization/job/" + jobID + "/download-url")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stageName, "request download url", "request failed", err)
	}
	if resp.IsError() {
		return nil, classifyStatus(resp, "request download url")
	}
	if job.DownloadURL == "" {
		return nil, services.Wrap(services.ErrTransient, stageName, "request download url", "response missing download_url", nil)
	}

	archive, err := resty.New().
		SetTimeout(time.Duration(c.cfg.RequestTimeout)*time.Second).
		R().
		SetContext(ctx).
		Get(job.DownloadURL)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stageName, "download result", "request failed", err)
	}
	if archive.IsError() {
		return nil, services.Wrap(services.ErrTransient, stageName, "download result",
			fmt.Sprintf("blob storage returned %s", archive.Status()), nil)
	}

	markdown, err := extractMarkdown(archive.Body())
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, stageName, "extract result", "result archive unusable", err)
	}
	return markdown, nil
}

// extractMarkdown pulls the first .md entry out of the result ZIP.
func extractMarkdown(archive []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	for _, file := range reader.File {
		if strings.EqualFold(filepath.Ext(file.Name), ".md") {
			rc, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", file.Name, err)
			}
			defer rc.Close()
			content, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", file.Name, err)
			}
			return content, nil
		}
	}
	return nil, errors.New("archive contains no markdown entry")
}

// classifyJobFailure maps a terminal Failed state to the error taxonomy.
// Provider rejections that would fail identically on every retry (page
// limits, unsupported input) are permanent; everything else is transient.
func classifyJobFailure(message string) error {
	lowered := strings.ToLower(message)
	permanent := strings.Contains(lowered, "page limit") ||
		strings.Contains(lowered, "too many pages") ||
		strings.Contains(lowered, "unsupported") ||
		strings.Contains(lowered, "corrupt")
	marker := services.ErrTransient
	if permanent {
		marker = services.ErrPermanent
	}
	if message == "" {
		message = "job failed without detail"
	}
	return services.Wrap(marker, stageName, "job", message, nil)
}

func classifyStatus(resp *resty.Response, op string) error {
	marker := services.ErrTransient
	switch resp.StatusCode() {
	case 401, 403:
		marker = services.ErrConfiguration
	case 400, 404, 413, 422:
		marker = services.ErrPermanent
	}
	return services.Wrap(marker, stageName, op,
		fmt.Sprintf("service returned %s", resp.Status()), nil)
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if c.sleeper != nil {
		return c.sleeper(ctx, delay)
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
