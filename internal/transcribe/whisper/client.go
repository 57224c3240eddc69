// Package whisper provides a Transcriber backed by a self-hosted
// Whisper HTTP endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JarrySand/whisper-discord-sub000/internal/observability/logging"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe"
)

// Config configures the Whisper HTTP client.
type Config struct {
	URL       string // transcription endpoint
	HealthURL string // defaults to URL base + /health
	Language  string
	Timeout   time.Duration
	BeamSize  int
	Translate bool
}

// Client implements transcribe.Transcriber against a Whisper server.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// New creates a Whisper client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("whisper: URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HealthURL == "" {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("whisper: invalid URL: %w", err)
		}
		u.Path = "/health"
		u.RawQuery = ""
		cfg.HealthURL = u.String()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logging.WithComponent("whisper"),
	}, nil
}

type response struct {
	Text         string  `json:"text"`
	Language     string  `json:"language,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	ProcessingMs int64   `json:"processing_ms,omitempty"`
}

// Transcribe POSTs the segment's audio and decodes the JSON result.
// 5xx, 408 and 429 map to transient errors; other 4xx are permanent.
func (c *Client) Transcribe(ctx context.Context, req *transcribe.Request) (*transcribe.Result, error) {
	endpoint, err := c.buildURL(req)
	if err != nil {
		return nil, transcribe.NewPermanentError(0, err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return nil, transcribe.NewPermanentError(0, err.Error())
	}
	httpReq.Header.Set("Content-Type", contentType(req.Format))

	sent := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transcribe.NewTransientError(0, err.Error())
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, transcribe.NewTransientError(resp.StatusCode, "malformed response: "+err.Error())
	}

	processingMs := out.ProcessingMs
	if v := resp.Header.Get("X-Processing-Time-ms"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			processingMs = n
		}
	}
	if processingMs == 0 {
		processingMs = time.Since(sent).Milliseconds()
	}

	c.log.Debug().
		Str("speaker_id", req.SpeakerID).
		Int("bytes", len(req.Audio)).
		Int64("processing_ms", processingMs).
		Msg("whisper response received")

	return &transcribe.Result{
		Text:             strings.TrimSpace(out.Text),
		Confidence:       out.Confidence,
		ProcessingTimeMs: processingMs,
	}, nil
}

// HealthCheck GETs the server's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.HealthURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whisper health status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) buildURL(req *transcribe.Request) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	lang := req.Language
	if lang == "" {
		lang = c.cfg.Language
	}
	if lang != "" {
		q.Set("language", lang)
	}
	if c.cfg.Translate {
		q.Set("task", "translate")
	}
	if c.cfg.BeamSize > 0 {
		q.Set("beam_size", strconv.Itoa(c.cfg.BeamSize))
	}
	if len(req.Hotwords) > 0 {
		q.Set("initial_prompt", strings.Join(req.Hotwords, ", "))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func contentType(format string) string {
	if strings.HasPrefix(format, "ogg") {
		return "audio/ogg"
	}
	return "audio/wav"
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 500,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests:
		return transcribe.NewTransientError(status, http.StatusText(status))
	default:
		return transcribe.NewPermanentError(status, http.StatusText(status))
	}
}
