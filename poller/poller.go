package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nixxel-company-limited/todo-receipts/config"
	"github.com/nixxel-company-limited/todo-receipts/logger"
	"github.com/nixxel-company-limited/todo-receipts/receipt"
	"go.uber.org/zap"
)

// Printer prints one receipt snapshot.
type Printer interface {
	Print(ctx context.Context, data receipt.Data, iface string) error
}

// Job is a pending print request queued by the cloud dashboard.
type Job struct {
	ID        string             `json:"id"`
	Todos     []receipt.TodoItem `json:"todos"`
	CreatedAt time.Time          `json:"created_at"`
}

// UnmarshalJSON accepts numeric or string ids and created_at given either as
// unix milliseconds or as an RFC 3339 string.
func (j *Job) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        json.RawMessage    `json:"id"`
		Todos     []receipt.TodoItem `json:"todos"`
		CreatedAt json.RawMessage    `json:"created_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	j.ID = strings.Trim(string(raw.ID), `"`)
	j.Todos = raw.Todos

	created := strings.TrimSpace(string(raw.CreatedAt))
	switch {
	case created == "" || created == "null":
		j.CreatedAt = time.Time{}
	case strings.HasPrefix(created, `"`):
		var s string
		if err := json.Unmarshal(raw.CreatedAt, &s); err != nil {
			return err
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid created_at %q: %w", s, err)
		}
		j.CreatedAt = ts
	default:
		ms, err := strconv.ParseInt(created, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid created_at %s: %w", created, err)
		}
		j.CreatedAt = time.UnixMilli(ms)
	}
	return nil
}

// DefaultJobTimeout bounds printing a single job.
const DefaultJobTimeout = 60 * time.Second

type pendingResponse struct {
	Jobs []Job `json:"jobs"`
}

// Poller fetches pending jobs from the cloud endpoint and prints them.
type Poller struct {
	baseURL  string
	interval time.Duration
	timeout  time.Duration
	cfg      *config.Config
	printer  Printer
	client   *http.Client
	logger   *zap.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) {
		p.client = c
	}
}

// WithJobTimeout replaces DefaultJobTimeout.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// New creates a poller that prints through printer using cfg.Printer as the
// interface. cfg.CloudURL and cfg.PollInterval select the endpoint and rate.
func New(cfg *config.Config, printer Printer, opts ...Option) *Poller {
	p := &Poller{
		baseURL:  strings.TrimRight(cfg.CloudURL, "/"),
		interval: cfg.PollInterval,
		timeout:  DefaultJobTimeout,
		cfg:      cfg,
		printer:  printer,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.Named("poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Polling for print jobs",
		zap.String("url", p.baseURL),
		zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil {
			p.logger.Warn("Poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce fetches pending jobs and prints each one. Jobs that fail to print
// are logged and left pending. It returns the number of jobs printed.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	jobs, err := p.pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	if p.cfg.Printer == "" {
		return 0, fmt.Errorf("no printer configured, run: todo-receipts config --set printer=<interface>")
	}

	printed := 0
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return printed, err
		}
		log := p.logger.With(zap.String("job", job.ID))

		if err := p.printJob(ctx, job); err != nil {
			log.Error("Failed to print job", zap.Error(err))
			continue
		}
		log.Info("Printed job", zap.Int("items", len(job.Todos)))
		printed++

		if err := p.complete(ctx, job.ID); err != nil {
			log.Warn("Failed to acknowledge job", zap.Error(err))
		}
	}
	return printed, nil
}

func (p *Poller) printJob(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ts := job.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return p.printer.Print(ctx, receipt.NewData(job.Todos, ts, p.cfg), p.cfg.Printer)
}

func (p *Poller) pending(ctx context.Context) ([]Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/print/pending", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch pending jobs: %s", resp.Status)
	}

	var body pendingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode pending jobs: %w", err)
	}
	return body.Jobs, nil
}

func (p *Poller) complete(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/api/print/%s/complete", p.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
