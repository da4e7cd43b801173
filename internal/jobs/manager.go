// Package jobs queues search and staging requests for the single worker
// that owns the browser session.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maltedev/domeme-scraper/internal/metrics"
	"github.com/maltedev/domeme-scraper/internal/models"
	"github.com/maltedev/domeme-scraper/internal/price"
	"github.com/maltedev/domeme-scraper/internal/queue"
	"github.com/maltedev/domeme-scraper/internal/search"
	"github.com/maltedev/domeme-scraper/internal/staging"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrRecordsEvicted  = errors.New("job records are no longer cached")
	ErrInvalidJob      = errors.New("invalid job request")
	ErrRecordsNotReady = errors.New("job has not finished")
)

type Kind string

const (
	KindSearch  Kind = "search"
	KindStaging Kind = "staging"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type SearchParams struct {
	Keyword    string `json:"keyword"`
	MaxResults int    `json:"max_results"`
	MaxPages   int    `json:"max_pages"`
	// MinPrice is nil when the caller left it out; 0 disables the bound.
	MinPrice   *int   `json:"min_price,omitempty"`
	MaxPrice   int    `json:"max_price,omitempty"`
	Mode       string `json:"mode,omitempty"`
	// Stage forwards the found product ids to the staging workflow.
	Stage bool `json:"stage,omitempty"`
}

type StagingParams struct {
	ProductIDs []string `json:"product_ids"`
	Keyword    string   `json:"keyword,omitempty"`
}

type Job struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Status      Status         `json:"status"`
	Priority    int            `json:"priority"`
	Search      *SearchParams  `json:"search,omitempty"`
	Staging     *StagingParams `json:"staging,omitempty"`
	Records     int            `json:"records"`
	Pages       int            `json:"pages"`
	StopReason  string         `json:"stop_reason,omitempty"`
	Stage       string         `json:"stage,omitempty"`
	Staged      []string       `json:"staged,omitempty"`
	Unstaged    []string       `json:"unstaged,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Runner executes jobs against a browser session.
type Runner interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
	Stage(ctx context.Context, ids []string) (*staging.Report, error)
	Source() models.Source
}

// Recorder persists finished work. It is optional.
type Recorder interface {
	PublishSearch(ctx context.Context, source models.Source, res *search.Result) error
	PublishStaging(ctx context.Context, source models.Source, keyword string, rep *staging.Report) error
}

type Config struct {
	// CacheSize bounds how many finished jobs keep their records.
	CacheSize int
	// Defaults fill unset search parameters.
	Defaults SearchParams
}

type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	queue    queue.Queue
	records  *lru.Cache[string, []models.ProductRecord]
	runner   Runner
	recorder Recorder
	defaults SearchParams
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewManager(q queue.Queue, runner Runner, recorder Recorder, cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, []models.ProductRecord](size)
	if err != nil {
		return nil, fmt.Errorf("create record cache: %w", err)
	}
	return &Manager{
		jobs:     make(map[string]*Job),
		queue:    q,
		records:  cache,
		runner:   runner,
		recorder: recorder,
		defaults: cfg.Defaults,
		metrics:  m,
		logger:   logger.With("component", "job_manager"),
	}, nil
}

// CreateSearch validates p, fills defaults and queues the job.
func (m *Manager) CreateSearch(p SearchParams) (*Job, error) {
	p.Keyword = strings.TrimSpace(p.Keyword)
	if p.Keyword == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, search.ErrEmptyKeyword)
	}
	if p.MaxResults <= 0 {
		p.MaxResults = m.defaults.MaxResults
	}
	if p.MaxPages <= 0 {
		p.MaxPages = m.defaults.MaxPages
	}
	if p.MinPrice == nil {
		p.MinPrice = m.defaultMinPrice(p.MaxPrice)
	}
	if p.Mode == "" {
		p.Mode = m.defaults.Mode
	}
	if _, err := search.ParseMode(p.Mode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if floor := *p.MinPrice; floor < 0 || p.MaxPrice < 0 || (p.MaxPrice > 0 && floor > p.MaxPrice) {
		return nil, fmt.Errorf("%w: price range %d..%d", ErrInvalidJob, floor, p.MaxPrice)
	}

	return m.enqueue(&Job{Kind: KindSearch, Search: &p})
}

// defaultMinPrice is the configured minimum, dropped when it would exceed an
// explicit maximum the caller asked for.
func (m *Manager) defaultMinPrice(maxPrice int) *int {
	floor := 0
	if m.defaults.MinPrice != nil {
		floor = *m.defaults.MinPrice
	}
	if maxPrice > 0 && floor > maxPrice {
		floor = 0
	}
	return &floor
}

// CreateStaging queues a staging run. Staging jobs jump ahead of searches
// so they run while the result page they refer to is still current.
func (m *Manager) CreateStaging(p StagingParams) (*Job, error) {
	ids := make([]string, 0, len(p.ProductIDs))
	for _, id := range p.ProductIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	p.ProductIDs = ids
	return m.enqueue(&Job{Kind: KindStaging, Staging: &p, Priority: 10})
}

func (m *Manager) enqueue(job *Job) (*Job, error) {
	job.ID = uuid.New().String()
	job.Status = StatusQueued
	job.CreatedAt = time.Now()

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if err := m.queue.Push(&queue.Task{ID: job.ID, Kind: string(job.Kind), Priority: job.Priority, CreatedAt: job.CreatedAt}); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("queue job: %w", err)
	}

	m.logger.Info("job queued", "id", job.ID, "kind", job.Kind)
	return m.snapshot(job), nil
}

func (m *Manager) snapshot(job *Job) *Job {
	cp := *job
	if job.Search != nil {
		s := *job.Search
		cp.Search = &s
	}
	if job.Staging != nil {
		s := *job.Staging
		s.ProductIDs = append([]string(nil), job.Staging.ProductIDs...)
		cp.Staging = &s
	}
	cp.Staged = append([]string(nil), job.Staged...)
	cp.Unstaged = append([]string(nil), job.Unstaged...)
	return &cp
}

func (m *Manager) GetJob(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return m.snapshot(job), nil
}

// ListJobs returns jobs newest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, m.snapshot(job))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Records returns the records of a finished search job. Staging jobs have
// none.
func (m *Manager) Records(id string) ([]models.ProductRecord, error) {
	job, err := m.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.Status == StatusQueued || job.Status == StatusRunning {
		return nil, ErrRecordsNotReady
	}
	if job.Kind != KindSearch {
		return nil, nil
	}
	recs, ok := m.records.Get(id)
	if !ok {
		return nil, ErrRecordsEvicted
	}
	return recs, nil
}

func (m *Manager) QueueSize() int {
	return m.queue.Size()
}

func (m *Manager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
	}
}

func (p SearchParams) minPrice() int {
	if p.MinPrice == nil {
		return 0
	}
	return *p.MinPrice
}

func (p SearchParams) request() (search.Request, error) {
	mode, err := search.ParseMode(p.Mode)
	if err != nil {
		return search.Request{}, err
	}
	return search.Request{
		Keyword:    p.Keyword,
		MaxResults: p.MaxResults,
		MaxPages:   p.MaxPages,
		Filter:     price.Filter{Min: price.Bound(p.minPrice()), Max: price.Bound(p.MaxPrice)},
		Mode:       mode,
	}, nil
}
