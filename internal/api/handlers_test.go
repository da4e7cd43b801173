package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/domeme-scraper/internal/jobs"
	"github.com/maltedev/domeme-scraper/internal/models"
)

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) CreateSearch(p jobs.SearchParams) (*jobs.Job, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) CreateStaging(p jobs.StagingParams) (*jobs.Job, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) GetJob(id string) (*jobs.Job, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) ListJobs() []*jobs.Job {
	return m.Called().Get(0).([]*jobs.Job)
}

func (m *MockJobService) Records(id string) ([]models.ProductRecord, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProductRecord), args.Error(1)
}

func (m *MockJobService) QueueSize() int {
	return m.Called().Int(0)
}

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) PendingCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutbox) DeadLetterCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(svc JobService, outbox OutboxHealth) http.Handler {
	return NewRouter(NewHandlers(svc, outbox, testLogger()), RouterOptions{})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestCreateSearch(t *testing.T) {
	minPrice, noMin := 12000, 0
	tests := []struct {
		name       string
		body       string
		setup      func(m *MockJobService)
		wantStatus int
		wantError  string
	}{
		{
			name: "queued",
			body: `{"keyword":"양말","max_results":10,"min_price":12000,"stage":true}`,
			setup: func(m *MockJobService) {
				m.On("CreateSearch", jobs.SearchParams{Keyword: "양말", MaxResults: 10, MinPrice: &minPrice, Stage: true}).
					Return(&jobs.Job{ID: "job-1", Status: jobs.StatusQueued}, nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "zero min price kept apart from omitted",
			body: `{"keyword":"양말","min_price":0,"max_price":10000}`,
			setup: func(m *MockJobService) {
				m.On("CreateSearch", jobs.SearchParams{Keyword: "양말", MinPrice: &noMin, MaxPrice: 10000}).
					Return(&jobs.Job{ID: "job-2", Status: jobs.StatusQueued}, nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "omitted min price",
			body: `{"keyword":"양말","max_price":10000}`,
			setup: func(m *MockJobService) {
				m.On("CreateSearch", jobs.SearchParams{Keyword: "양말", MaxPrice: 10000}).
					Return(&jobs.Job{ID: "job-3", Status: jobs.StatusQueued}, nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "malformed body",
			body:       `{"keyword":`,
			setup:      func(*MockJobService) {},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name: "invalid job",
			body: `{"keyword":""}`,
			setup: func(m *MockJobService) {
				m.On("CreateSearch", mock.Anything).Return(nil, fmt.Errorf("%w: search keyword is empty", jobs.ErrInvalidJob))
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "search keyword is empty",
		},
		{
			name: "queue unavailable",
			body: `{"keyword":"양말"}`,
			setup: func(m *MockJobService) {
				m.On("CreateSearch", mock.Anything).Return(nil, errors.New("queue job: queue is full"))
			},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "failed to queue job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockJobService)
			tt.setup(svc)

			rec := do(t, newServer(svc, nil), http.MethodPost, "/api/v1/searches/", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.wantError != "" {
				var body map[string]string
				decode(t, rec, &body)
				assert.Contains(t, body["error"], tt.wantError)
				return
			}
			var resp CreateJobResponse
			decode(t, rec, &resp)
			assert.Equal(t, "job-1", resp.JobID)
			assert.Equal(t, jobs.StatusQueued, resp.Status)
			svc.AssertExpectations(t)
		})
	}
}

func TestCreateStaging(t *testing.T) {
	svc := new(MockJobService)
	svc.On("CreateStaging", jobs.StagingParams{ProductIDs: []string{"100001", "100002"}, Keyword: "양말"}).
		Return(&jobs.Job{ID: "job-2", Status: jobs.StatusQueued}, nil)

	rec := do(t, newServer(svc, nil), http.MethodPost, "/api/v1/staging", `{"product_ids":["100001","100002"],"keyword":"양말"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateJobResponse
	decode(t, rec, &resp)
	assert.Equal(t, "job-2", resp.JobID)
	assert.Equal(t, "staging queued", resp.Message)
	svc.AssertExpectations(t)
}

func TestGetJob(t *testing.T) {
	svc := new(MockJobService)
	svc.On("GetJob", "job-1").Return(&jobs.Job{ID: "job-1", Kind: jobs.KindSearch, Status: jobs.StatusRunning}, nil)
	svc.On("GetJob", "nope").Return(nil, jobs.ErrJobNotFound)
	h := newServer(svc, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/searches/job-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var job jobs.Job
	decode(t, rec, &job)
	assert.Equal(t, jobs.StatusRunning, job.Status)

	rec = do(t, h, http.MethodGet, "/api/v1/searches/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	svc := new(MockJobService)
	svc.On("ListJobs").Return([]*jobs.Job{{ID: "b"}, {ID: "a"}})

	rec := do(t, newServer(svc, nil), http.MethodGet, "/api/v1/searches/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.Job
	decode(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
}

func TestGetJobRecords(t *testing.T) {
	v := 15000
	tests := []struct {
		name       string
		records    []models.ProductRecord
		err        error
		wantStatus int
		wantCount  int
	}{
		{
			name:       "finished",
			records:    []models.ProductRecord{{Source: models.SourceDomeggook, ProductID: "100001", Name: "양말", PriceValue: &v}},
			wantStatus: http.StatusOK,
			wantCount:  1,
		},
		{name: "finished empty", records: nil, wantStatus: http.StatusOK},
		{name: "unknown", err: jobs.ErrJobNotFound, wantStatus: http.StatusNotFound},
		{name: "running", err: jobs.ErrRecordsNotReady, wantStatus: http.StatusConflict},
		{name: "evicted", err: jobs.ErrRecordsEvicted, wantStatus: http.StatusGone},
		{name: "other", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockJobService)
			if tt.err != nil {
				svc.On("Records", "job-1").Return(nil, tt.err)
			} else {
				svc.On("Records", "job-1").Return(tt.records, nil)
			}

			rec := do(t, newServer(svc, nil), http.MethodGet, "/api/v1/searches/job-1/records", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp RecordsResponse
			decode(t, rec, &resp)
			assert.Equal(t, "job-1", resp.JobID)
			assert.Equal(t, tt.wantCount, resp.Count)
			assert.NotNil(t, resp.Records)
			assert.Contains(t, rec.Body.String(), `"records":[`)
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pending    int64
		dead       int64
		countErr   error
		noOutbox   bool
		wantStatus int
		wantState  string
	}{
		{name: "no relay", noOutbox: true, wantStatus: http.StatusOK, wantState: "ok"},
		{name: "healthy", pending: 3, wantStatus: http.StatusOK, wantState: "ok"},
		{name: "backlog", pending: 5000, wantStatus: http.StatusOK, wantState: "warning"},
		{name: "dead letters", dead: 101, wantStatus: http.StatusServiceUnavailable, wantState: "error"},
		{name: "outbox down", countErr: errors.New("conn refused"), wantStatus: http.StatusServiceUnavailable, wantState: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockJobService)
			svc.On("QueueSize").Return(2)

			var outbox OutboxHealth
			if !tt.noOutbox {
				ob := new(MockOutbox)
				ob.On("PendingCount", mock.Anything).Return(tt.pending, tt.countErr)
				ob.On("DeadLetterCount", mock.Anything).Return(tt.dead, nil)
				outbox = ob
			}

			rec := do(t, newServer(svc, outbox), http.MethodGet, "/health", "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]any
			decode(t, rec, &body)
			assert.Equal(t, tt.wantState, body["status"])
			assert.Equal(t, map[string]any{"size": float64(2)}, body["queue"])
			if tt.noOutbox {
				assert.NotContains(t, body, "outbox")
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "domeme_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	svc := new(MockJobService)
	h := NewRouter(NewHandlers(svc, nil, testLogger()), RouterOptions{Gatherer: reg})

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "domeme_test_total 1")

	rec = do(t, newServer(svc, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CORS(t *testing.T) {
	svc := new(MockJobService)
	svc.On("QueueSize").Return(0)
	h := NewRouter(NewHandlers(svc, nil, testLogger()), RouterOptions{AllowedOrigins: []string{"https://console.example.test"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://console.example.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://console.example.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
