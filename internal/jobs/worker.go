package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/domeme-scraper/internal/models"
	"github.com/maltedev/domeme-scraper/internal/queue"
)

// StartWorker runs queued jobs one at a time until ctx is done or the
// queue is closed and drained.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to pop job", "error", err)
			continue
		}
		m.processJob(ctx, task.ID)
	}
}

func (m *Manager) processJob(ctx context.Context, id string) {
	job, err := m.GetJob(id)
	if err != nil {
		m.logger.Warn("dropping unknown job", "id", id)
		return
	}

	m.logger.Info("processing job", "id", id, "kind", job.Kind)
	m.updateJobStatus(id, StatusRunning, nil)

	switch job.Kind {
	case KindSearch:
		err = m.runSearch(ctx, id, *job.Search)
	case KindStaging:
		err = m.runStaging(ctx, id, job.Staging.Keyword, job.Staging.ProductIDs)
	default:
		err = fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, job.Kind)
	}

	if err != nil {
		m.logger.Error("job failed", "id", id, "error", err)
		m.metrics.IncError(err)
		m.updateJobStatus(id, StatusFailed, err)
		return
	}

	m.updateJobStatus(id, StatusCompleted, nil)
	m.logger.Info("job completed", "id", id)
}

func (m *Manager) runSearch(ctx context.Context, id string, p SearchParams) error {
	req, err := p.request()
	if err != nil {
		return err
	}

	res, err := m.runner.Search(ctx, req)
	if err != nil {
		m.records.Add(id, nil)
		return err
	}

	m.records.Add(id, res.Records)
	m.update(id, func(j *Job) {
		j.Records = len(res.Records)
		j.Pages = res.Pages
		j.StopReason = string(res.Stop)
	})

	if m.recorder != nil {
		if err := m.recorder.PublishSearch(ctx, m.runner.Source(), res); err != nil {
			m.logger.Error("failed to store search", "id", id, "error", err)
		}
	}

	// Records gathered before a page failure stay available.
	if res.Err != nil {
		return res.Err
	}

	if p.Stage {
		// Staging selects on the loaded result page only.
		ids := res.Visible
		if unstaged := models.WithoutIDs(models.IDs(res.Records), ids); len(unstaged) > 0 {
			m.logger.Warn("ids from earlier pages are not staged", "id", id, "count", len(unstaged))
			m.update(id, func(j *Job) { j.Unstaged = unstaged })
		}
		if len(ids) == 0 {
			m.logger.Info("nothing to stage", "id", id, "keyword", p.Keyword)
			return nil
		}
		return m.runStaging(ctx, id, p.Keyword, ids)
	}
	return nil
}

func (m *Manager) runStaging(ctx context.Context, id, keyword string, ids []string) error {
	rep, err := m.runner.Stage(ctx, ids)
	if err != nil {
		return err
	}

	m.update(id, func(j *Job) {
		j.Stage = rep.Stage.String()
		j.Staged = append([]string(nil), rep.Selected...)
	})

	if m.recorder != nil {
		if err := m.recorder.PublishStaging(ctx, m.runner.Source(), keyword, rep); err != nil {
			m.logger.Error("failed to store staging batch", "id", id, "error", err)
		}
	}

	if !rep.Success {
		if rep.Err != nil {
			return rep.Err
		}
		return fmt.Errorf("staging stopped at %s", rep.Stage)
	}
	return nil
}

func (m *Manager) updateJobStatus(id string, status Status, jobErr error) {
	now := time.Now()
	var kind Kind

	m.update(id, func(j *Job) {
		kind = j.Kind
		j.Status = status
		switch status {
		case StatusRunning:
			j.StartedAt = &now
		case StatusCompleted, StatusFailed:
			j.CompletedAt = &now
		}
		if jobErr != nil {
			j.Error = jobErr.Error()
		}
	})

	if status != StatusRunning {
		m.metrics.IncJob(string(kind), string(status))
	}
}
