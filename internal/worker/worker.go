package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/exports"
	"github.com/surapp/backend/pkg/queue"
	"github.com/surapp/backend/pkg/storage"
)

// JobQueue is the part of queue.Queue the processor needs.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Uploader stores a rendered export. *storage.S3 implements it.
type Uploader interface {
	Upload(ctx context.Context, key, contentType, filename string, body io.Reader) error
}

// ExportProcessor processes export jobs: render the voting, upload to S3.
type ExportProcessor struct {
	renderer *exports.Renderer
	uploader Uploader
	queue    JobQueue
	backoff  time.Duration
	logger   *zap.Logger
}

// NewExportProcessor creates an export processor.
func NewExportProcessor(renderer *exports.Renderer, uploader Uploader, q JobQueue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{renderer: renderer, uploader: uploader, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one export job. A voting deleted since the job was queued
// is skipped without error.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	f, err := p.renderer.Render(ctx, payload.VotingID, payload.Format)
	if errors.Is(err, domainerrors.ErrNotFound) {
		p.logger.Info("voting gone, export skipped", zap.String("job_id", job.ID), zap.Int64("voting_id", payload.VotingID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	key := storage.ExportKey(payload.VotingID, job.ID, f.Ext)
	if err := p.uploader.Upload(ctx, key, f.ContentType, f.Name, bytes.NewReader(f.Body)); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	p.logger.Info("export completed", zap.String("job_id", job.ID), zap.Int64("voting_id", payload.VotingID), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
