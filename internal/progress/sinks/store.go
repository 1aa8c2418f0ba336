package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress"
	"github.com/JakeFAU/linkcheck/internal/store"
)

// StoreSink exports crawl runs and page results to a store.ResultRepository.
// Page rows are buffered and written in one transaction per run boundary or
// batch end, so a run row always exists before its pages and is finished
// after them.
type StoreSink struct {
	repo   store.ResultRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.ResultRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume persists the batch in event order.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var pages []store.PageResult
	flush := func() error {
		if len(pages) == 0 {
			return nil
		}
		if err := s.repo.InsertPageResults(ctx, pages); err != nil {
			return fmt.Errorf("export %d page results: %w", len(pages), err)
		}
		pages = nil
		return nil
	}

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageFetchDone:
			pages = append(pages, pageResult(evt))
		case progress.StageCrawlStart:
			if err := flush(); err != nil {
				return err
			}
			run := store.Run{
				ID:        evt.RunUUID(),
				Seed:      evt.URL,
				Host:      evt.Site,
				StartedAt: evt.TS,
				Status:    store.RunRunning,
			}
			if err := s.repo.StartRun(ctx, run); err != nil {
				return fmt.Errorf("export crawl start: %w", err)
			}
		case progress.StageCrawlDone, progress.StageCrawlError:
			if err := flush(); err != nil {
				return err
			}
			if err := s.finishRun(ctx, evt); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (s *StoreSink) finishRun(ctx context.Context, evt progress.Event) error {
	status := store.RunClean
	switch {
	case evt.Stage == progress.StageCrawlError:
		status = store.RunInterrupted
	case evt.Errors > 0:
		status = store.RunFailed
	}
	var note *string
	if evt.Note != "" {
		note = &evt.Note
	}
	if err := s.repo.FinishRun(ctx, evt.RunUUID(), evt.TS, status, evt.Pages, evt.Errors, note); err != nil {
		return fmt.Errorf("export crawl finish: %w", err)
	}
	s.logger.Debug("crawl run exported", zap.String("run_id", evt.RunUUID().String()), zap.String("status", string(status)))
	return nil
}

func pageResult(evt progress.Event) store.PageResult {
	p := store.PageResult{
		RunID:     evt.RunUUID(),
		URL:       evt.URL,
		Source:    evt.Source,
		Healthy:   evt.Healthy,
		Duration:  evt.Dur,
		FetchedAt: evt.TS,
	}
	if evt.StatusCode != 0 {
		code := evt.StatusCode
		p.StatusCode = &code
	}
	if evt.Bytes >= 0 {
		size := evt.Bytes
		p.Bytes = &size
	}
	if evt.Note != "" {
		note := evt.Note
		p.Error = &note
	}
	return p
}

// Close is a no-op; the repository is owned by the caller.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
