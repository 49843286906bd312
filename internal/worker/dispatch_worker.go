package worker

import (
	"context"
	"time"

	"github.com/billfox/dunning-api/internal/service/dispatch"
	"github.com/billfox/dunning-api/pkg/logger"
)

// DispatchWorker runs the dispatch loop on a fixed interval. One pass at a
// time; a slow pass simply delays the next tick's work.
type DispatchWorker struct {
	service  *dispatch.Service
	interval time.Duration
	logger   *logger.Logger
}

func NewDispatchWorker(service *dispatch.Service, interval time.Duration, log *logger.Logger) *DispatchWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &DispatchWorker{
		service:  service,
		interval: interval,
		logger:   log.WithFields(map[string]interface{}{"worker": "dispatch"}),
	}
}

func (w *DispatchWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("dispatch worker started", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker shutting down")
			return
		case <-ticker.C:
			if _, err := w.service.Run(ctx, time.Now()); err != nil {
				w.logger.Error(err, "dispatch pass failed")
			}
		}
	}
}
