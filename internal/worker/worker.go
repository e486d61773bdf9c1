package worker

import (
	"context"
	"sync"
	"time"

	"kitchen-display/internal/broker"
	"kitchen-display/internal/service"
	"kitchen-display/internal/util"

	"go.uber.org/zap"
)

// PushListener delivers push events to a handler until ctx is cancelled
type PushListener interface {
	Listen(ctx context.Context, handler *broker.EventHandler) error
	Close() error
}

// IngestionWorker runs the poll loop and the push listener feeding it
type IngestionWorker struct {
	ingestion    *service.IngestionService
	listener     PushListener
	eventHandler *broker.EventHandler
	interval     time.Duration
	retryDelay   time.Duration
	wg           sync.WaitGroup
	logger       *zap.Logger
}

// NewIngestionWorker creates a new ingestion worker. listener may be nil
// when the display runs on polling alone.
func NewIngestionWorker(ingestion *service.IngestionService, listener PushListener, interval time.Duration) *IngestionWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderEvent(ingestion.HandleEvent)

	return &IngestionWorker{
		ingestion:    ingestion,
		listener:     listener,
		eventHandler: eventHandler,
		interval:     interval,
		retryDelay:   5 * time.Second,
		logger:       util.GetLogger(),
	}
}

// Start launches the poll loop and push listener in the background
func (w *IngestionWorker) Start(ctx context.Context) {
	w.logger.Info("Starting ingestion worker", zap.Bool("push", w.listener != nil))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.ingestion.Run(ctx, w.interval)
	}()

	if w.listener == nil {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.listen(ctx)
	}()
}

// listen keeps the push listener running. Polling covers any gap while it is down.
func (w *IngestionWorker) listen(ctx context.Context) {
	for {
		err := w.listener.Listen(ctx, w.eventHandler)
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("Push listener stopped, retrying", zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryDelay):
		}
	}
}

// Stop waits for the background loops to exit after ctx is cancelled and
// closes the listener
func (w *IngestionWorker) Stop() error {
	w.logger.Info("Stopping ingestion worker")
	w.wg.Wait()
	if w.listener != nil {
		return w.listener.Close()
	}
	return nil
}
