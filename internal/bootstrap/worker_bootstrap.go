package bootstrap

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"calsync_server/adapter/in/worker"
	"calsync_server/core/port/out"
	"calsync_server/pkg/logger"
)

// Worker runs the cron schedule and the trigger queue consumer.
type Worker struct {
	scheduler *worker.Scheduler
	consumer  *worker.QueueConsumer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	zlog      zerolog.Logger
}

func NewWorker(d *Dependencies) (*Worker, error) {
	zlog := logger.Component("worker")
	base := logger.Component("")
	dispatcher := worker.NewDispatcher(d.SyncService, d.OAuthService, base)

	scheduler := worker.NewScheduler(dispatcher, base)
	if err := scheduler.Add(d.Config.SyncCron, out.JobSync); err != nil {
		return nil, err
	}
	if err := scheduler.Add(d.Config.RefreshCron, out.JobRefreshTokens); err != nil {
		return nil, err
	}

	w := &Worker{scheduler: scheduler, zlog: zlog}
	if d.Queue != nil {
		w.consumer = worker.NewQueueConsumer(d.Queue, dispatcher, base)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w, nil
}

// Start starts the scheduler and the consumer and returns immediately.
func (w *Worker) Start() {
	w.scheduler.Start()
	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consumer.Run(w.ctx)
		}()
	}
	w.zlog.Info().Bool("queue", w.consumer != nil).Msg("worker started")
}

// Stop waits for running jobs to return.
func (w *Worker) Stop() {
	w.cancel()
	w.scheduler.Stop()
	w.wg.Wait()
	w.zlog.Info().Msg("worker stopped")
}
