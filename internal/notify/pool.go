package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alam-gir/wafipix-backend/internal/util"
)

type job struct {
	to               string
	code             string
	expiresInMinutes int
}

// Pool fans deliveries out to a bounded set of workers so a slow SMTP
// server cannot stall request handling. Enqueue never blocks; when the
// queue is full the job is dropped and the caller's challenge simply
// goes undelivered, same as any other email failure.
type Pool struct {
	sender  Notifier
	queue   chan job
	group   *errgroup.Group
	cancel  context.CancelFunc
	closing sync.Once
}

func NewPool(sender Notifier, workers, queueLen int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueLen <= 0 {
		queueLen = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers + 1)

	p := &Pool{
		sender: sender,
		queue:  make(chan job, queueLen),
		group:  g,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			p.worker(ctx)
			return nil
		})
	}

	util.Info("notification pool started",
		zap.Int("workers", workers),
		zap.Int("queue_len", queueLen))

	return p
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.sender.SendOTP(sendCtx, j.to, j.code, j.expiresInMinutes); err != nil {
				util.Error("otp delivery failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Enqueue schedules a delivery. Returns false when the queue is full.
func (p *Pool) Enqueue(to, code string, expiresInMinutes int) bool {
	select {
	case p.queue <- job{to: to, code: code, expiresInMinutes: expiresInMinutes}:
		return true
	default:
		util.Warn("notification queue full, dropping delivery")
		return false
	}
}

// Close drains nothing; queued jobs not yet picked up are abandoned.
func (p *Pool) Close() {
	p.closing.Do(func() {
		p.cancel()
		close(p.queue)
		_ = p.group.Wait()
		util.Info("notification pool stopped")
	})
}
