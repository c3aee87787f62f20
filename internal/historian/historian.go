// Package historian drains game action records from the Redis queue and persists them
// to Postgres in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/uno/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ActionWriter persists a batch of action records atomically.
type ActionWriter interface {
	InsertGameActions(ctx context.Context, records []models.GameActionRecord) error
}

// Options tunes batching. Zero values fall back to defaults.
type Options struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	PopTimeout time.Duration
}

// Service pops records off the queue, accumulates them, and flushes them to the writer
// when the batch is full or the flush interval elapses.
type Service struct {
	rdb    *redis.Client
	writer ActionWriter
	opts   Options
	logger logrus.FieldLogger

	batchMu sync.Mutex
	batch   []models.GameActionRecord
}

// NewService constructs a Service. logger may be nil.
func NewService(rdb *redis.Client, writer ActionWriter, opts Options, logger logrus.FieldLogger) *Service {
	if opts.Queue == "" {
		opts.Queue = "uno_actions"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		rdb:    rdb,
		writer: writer,
		opts:   opts,
		logger: logger.WithField("queue", opts.Queue),
		batch:  make([]models.GameActionRecord, 0, opts.BatchSize),
	}
}

// Run consumes the queue until ctx is cancelled, then flushes whatever is pending.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("historian started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.flushLoop(ctx)
	}()

	s.readLoop(ctx)
	wg.Wait()

	// Drain with a fresh context; ctx is already done.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.logger.Info("historian shutting down")
}

// readLoop uses BLPop with a bounded timeout so that cancellation is noticed.
func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := s.rdb.BLPop(ctx, s.opts.PopTimeout, s.opts.Queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.logger.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		s.handle(ctx, res[1])
	}
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// handle decodes one payload and appends it, flushing when the batch is full.
func (s *Service) handle(ctx context.Context, payload string) {
	var record models.GameActionRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		s.logger.WithError(err).Warn("invalid action record")
		return
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, record)
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()

	if full {
		s.flush(ctx)
	}
}

// flush writes the pending batch in one transaction. A failed batch is dropped and logged.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]models.GameActionRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.writer.InsertGameActions(ctx, pending); err != nil {
		s.logger.WithError(err).WithField("count", len(pending)).Error("flush actions failed")
		return
	}
	s.logger.WithField("count", len(pending)).Debug("flushed actions")
}

// Pending returns the number of records waiting to be flushed.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
