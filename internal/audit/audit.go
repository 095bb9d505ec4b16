// Package audit batches invocation records and persists them to
// Postgres via pgxpool, grounded on the teacher's invocation log
// batcher (the now-superseded internal/executor/invocation_log_batcher.go):
// same buffered-channel-plus-ticker shape, same size-or-interval flush
// trigger, same bounded-retry-then-drop failure handling. The sink here
// is a concrete pgxpool batch insert rather than the teacher's
// logsink.LogSink interface, since this spec has exactly one audit
// backend.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/langbridge/bridge-engine/internal/logging"
)

const (
	defaultBatchSize     = 100
	defaultBufferSize    = 1000
	defaultFlushInterval = 500 * time.Millisecond
	defaultFlushTimeout  = 5 * time.Second
	maxRetries           = 3
	retryInterval        = 100 * time.Millisecond
)

// Record is one invocation audit entry.
type Record struct {
	RequestID    string
	ExecutorID   string
	Command      string
	SecurityMode string
	Success      bool
	Error        string
	DurationMs   int64
	At           time.Time
}

// Config configures a Log.
type Config struct {
	DSN           string
	BatchSize     int
	BufferSize    int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = defaultFlushTimeout
	}
}

// Log batches Records and flushes them to Postgres on a timer or when a
// batch fills up, whichever comes first.
type Log struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	records       chan *Record
	batchSize     int
	flushInterval time.Duration
	flushTimeout  time.Duration
	done          chan struct{}
}

// Open connects to Postgres, ensures the invocation_audit table exists,
// and starts the background batcher.
func Open(ctx context.Context, cfg Config) (*Log, error) {
	cfg.setDefaults()

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	l := &Log{
		pool:          pool,
		logger:        logging.Op(),
		records:       make(chan *Record, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		flushTimeout:  cfg.FlushTimeout,
		done:          make(chan struct{}),
	}
	go l.run()
	return l, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS invocation_audit (
	request_id    TEXT PRIMARY KEY,
	executor_id   TEXT NOT NULL,
	command       TEXT NOT NULL,
	security_mode TEXT NOT NULL,
	success       BOOLEAN NOT NULL,
	error         TEXT,
	duration_ms   BIGINT NOT NULL,
	occurred_at   TIMESTAMPTZ NOT NULL
)`

// Enqueue records r for eventual persistence. A full buffer drops the
// record rather than blocking the caller, logging a warning so audit
// backpressure is observable without it becoming a latency source for
// invocations.
func (l *Log) Enqueue(r *Record) {
	select {
	case l.records <- r:
	default:
		l.logger.Warn("dropping invocation audit record due to full buffer", "request_id", r.RequestID)
	}
}

// Shutdown closes the input channel and waits up to timeout for the
// final flush to complete.
func (l *Log) Shutdown(timeout time.Duration) {
	close(l.records)
	select {
	case <-l.done:
	case <-time.After(timeout):
		l.logger.Warn("timeout waiting for audit log shutdown", "timeout", timeout)
	}
	l.pool.Close()
}

func (l *Log) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Record, 0, l.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		var lastErr error
		for attempt := 0; attempt < maxRetries; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), l.flushTimeout)
			lastErr = l.insertBatch(ctx, batch)
			cancel()
			if lastErr == nil {
				break
			}
			l.logger.Warn("failed to persist audit records, retrying",
				"error", lastErr, "count", len(batch), "attempt", attempt+1)
			time.Sleep(time.Duration(1<<uint(attempt)) * retryInterval)
		}
		if lastErr != nil {
			l.logger.Error("permanently failed to persist audit records after retries",
				"error", lastErr, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-l.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= l.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Log) insertBatch(ctx context.Context, batch []*Record) error {
	rows := make([][]interface{}, len(batch))
	for i, r := range batch {
		rows[i] = []interface{}{r.RequestID, r.ExecutorID, r.Command, r.SecurityMode, r.Success, r.Error, r.DurationMs, r.At}
	}
	_, err := l.pool.CopyFrom(ctx,
		pgx.Identifier{"invocation_audit"},
		[]string{"request_id", "executor_id", "command", "security_mode", "success", "error", "duration_ms", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}
