package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/dggchat/internal/buffer"
	"github.com/rickgao/dggchat/internal/connection"
	"github.com/rickgao/dggchat/internal/metrics"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID        NOT NULL,
	nick        TEXT        NOT NULL,
	data        TEXT        NOT NULL,
	features    TEXT[]      NOT NULL DEFAULT '{}',
	sent_at     TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	UNIQUE (nick, sent_at, data)
)`

const insertSQL = `
INSERT INTO chat_messages (run_id, nick, data, features, sent_at, received_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (nick, sent_at, data) DO NOTHING`

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds batch writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int           // Initial queue capacity
	FlushTimeout  time.Duration // Deadline for one batch insert
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    4096,
		FlushTimeout:  10 * time.Second,
	}
}

// Stats holds writer counters.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// row is one chat_messages insert.
type row struct {
	Nick       string
	Data       string
	Features   []string
	SentAt     time.Time
	ReceivedAt time.Time
}

// Writer batches chat messages into the chat_messages table.
type Writer struct {
	cfg     Config
	db      DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	runID   uuid.UUID

	input *buffer.Queue[row]

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
}

// NewWriter creates a Writer. mt may be nil.
func NewWriter(cfg Config, db DB, mt *metrics.Metrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultConfig().FlushTimeout
	}

	runID := uuid.New()
	return &Writer{
		cfg:     cfg,
		db:      db,
		logger:  logger.With("run_id", runID),
		metrics: mt,
		runID:   runID,
		input:   buffer.NewQueue[row](cfg.BufferSize),
		batch:   make([]row, 0, cfg.BatchSize),
	}
}

// RunID identifies this writer's rows.
func (w *Writer) RunID() uuid.UUID {
	return w.runID
}

// EnsureSchema creates the chat_messages table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create chat_messages: %w", err)
	}
	return nil
}

// Add queues a message for insertion. It never blocks. Returns false after
// Stop.
func (w *Writer) Add(ev connection.MessageEvent) bool {
	return w.input.Push(w.transform(ev, time.Now()))
}

// Start begins consuming messages and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued messages, flushes them and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	if w.cancel != nil {
		w.cancel()
	}

	// Final flush gets its own deadline, ctx may already be done.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.FlushTimeout)
	defer cancel()
	if err := w.flush(flushCtx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}

	w.logger.Info("archive writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop moves queued rows into the batch until the queue is closed.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		r, ok := w.input.Pop()
		if !ok {
			return
		}
		rows := []row{r}
		// Take whatever else is already waiting, up to a full batch.
		if w.cfg.BatchSize > 1 {
			rows = append(rows, w.input.Drain(w.cfg.BatchSize-1)...)
		}
		w.handleRows(rows)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.timedFlush()
		}
	}
}

func (w *Writer) handleRows(rows []row) {
	w.batchMu.Lock()
	w.batch = append(w.batch, rows...)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.timedFlush()
	}
}

// transform converts a MessageEvent to a row.
func (w *Writer) transform(ev connection.MessageEvent, receivedAt time.Time) row {
	sentAt := ev.Time
	if sentAt.IsZero() {
		sentAt = receivedAt
	}
	features := ev.Features
	if features == nil {
		features = []string{}
	}
	return row{
		Nick:       ev.Nick,
		Data:       ev.Data,
		Features:   features,
		SentAt:     sentAt.UTC(),
		ReceivedAt: receivedAt.UTC(),
	}
}

// timedFlush flushes with its own deadline so a cancelled writer context
// does not abort rows already taken from the queue.
func (w *Writer) timedFlush() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), w.cfg.FlushTimeout)
	defer cancel()
	w.flush(ctx)
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) error {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.metrics.ArchiveError()
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return err
	}

	inserted := len(batch) - conflicts
	w.metrics.Archived(inserted)

	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed messages",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	runID := w.runID.String()
	for _, r := range rows {
		batch.Queue(insertSQL, runID, r.Nick, r.Data, r.Features, r.SentAt, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
