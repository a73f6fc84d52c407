package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/dggchat/internal/connection"
	"github.com/rickgao/dggchat/internal/metrics"
)

// fakeDB records batches. Rows whose nick is in conflicts report zero rows
// affected.
type fakeDB struct {
	mu        sync.Mutex
	execs     []string
	batches   [][]*pgx.QueuedQuery
	conflicts map[string]bool
	err       error
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), f.err
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return &fakeResults{db: f, err: err}
	}
	f.batches = append(f.batches, b.QueuedQueries)
	return &fakeResults{db: f, queries: b.QueuedQueries}
}

func (f *fakeDB) rows() []*pgx.QueuedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*pgx.QueuedQuery
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeResults struct {
	db      *fakeDB
	queries []*pgx.QueuedQuery
	next    int
	err     error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	if r.db.err != nil {
		return pgconn.CommandTag{}, r.db.err
	}
	q := r.queries[r.next]
	r.next++
	if nick, _ := q.Arguments[1].(string); r.db.conflicts[nick] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func message(nick, data string) connection.MessageEvent {
	return connection.MessageEvent{
		Nick: nick,
		Data: data,
		Time: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriter_Transform(t *testing.T) {
	w := NewWriter(DefaultConfig(), &fakeDB{}, nil, nil)

	receivedAt := time.Date(2024, 1, 15, 12, 0, 1, 0, time.FixedZone("EST", -5*3600))
	ev := connection.MessageEvent{
		Nick:     "Destiny",
		Data:     "hello",
		Features: []string{"admin", "subscriber"},
		Time:     time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}

	r := w.transform(ev, receivedAt)

	if r.Nick != "Destiny" {
		t.Errorf("Nick = %s, want Destiny", r.Nick)
	}
	if r.Data != "hello" {
		t.Errorf("Data = %s, want hello", r.Data)
	}
	if len(r.Features) != 2 {
		t.Errorf("Features = %v, want 2 entries", r.Features)
	}
	if !r.SentAt.Equal(ev.Time) {
		t.Errorf("SentAt = %v, want %v", r.SentAt, ev.Time)
	}
	if r.ReceivedAt.Location() != time.UTC {
		t.Errorf("ReceivedAt location = %v, want UTC", r.ReceivedAt.Location())
	}
}

func TestWriter_Transform_Defaults(t *testing.T) {
	w := NewWriter(DefaultConfig(), &fakeDB{}, nil, nil)

	receivedAt := time.Now()
	r := w.transform(connection.MessageEvent{Nick: "a"}, receivedAt)

	if !r.SentAt.Equal(receivedAt) {
		t.Errorf("SentAt = %v, want receive time", r.SentAt)
	}
	if r.Features == nil {
		t.Error("Features = nil, want empty slice")
	}
}

func TestWriter_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(DefaultConfig(), db, nil, nil)

	if err := w.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs = %d, want 1", len(db.execs))
	}

	db.err = errors.New("permission denied")
	if err := w.EnsureSchema(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	cfg := Config{BatchSize: 3, FlushInterval: time.Hour}
	w := NewWriter(cfg, db, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, nick := range []string{"a", "b", "c"} {
		w.Add(message(nick, "hi"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Flushes == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stats := w.Stats()
	if stats.Flushes != 1 {
		t.Errorf("Flushes = %d, want 1", stats.Flushes)
	}
	if stats.Inserts != 3 {
		t.Errorf("Inserts = %d, want 3", stats.Inserts)
	}

	rows := db.rows()
	if len(rows) != 3 {
		t.Fatalf("queued %d rows, want 3", len(rows))
	}
	if got := rows[0].Arguments[0]; got != w.RunID().String() {
		t.Errorf("run_id = %v, want %s", got, w.RunID())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWriter_StopFlushesRemaining(t *testing.T) {
	db := &fakeDB{conflicts: map[string]bool{"dup": true}}
	reg := prometheus.NewRegistry()
	mt := metrics.New(metrics.Config{Registerer: reg})

	cfg := Config{BatchSize: 100, FlushInterval: time.Hour}
	w := NewWriter(cfg, db, mt, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	w.Add(message("a", "one"))
	w.Add(message("dup", "two"))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := w.Stats()
	if stats.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}

	if w.Add(message("late", "x")) {
		t.Error("Add after Stop = true, want false")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var archived float64
	for _, mf := range families {
		if mf.GetName() == "dggchat_archived_messages_total" {
			archived = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if archived != 1 {
		t.Errorf("archived_messages_total = %v, want 1", archived)
	}
}

func TestWriter_StopAfterDeadlineStillFlushes(t *testing.T) {
	db := &fakeDB{}
	cfg := Config{BatchSize: 100, FlushInterval: time.Hour}
	w := NewWriter(cfg, db, nil, nil)

	w.handleRows([]row{
		w.transform(message("a", "one"), time.Now()),
		w.transform(message("b", "two"), time.Now()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := w.Stats().Inserts; got != 2 {
		t.Errorf("Inserts = %d, want 2", got)
	}
	if got := len(db.rows()); got != 2 {
		t.Errorf("queued %d rows, want 2", got)
	}
}

func TestWriter_FlushError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	cfg := Config{BatchSize: 100, FlushInterval: time.Hour}
	w := NewWriter(cfg, db, nil, nil)

	w.handleRows([]row{w.transform(message("a", "one"), time.Now())})

	if err := w.flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", stats.Inserts)
	}
}

func TestWriter_Stats(t *testing.T) {
	w := NewWriter(DefaultConfig(), &fakeDB{}, nil, nil)

	stats := w.Stats()
	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
}
