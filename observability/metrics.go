// Package observability records SugarBuddy service metrics (chat stream
// latency and outcome, snapshot tiers) into SQLite.
//
// Recording never blocks a request: points are buffered and flushed in
// batches by a background goroutine. A nil *Metrics is a valid no-op sink.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/sugarbuddy/dbopen"
)

// Metric names.
const (
	MetricChatStreamMs    = "chat_stream_ms"
	MetricChatStreamChars = "chat_stream_chars"
	MetricSnapshotTier    = "snapshot_tier"
	MetricStateListeners  = "state_listeners"
)

// Metric is a single datapoint.
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit,omitempty"`
}

// Metrics buffers datapoints and flushes them to SQLite.
type Metrics struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu     sync.Mutex
	buffer []*Metric

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New starts a flushing Metrics on db. Zero arguments mean 100 points and 5s.
func New(db *sql.DB, bufferSize int, flushInterval time.Duration, logger *slog.Logger) *Metrics {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Metrics{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		logger:        logger,
		now:           time.Now,
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Record queues a datapoint.
func (m *Metrics) Record(name string, value float64, unit string, labels map[string]string) {
	if m == nil {
		return
	}
	p := &Metric{Name: name, Timestamp: m.now(), Value: value, Labels: labels, Unit: unit}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, p)
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// Since records the milliseconds elapsed since start.
func (m *Metrics) Since(name string, start time.Time, labels map[string]string) {
	if m == nil {
		return
	}
	m.Record(name, float64(m.now().Sub(start).Milliseconds()), "milliseconds", labels)
}

// Flush writes buffered points now.
func (m *Metrics) Flush() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushLocked()
}

// Query returns the latest points for name (all names when empty), newest
// first.
func (m *Metrics) Query(ctx context.Context, name string, limit int) ([]Metric, error) {
	if m == nil {
		return []Metric{}, nil
	}
	if limit <= 0 {
		limit = 100
	}
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries"
	args := []any{}
	if name != "" {
		q += " WHERE metric_name = ?"
		args = append(args, name)
	}
	q += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query: %w", err)
	}
	defer rows.Close()

	out := []Metric{}
	for rows.Next() {
		var (
			p      Metric
			ts     int64
			labels sql.NullString
			unit   sql.NullString
		)
		if err := rows.Scan(&p.Name, &ts, &p.Value, &labels, &unit); err != nil {
			return nil, fmt.Errorf("observability: scan: %w", err)
		}
		p.Timestamp = time.UnixMilli(ts).UTC()
		p.Unit = unit.String
		if labels.Valid {
			json.Unmarshal([]byte(labels.String), &p.Labels)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Cleanup deletes points older than retention and returns the count removed.
func (m *Metrics) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if m == nil {
		return 0, nil
	}
	threshold := m.now().Add(-retention).UnixMilli()
	res, err := dbopen.Exec(ctx, m.db, "DELETE FROM metrics_timeseries WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes what is buffered and stops the background goroutine.
func (m *Metrics) Close() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.InTx(ctx, m.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range m.buffer {
			var labels sql.NullString
			if len(p.Labels) > 0 {
				if b, err := json.Marshal(p.Labels); err == nil {
					labels = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, p.Name, p.Timestamp.UnixMilli(), p.Value, labels, p.Unit); err != nil {
				return fmt.Errorf("insert %s: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("observability: flush", "error", err, "points", len(m.buffer))
	}
	m.buffer = m.buffer[:0]
}
