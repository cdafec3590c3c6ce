package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	_ "modernc.org/sqlite"
)

// DefaultHistogramBins is the number of buckets used by
// SummaryWriter histograms.
const DefaultHistogramBins = 30

// A ScalarPoint is one value of a scalar series.
type ScalarPoint struct {
	Step  int
	Value float64
}

// A Bucket is one bin of a histogram.
type Bucket struct {
	Lower float64
	Upper float64
	Count float64
}

// SummaryWriter is a HistogramSink which stores series in
// an SQLite database.
//
// Values are buffered in memory until Flush.
// Every row is keyed by the writer's RunID, so many runs
// may share one database.
type SummaryWriter struct {
	// RunID identifies this writer's rows.
	RunID string

	// Bins is the number of histogram buckets.
	//
	// If 0, DefaultHistogramBins is used.
	Bins int

	lock       sync.Mutex
	db         *sql.DB
	scalars    []scalarRow
	histograms []histogramRow
}

type scalarRow struct {
	tag   string
	step  int
	value float64
	wall  int64
}

type histogramRow struct {
	tag     string
	step    int
	buckets []Bucket
}

// NewSummaryWriter opens (or creates) a database and
// assigns the writer a fresh run ID.
func NewSummaryWriter(ctx context.Context, path string) (s *SummaryWriter, err error) {
	defer essentials.AddCtxTo("open summary", &err)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SummaryWriter{RunID: uuid.NewString(), db: db}, nil
}

// AddScalar buffers a scalar value.
//
// Non-finite values cannot be stored, so they are
// dropped.
func (s *SummaryWriter) AddScalar(tag string, value float64, step int) {
	if !finite(value) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.scalars = append(s.scalars, scalarRow{
		tag:   tag,
		step:  step,
		value: value,
		wall:  time.Now().UnixNano(),
	})
}

// AddHistogram buckets the values and buffers the result.
//
// Non-finite values are ignored.
// If no values remain, nothing is recorded.
func (s *SummaryWriter) AddHistogram(tag string, values []float64, step int) {
	buckets := s.bucketize(values)
	if buckets == nil {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.histograms = append(s.histograms, histogramRow{
		tag:     tag,
		step:    step,
		buckets: buckets,
	})
}

// Record stores the value as a scalar tagged
// "group/name", or "group/name/split" if a split is
// given.
func (s *SummaryWriter) Record(name string, value float64, step int, group, xLabel, split string) {
	tag := group + "/" + name
	if split != "" {
		tag += "/" + split
	}
	s.AddScalar(tag, value, step)
}

// Histogram is equivalent to AddHistogram.
func (s *SummaryWriter) Histogram(tag string, values []float64, step int) {
	s.AddHistogram(tag, values, step)
}

// Flush writes all buffered rows in a single transaction.
func (s *SummaryWriter) Flush() (err error) {
	defer essentials.AddCtxTo("flush summary", &err)
	s.lock.Lock()
	defer s.lock.Unlock()

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, row := range s.scalars {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scalars (run_id, tag, step, value, wall_time)
			VALUES (?, ?, ?, ?, ?)
		`, s.RunID, row.tag, row.step, row.value, row.wall)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	for _, row := range s.histograms {
		for i, b := range row.buckets {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO histograms (run_id, tag, step, bucket, lower, upper, count)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, s.RunID, row.tag, row.step, i, b.Lower, b.Upper, b.Count)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.scalars = nil
	s.histograms = nil
	return nil
}

// Scalars reads back the flushed values of a scalar
// series for this run, ordered by step.
func (s *SummaryWriter) Scalars(ctx context.Context, tag string) (points []ScalarPoint,
	err error) {
	defer essentials.AddCtxTo("read scalars", &err)
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, value FROM scalars
		WHERE run_id = ? AND tag = ?
		ORDER BY step, wall_time
	`, s.RunID, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p ScalarPoint
		if err := rows.Scan(&p.Step, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// HistogramAt reads back the flushed buckets of a
// histogram for this run at a given step.
func (s *SummaryWriter) HistogramAt(ctx context.Context, tag string, step int) (buckets []Bucket,
	err error) {
	defer essentials.AddCtxTo("read histogram", &err)
	rows, err := s.db.QueryContext(ctx, `
		SELECT lower, upper, count FROM histograms
		WHERE run_id = ? AND tag = ? AND step = ?
		ORDER BY bucket
	`, s.RunID, tag, step)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Lower, &b.Upper, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// Close flushes pending rows and closes the database.
func (s *SummaryWriter) Close() error {
	flushErr := s.Flush()
	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}

func (s *SummaryWriter) bucketize(values []float64) []Bucket {
	var sorted []float64
	for _, x := range values {
		if finite(x) {
			sorted = append(sorted, x)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Float64s(sorted)

	bins := s.Bins
	if bins == 0 {
		bins = DefaultHistogramBins
	}
	low := sorted[0]
	high := math.Nextafter(sorted[len(sorted)-1], math.Inf(1))
	dividers := floats.Span(make([]float64, bins+1), low, high)
	counts := stat.Histogram(nil, dividers, sorted, nil)

	res := make([]Bucket, bins)
	for i := range res {
		res[i] = Bucket{Lower: dividers[i], Upper: dividers[i+1], Count: counts[i]}
	}
	return res
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scalars (
			run_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			step INTEGER NOT NULL,
			value REAL NOT NULL,
			wall_time INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS histograms (
			run_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			step INTEGER NOT NULL,
			bucket INTEGER NOT NULL,
			lower REAL NOT NULL,
			upper REAL NOT NULL,
			count REAL NOT NULL
		);
	`)
	return err
}
