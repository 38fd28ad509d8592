package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/metrics"
	"github.com/hb9tf/sweeper/sdr"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second

	sqlInsertSampleTmpl = `INSERT INTO samples (
		Identifier,
		Source,
		FreqCenter,
		FreqLow,
		FreqHigh,
		DBHigh,
		DBLow,
		DBAvg,
		SampleCount,
		StartMilli,
		EndMilli
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	sqlQuerySamplesTmpl = `SELECT
		Identifier, Source, FreqCenter, FreqLow, FreqHigh,
		DBHigh, DBLow, DBAvg, SampleCount, StartMilli, EndMilli
	FROM samples
	WHERE FreqCenter >= ? AND FreqCenter <= ? AND StartMilli >= ? AND EndMilli <= ?
	ORDER BY StartMilli, FreqCenter
	LIMIT ?;`
)

// Dialect holds what differs between the supported databases.
type Dialect struct {
	Name        string
	CreateTable string
}

var SQLiteDialect = Dialect{
	Name: "sqlite",
	CreateTable: `CREATE TABLE IF NOT EXISTS samples (
		"ID"           INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Identifier"   TEXT NOT NULL,
		"Source"       TEXT NOT NULL,
		"FreqCenter"   INTEGER,
		"FreqLow"      INTEGER,
		"FreqHigh"     INTEGER,
		"DBHigh"       REAL,
		"DBLow"        REAL,
		"DBAvg"        REAL,
		"SampleCount"  INTEGER,
		"StartMilli"   INTEGER,
		"EndMilli"     INTEGER
	);`,
}

// SQL stores samples in a database, batching inserts into transactions.
type SQL struct {
	DB      *sql.DB
	Dialect Dialect
	// BatchSize is the number of samples per transaction.
	BatchSize int
	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
}

// Init creates the samples table if it does not exist yet.
func (s *SQL) Init(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.CreateTable); err != nil {
		return fmt.Errorf("unable to create table: %w", err)
	}
	return nil
}

func (s *SQL) Write(ctx context.Context, samples <-chan sdr.Sample) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	interval := s.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cnt := &counts{name: s.Dialect.Name, metrics: s.Metrics}
	batch := make([]sdr.Sample, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insert(ctx, batch); err != nil {
			glog.Warningf("error storing %d samples in %s DB: %s\n", len(batch), s.Dialect.Name, err)
			cnt.add(len(batch), false)
		} else {
			cnt.add(len(batch), true)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			flush()
		case sample, ok := <-samples:
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, sample)
			if len(batch) >= batchSize {
				flush()
			}
		}
	}
}

func (s *SQL) insert(ctx context.Context, batch []sdr.Sample) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statement, err := tx.PrepareContext(ctx, sqlInsertSampleTmpl)
	if err != nil {
		return err
	}
	defer statement.Close()

	for _, smpl := range batch {
		if _, err := statement.ExecContext(ctx,
			smpl.Identifier, smpl.Source, smpl.FreqCenter, smpl.FreqLow, smpl.FreqHigh,
			smpl.DBHigh, smpl.DBLow, smpl.DBAvg, smpl.SampleCount,
			smpl.Start.UnixMilli(), smpl.End.UnixMilli()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query selects the samples a render or API call needs.
type Query struct {
	FreqLow  uint64
	FreqHigh uint64
	Start    time.Time
	End      time.Time
	Limit    int
}

// Read returns the stored samples matching q, ordered by time then
// frequency.
func (s *SQL) Read(ctx context.Context, q Query) ([]sdr.Sample, error) {
	freqHigh := q.FreqHigh
	if freqHigh == 0 {
		freqHigh = sdr.FreqMaxMHz * sdr.FreqOneMHz
	}
	end := q.End
	if end.IsZero() {
		end = time.Now()
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100000
	}
	rows, err := s.DB.QueryContext(ctx, sqlQuerySamplesTmpl, q.FreqLow, freqHigh, q.Start.UnixMilli(), end.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sdr.Sample
	for rows.Next() {
		var smpl sdr.Sample
		var start, stop int64
		if err := rows.Scan(&smpl.Identifier, &smpl.Source, &smpl.FreqCenter, &smpl.FreqLow, &smpl.FreqHigh,
			&smpl.DBHigh, &smpl.DBLow, &smpl.DBAvg, &smpl.SampleCount, &start, &stop); err != nil {
			return nil, err
		}
		smpl.Start = time.UnixMilli(start)
		smpl.End = time.UnixMilli(stop)
		out = append(out, smpl)
	}
	return out, rows.Err()
}
