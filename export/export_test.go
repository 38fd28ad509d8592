package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/sweeper/sdr"
)

func testSamples(n int) []sdr.Sample {
	t0 := time.UnixMilli(1700000000000)
	out := make([]sdr.Sample, n)
	for i := range out {
		out[i] = sdr.Sample{
			Identifier:  "station",
			Source:      "hackrf",
			FreqCenter:  uint64(100000000 + i*1000000),
			FreqLow:     uint64(99500000 + i*1000000),
			FreqHigh:    uint64(100500000 + i*1000000),
			DBHigh:      -10,
			DBLow:       -30,
			DBAvg:       -20.5,
			SampleCount: 20,
			Start:       t0.Add(time.Duration(i) * time.Second),
			End:         t0.Add(time.Duration(i+1) * time.Second),
		}
	}
	return out
}

func feed(samples []sdr.Sample) <-chan sdr.Sample {
	ch := make(chan sdr.Sample, len(samples))
	for _, s := range samples {
		ch <- s
	}
	close(ch)
	return ch
}

func TestCSV(t *testing.T) {
	var out bytes.Buffer
	c := &CSV{W: &out}
	require.NoError(t, c.Write(context.Background(), feed(testSamples(2))))

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"hackrf", "station", "100000000", "99500000", "100500000",
		"1700000000000", "1700000001000", "-30.000000", "-10.000000", "-20.500000", "20"}, records[1])
}

func TestCSVCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &CSV{W: &bytes.Buffer{}}
	assert.ErrorIs(t, c.Write(ctx, make(chan sdr.Sample)), context.Canceled)
}

func TestSQLite(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	defer db.Close()

	s := &SQL{DB: db, Dialect: SQLiteDialect, BatchSize: 3}
	want := testSamples(7)
	require.NoError(t, s.Write(context.Background(), feed(want)))

	got, err := s.Read(context.Background(), Query{End: time.UnixMilli(1800000000000)})
	require.NoError(t, err)
	require.Len(t, got, 7)
	for i := range want {
		assert.Equal(t, want[i].FreqCenter, got[i].FreqCenter)
		assert.Equal(t, want[i].DBAvg, got[i].DBAvg)
		assert.Equal(t, want[i].SampleCount, got[i].SampleCount)
		assert.True(t, want[i].Start.Equal(got[i].Start))
		assert.True(t, want[i].End.Equal(got[i].End))
	}

	got, err = s.Read(context.Background(), Query{FreqLow: 102000000, FreqHigh: 104000000, End: time.UnixMilli(1800000000000), Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(102000000), got[0].FreqCenter)
	assert.Equal(t, uint64(103000000), got[1].FreqCenter)

	// Writing again appends to the existing table.
	require.NoError(t, s.Write(context.Background(), feed(testSamples(1))))
	got, err = s.Read(context.Background(), Query{End: time.UnixMilli(1800000000000)})
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestSQLiteFlushInterval(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	defer db.Close()

	s := &SQL{DB: db, Dialect: SQLiteDialect, BatchSize: 1000, FlushInterval: 10 * time.Millisecond}
	ch := make(chan sdr.Sample, 2)
	for _, smpl := range testSamples(2) {
		ch <- smpl
	}
	done := make(chan error)
	go func() { done <- s.Write(context.Background(), ch) }()

	assert.Eventually(t, func() bool {
		got, err := s.Read(context.Background(), Query{End: time.UnixMilli(1800000000000)})
		return err == nil && len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)
	close(ch)
	require.NoError(t, <-done)
}

func TestMySQLDSN(t *testing.T) {
	pwFile := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(pwFile, []byte("secret\n"), 0o600))

	dsn, err := MySQLOptions{Server: "db:3306", User: "sweeper", PasswordFile: pwFile, DBName: "spectre"}.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "sweeper:secret@tcp(db:3306)/spectre")

	_, err = MySQLOptions{PasswordFile: filepath.Join(t.TempDir(), "missing")}.DSN()
	assert.Error(t, err)
}

func TestSpectreServer(t *testing.T) {
	var mu sync.Mutex
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CollectEndpoint, r.URL.Path)
		assert.Equal(t, contentType, r.Header.Get("Content-Type"))
		var got []sdr.Sample
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		mu.Lock()
		batches = append(batches, len(got))
		mu.Unlock()
		json.NewEncoder(w).Encode(CollectResponse{Status: "ok", SampleCount: len(got)})
	}))
	defer srv.Close()

	s := &SpectreServer{Server: srv.URL + "/", SendSamplesAmount: 4, Client: srv.Client()}
	require.NoError(t, s.Write(context.Background(), feed(testSamples(10))))
	assert.Equal(t, []int{4, 4, 2}, batches)
}

func TestSpectreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := &SpectreServer{Server: srv.URL, SendSamplesAmount: 1}
	_, err := s.post(context.Background(), testSamples(1))
	assert.ErrorContains(t, err, "nope")
	// Failed batches are logged and dropped, not fatal.
	assert.NoError(t, s.Write(context.Background(), feed(testSamples(2))))
}

func TestCounts(t *testing.T) {
	c := &counts{name: "test"}
	c.add(3, true)
	c.add(2, false)
	assert.Equal(t, 5, c.Total)
	assert.Equal(t, 3, c.Success)
	assert.Equal(t, 2, c.Error)
}
