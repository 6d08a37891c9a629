package trace_test

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecorderWritesRecordsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.trace")

	rec, err := trace.NewFileRecorder(path, 16)
	require.NoError(t, err)

	start := time.Date(2024, 6, 1, 8, 0, 0, 123456789, time.UTC)
	rec.Record(trace.Record{
		Time:        start,
		SessionID:   "a",
		DeviceClass: "bike_power",
		NewState:    "REQUESTING",
	})
	rec.Record(trace.Record{
		Time:         start.Add(time.Second),
		SessionID:    "a",
		DeviceClass:  "bike_power",
		DeviceNumber: 12,
		OldState:     "REQUESTING",
		NewState:     "BOUND",
		Outcome:      "SUCCESS",
	})
	require.NoError(t, rec.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	records, err := trace.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.True(t, start.Equal(records[0].Time), "nanosecond timestamps survive")
	assert.Equal(t, "REQUESTING", records[0].NewState)
	assert.Equal(t, 12, records[1].DeviceNumber)
	assert.Equal(t, "SUCCESS", records[1].Outcome)
	assert.Zero(t, rec.Dropped())
}

func TestFileRecorderAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.trace")

	for i := 0; i < 2; i++ {
		rec, err := trace.NewFileRecorder(path, 0)
		require.NoError(t, err)
		rec.Record(trace.Record{SessionID: "s", NewState: "RELEASED"})
		require.NoError(t, rec.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := trace.ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFileRecorderCloseIsIdempotent(t *testing.T) {
	rec, err := trace.NewFileRecorder(filepath.Join(t.TempDir(), "x.trace"), 4)
	require.NoError(t, err)

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	// Recording after close is dropped, not a panic.
	assert.NotPanics(t, func() { rec.Record(trace.Record{NewState: "BOUND"}) })
	assert.Equal(t, uint64(1), rec.Dropped())
}

func TestFileRecorderConcurrentRecord(t *testing.T) {
	rec, err := trace.NewFileRecorder(filepath.Join(t.TempDir(), "c.trace"), 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.Record(trace.Record{SessionID: "s", NewState: "BOUND"})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, rec.Close())
}

func TestEncodeRoundTrip(t *testing.T) {
	data, err := trace.Encode(trace.Record{SessionID: "id", NewState: "IDLE"})
	require.NoError(t, err)

	records, err := trace.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "id", records[0].SessionID)
}

func TestReadAllStopsAtMalformedRecord(t *testing.T) {
	data, err := trace.Encode(trace.Record{SessionID: "ok", NewState: "BOUND"})
	require.NoError(t, err)

	// 0xff is a CBOR break outside any indefinite-length item.
	data = append(data, 0xff)

	records, err := trace.ReadAll(bytes.NewReader(data))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, trace.ErrDecode))
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].SessionID)
}

func TestNopRecorder(t *testing.T) {
	var r trace.Recorder = trace.NopRecorder{}
	assert.NotPanics(t, func() { r.Record(trace.Record{}) })
}
