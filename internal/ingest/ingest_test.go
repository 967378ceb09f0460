package ingest

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/soundtrace/soundtrace/internal/adapter"
	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/ledger"
	"github.com/soundtrace/soundtrace/internal/matcher"
	"github.com/soundtrace/soundtrace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	// Every connection to ":memory:" opens its own empty database, so the
	// pool's workers and the test must share a single connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Track{}, &models.Posting{}, &models.Task{}))
	return db
}

// writeSineWAV writes a short multi-tone WAV file, enough for the
// fingerprinter to find a handful of constellation peaks.
func writeSineWAV(t *testing.T, path string, seconds float64) {
	const sampleRate = 11025
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	n := int(seconds * sampleRate)
	data := make([]int, n)
	for i := 0; i < n; i++ {
		tSec := float64(i) / sampleRate
		sample := 0.6*math.Sin(2*math.Pi*440*tSec) + 0.3*math.Sin(2*math.Pi*1200*tSec)
		data[i] = int(sample * 32767)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

// toneSequence builds 16-bit PCM stepping through freqs, one step every
// stepSec. The changing spectrum gives every time region a distinct
// constellation, so offset recovery is testable (a stationary tone
// matches equally well at any alignment).
func toneSequence(freqs []float64, stepSec float64, sampleRate int) []int {
	n := int(stepSec * float64(sampleRate))
	data := make([]int, 0, n*len(freqs))
	for _, f := range freqs {
		for i := 0; i < n; i++ {
			tSec := float64(i) / float64(sampleRate)
			s := 0.6*math.Sin(2*math.Pi*f*tSec) + 0.25*math.Sin(2*math.Pi*2*f*tSec)
			data = append(data, int(s*32767))
		}
	}
	return data
}

func writePCMWAV(t *testing.T, path string, sampleRate int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func waitForTerminal(t *testing.T, l ledger.Ledger, taskID string) *models.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := l.Get(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusFailed {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state in time", taskID)
	return nil
}

func TestPoolSubmitTrackEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, filepath.Join(dir, "Artist - Title.wav"), 3)

	db := setupTestDB(t)
	store := index.NewStore(db)
	tasks := ledger.New(db)
	fetcher := adapter.NewLocalFetcher(dir)

	pool := NewPool(fetcher, fetcher, store, tasks, fingerprint.DefaultParams())
	pool.Start()
	defer pool.Shutdown(context.Background())

	taskID, err := pool.SubmitTrack(context.Background(), "file://Artist - Title.wav")
	require.NoError(t, err)

	task := waitForTerminal(t, tasks, taskID)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)

	var result SingleResult
	require.NoError(t, json.Unmarshal([]byte(task.ResultBlob), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "added", result.Status)
	assert.Equal(t, "Title", result.Title)
	assert.Equal(t, "Artist", result.Artist)
}

func TestPoolSubmitTrackTwiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, filepath.Join(dir, "Artist - Title.wav"), 3)

	db := setupTestDB(t)
	store := index.NewStore(db)
	tasks := ledger.New(db)
	fetcher := adapter.NewLocalFetcher(dir)

	pool := NewPool(fetcher, fetcher, store, tasks, fingerprint.DefaultParams())
	pool.Start()
	defer pool.Shutdown(context.Background())

	firstID, err := pool.SubmitTrack(context.Background(), "file://Artist - Title.wav")
	require.NoError(t, err)
	waitForTerminal(t, tasks, firstID)

	secondID, err := pool.SubmitTrack(context.Background(), "file://Artist - Title.wav")
	require.NoError(t, err)
	task := waitForTerminal(t, tasks, secondID)

	var result SingleResult
	require.NoError(t, json.Unmarshal([]byte(task.ResultBlob), &result))
	assert.Equal(t, "already_exists", result.Status)
}

func TestPoolSubmitPlaylistAggregatesChildren(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, filepath.Join(dir, "A - One.wav"), 3)
	writeSineWAV(t, filepath.Join(dir, "B - Two.wav"), 3)

	db := setupTestDB(t)
	store := index.NewStore(db)
	tasks := ledger.New(db)
	fetcher := adapter.NewLocalFetcher(dir)

	pool := NewPool(fetcher, fetcher, store, tasks, fingerprint.DefaultParams())
	pool.Start()
	defer pool.Shutdown(context.Background())

	taskID, err := pool.SubmitPlaylist(context.Background(), "file://")
	require.NoError(t, err)

	task := waitForTerminal(t, tasks, taskID)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Equal(t, 2, task.TotalItems)

	var result PlaylistResult
	require.NoError(t, json.Unmarshal([]byte(task.ResultBlob), &result))
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 2, result.TotalTracks)
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.True(t, item.Success)
		assert.Equal(t, "added", item.Status)
	}
}

func TestIngestThenSelfMatch(t *testing.T) {
	const sampleRate = 11025
	dir := t.TempDir()
	data := toneSequence([]float64{440, 620, 840, 1060, 1280, 1500}, 0.5, sampleRate)
	path := filepath.Join(dir, "Artist - Stepped.wav")
	writePCMWAV(t, path, sampleRate, data)

	db := setupTestDB(t)
	store := index.NewStore(db)
	tasks := ledger.New(db)
	fetcher := adapter.NewLocalFetcher(dir)

	pool := NewPool(fetcher, fetcher, store, tasks, fingerprint.DefaultParams())
	pool.Start()
	defer pool.Shutdown(context.Background())

	taskID, err := pool.SubmitTrack(context.Background(), "file://Artist - Stepped.wav")
	require.NoError(t, err)
	task := waitForTerminal(t, tasks, taskID)
	require.Equal(t, models.TaskStatusCompleted, task.Status)

	var ingested SingleResult
	require.NoError(t, json.Unmarshal([]byte(task.ResultBlob), &ingested))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	query, err := fingerprint.FromBytes(raw, fingerprint.DefaultParams())
	require.NoError(t, err)

	m := matcher.New(store, matcher.DefaultConfig())
	resp := m.Identify(context.Background(), query)
	require.True(t, resp.MatchFound)
	assert.Equal(t, ingested.TrackID, resp.TrackID)
	assert.Equal(t, "Stepped", resp.Title)
	require.NotNil(t, resp.OffsetSeconds)
	assert.LessOrEqual(t, *resp.OffsetSeconds, 0.2)
}

func TestSnippetMatchRecoversOffset(t *testing.T) {
	const sampleRate = 11025
	dir := t.TempDir()
	data := toneSequence([]float64{440, 560, 700, 860, 1040, 1240, 1460, 1700}, 0.75, sampleRate)
	fullPath := filepath.Join(dir, "Artist - Long.wav")
	writePCMWAV(t, fullPath, sampleRate, data)

	db := setupTestDB(t)
	store := index.NewStore(db)
	tasks := ledger.New(db)
	fetcher := adapter.NewLocalFetcher(dir)

	pool := NewPool(fetcher, fetcher, store, tasks, fingerprint.DefaultParams())
	pool.Start()
	defer pool.Shutdown(context.Background())

	taskID, err := pool.SubmitTrack(context.Background(), "file://Artist - Long.wav")
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, waitForTerminal(t, tasks, taskID).Status)

	// Query with the 2s..5s slice of the same signal.
	const snippetStart = 2.0
	snippetPath := filepath.Join(t.TempDir(), "snippet.wav")
	writePCMWAV(t, snippetPath, sampleRate, data[int(snippetStart*sampleRate):5*sampleRate])

	raw, err := os.ReadFile(snippetPath)
	require.NoError(t, err)
	query, err := fingerprint.FromBytes(raw, fingerprint.DefaultParams())
	require.NoError(t, err)

	m := matcher.New(store, matcher.DefaultConfig())
	resp := m.Identify(context.Background(), query)
	require.True(t, resp.MatchFound)
	require.NotNil(t, resp.OffsetSeconds)
	assert.InDelta(t, snippetStart, *resp.OffsetSeconds, 0.2)
}

func TestPoolSubmitTrackQueueFull(t *testing.T) {
	db := setupTestDB(t)
	store := index.NewStore(db)
	tasks := ledger.New(db)
	fetcher := adapter.NewLocalFetcher(t.TempDir())

	// White-box: construct a pool with a zero-capacity job channel and no
	// running workers, so the first submission fills it immediately.
	pool := &Pool{
		jobs:     make(chan job),
		workers:  1,
		meta:     fetcher,
		audio:    fetcher,
		store:    store,
		tasks:    tasks,
		params:   fingerprint.DefaultParams(),
		children: make(map[string][]SingleResult),
	}

	_, err := pool.SubmitTrack(context.Background(), "file://missing.wav")
	assert.Error(t, err)
}
