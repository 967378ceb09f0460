// Package ingest runs the single-track and playlist ingestion pipelines
// over a bounded worker pool: buffered job channel, capped worker count,
// mutex-guarded bookkeeping.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soundtrace/soundtrace/internal/adapter"
	apierrors "github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/ledger"
	"github.com/soundtrace/soundtrace/internal/logger"
	"github.com/soundtrace/soundtrace/internal/metrics"
	"github.com/soundtrace/soundtrace/internal/models"
	"go.uber.org/zap"
)

// job is one unit of work submitted to the pool. A child job carries
// parentTaskID so its completion is folded into the playlist task instead
// of transitioning its own ledger row (it has none).
type job struct {
	taskID       string
	parentTaskID string
	sourceURL    string
}

// SingleResult is the {success, track_id, status, title, artist} shape
// returned for a single-track ingestion.
type SingleResult struct {
	Success bool   `json:"success"`
	TrackID uint32 `json:"track_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Error   string `json:"error,omitempty"`
	URL     string `json:"url,omitempty"`
}

// PlaylistResult is the result blob stored on a completed playlist task.
type PlaylistResult struct {
	SuccessCount int            `json:"success_count"`
	TotalTracks  int            `json:"total_tracks"`
	Items        []SingleResult `json:"per_track_results"`
}

func playlistResult(items []SingleResult, total int) PlaylistResult {
	succeeded := 0
	for _, item := range items {
		if item.Success {
			succeeded++
		}
	}
	return PlaylistResult{SuccessCount: succeeded, TotalTracks: total, Items: items}
}

// Pool runs ingestion jobs across a bounded set of workers.
type Pool struct {
	jobs    chan job
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	meta   adapter.MetadataFetcher
	audio  adapter.AudioFetcher
	store  index.Store
	tasks  ledger.Ledger
	params fingerprint.Params

	childMu  sync.Mutex
	children map[string][]SingleResult // parentTaskID -> collected child results
}

// NewPool wires a pool against its dependencies. Worker count defaults
// to runtime.NumCPU().
func NewPool(meta adapter.MetadataFetcher, audio adapter.AudioFetcher, store index.Store, tasks ledger.Ledger, params fingerprint.Params) *Pool {
	workers := runtime.NumCPU()

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:     make(chan job, 100),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
		meta:     meta,
		audio:    audio,
		store:    store,
		tasks:    tasks,
		params:   params,
		children: make(map[string][]SingleResult),
	}
}

// WithWorkerCount overrides the default worker count. n <= 0 keeps the
// CPU-based default. Must be called before Start.
func (p *Pool) WithWorkerCount(n int) *Pool {
	if n > 0 {
		p.workers = n
	}
	return p
}

// Start spins up the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Shutdown cancels outstanding work and waits for in-flight jobs to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitTrack creates a pending task and enqueues a single-track job,
// returning the task ID the caller polls at GET /tasks/{id}.
func (p *Pool) SubmitTrack(ctx context.Context, sourceURL string) (string, error) {
	taskID := uuid.New().String()
	if _, err := p.tasks.Create(ctx, taskID, models.TaskTypeTrack, sourceURL, 1); err != nil {
		return "", err
	}

	select {
	case p.jobs <- job{taskID: taskID, sourceURL: sourceURL}:
		return taskID, nil
	default:
		_ = p.tasks.Transition(ctx, taskID, models.TaskStatusFailed)
		return "", apierrors.StoreContentionErr("ingest pool queue is full")
	}
}

// SubmitPlaylist resolves the playlist up front, creating the task with
// total_items=N, then enqueues one child job per resolved track. A
// resolve failure is a catastrophic parent error: the task moves
// straight to failed without enqueueing anything.
func (p *Pool) SubmitPlaylist(ctx context.Context, sourceURL string) (string, error) {
	taskID := uuid.New().String()

	tracks, err := p.meta.GetPlaylist(ctx, sourceURL)
	if err != nil {
		if _, createErr := p.tasks.Create(ctx, taskID, models.TaskTypePlaylist, sourceURL, 0); createErr == nil {
			_ = p.tasks.Transition(ctx, taskID, models.TaskStatusFailed)
		}
		return "", err
	}

	if _, err := p.tasks.Create(ctx, taskID, models.TaskTypePlaylist, sourceURL, len(tracks)); err != nil {
		return "", err
	}
	if err := p.tasks.Transition(ctx, taskID, models.TaskStatusRunning); err != nil {
		return "", err
	}

	if len(tracks) == 0 {
		blob, _ := json.Marshal(playlistResult(nil, 0))
		_ = p.tasks.SetResult(ctx, taskID, string(blob))
		_ = p.tasks.Transition(ctx, taskID, models.TaskStatusCompleted)
		return taskID, nil
	}

	p.childMu.Lock()
	p.children[taskID] = make([]SingleResult, 0, len(tracks))
	p.childMu.Unlock()

	for _, t := range tracks {
		select {
		case p.jobs <- job{taskID: taskID, parentTaskID: taskID, sourceURL: t.ID}:
		default:
			logger.ErrorWithFields("ingest pool queue full, dropping playlist child", fmt.Errorf("url=%s", t.ID))
			p.recordChild(taskID, SingleResult{Success: false, Error: "ingest queue full", URL: t.ID}, len(tracks))
		}
	}

	return taskID, nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(j)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) process(j job) {
	metrics.Get().IngestQueueDepth.WithLabelValues("ingest").Set(float64(len(p.jobs)))
	start := time.Now()
	if j.parentTaskID == "" {
		p.processTrackJob(j)
		metrics.Get().IngestJobDuration.WithLabelValues("track").Observe(time.Since(start).Seconds())
		return
	}
	p.processChildJob(j)
	metrics.Get().IngestJobDuration.WithLabelValues("playlist_child").Observe(time.Since(start).Seconds())
}

func (p *Pool) processTrackJob(j job) {
	ctx := p.ctx
	if err := p.tasks.Transition(ctx, j.taskID, models.TaskStatusRunning); err != nil {
		logger.Error("task transition to running failed", logger.WithTaskID(j.taskID), zap.Error(err))
		return
	}

	result := p.ingestOne(ctx, j.sourceURL)
	blob, _ := json.Marshal(result)
	_ = p.tasks.SetResult(ctx, j.taskID, string(blob))

	status := models.TaskStatusCompleted
	if !result.Success {
		status = models.TaskStatusFailed
	}
	if err := p.tasks.Transition(ctx, j.taskID, status); err != nil {
		logger.Error("task transition failed", logger.WithTaskID(j.taskID), zap.Error(err))
	}
	metrics.Get().IngestJobsTotal.WithLabelValues("track", string(status)).Inc()
}

func (p *Pool) processChildJob(j job) {
	ctx := p.ctx
	result := p.ingestOne(ctx, j.sourceURL)
	if !result.Success {
		result.URL = j.sourceURL
	}

	total := 0
	if task, err := p.tasks.Get(ctx, j.parentTaskID); err == nil {
		total = task.TotalItems
	}
	p.recordChild(j.parentTaskID, result, total)

	_ = p.tasks.IncrementProcessed(ctx, j.parentTaskID)
	metrics.Get().IngestJobsTotal.WithLabelValues("playlist_child", outcomeLabel(result.Success)).Inc()
}

func outcomeLabel(success bool) string {
	if success {
		return "completed"
	}
	return "failed"
}

// recordChild appends a child result to its parent's collected results,
// finalizing the parent task once every child has reported in. Failure
// isolation: an individual child's failure never moves the parent to
// failed, only the aggregate result blob records it.
func (p *Pool) recordChild(parentTaskID string, result SingleResult, total int) {
	p.childMu.Lock()
	p.children[parentTaskID] = append(p.children[parentTaskID], result)
	results := p.children[parentTaskID]
	done := total > 0 && len(results) >= total
	if done {
		delete(p.children, parentTaskID)
	}
	p.childMu.Unlock()

	if !done {
		return
	}

	blob, _ := json.Marshal(playlistResult(results, total))
	ctx := p.ctx
	_ = p.tasks.SetResult(ctx, parentTaskID, string(blob))
	_ = p.tasks.Transition(ctx, parentTaskID, models.TaskStatusCompleted)
}

// ingestOne runs decode -> spectrogram -> peaks -> hashes -> upsert_track
// -> insert_postings for a single reference URL. Temp file cleanup
// happens unconditionally, win or lose.
func (p *Pool) ingestOne(ctx context.Context, sourceURL string) SingleResult {
	trackMeta, err := p.meta.GetTrack(ctx, sourceURL)
	if err != nil {
		return SingleResult{Success: false, Error: err.Error()}
	}

	tempPath, _, err := p.audio.SearchAndDownload(ctx, sourceURL)
	if err != nil {
		return SingleResult{Success: false, Error: err.Error()}
	}
	defer os.Remove(tempPath)

	raw, err := os.ReadFile(tempPath)
	if err != nil {
		return SingleResult{Success: false, Error: apierrors.DecodeError(err.Error()).Error()}
	}

	fps, err := fingerprint.FromBytes(raw, p.params)
	if err != nil {
		return SingleResult{Success: false, Error: err.Error()}
	}

	trackID, created, err := p.store.UpsertTrack(ctx, index.TrackMetadata{
		Title:       trackMeta.Title,
		Artist:      trackMeta.Artist,
		Album:       trackMeta.Album,
		SourceType:  models.SourceTypeFile,
		SourceID:    trackMeta.ID,
		DurationMs:  trackMeta.DurationMs,
		ReleaseDate: trackMeta.ReleaseDate,
		SpotifyURL:  trackMeta.SpotifyURL,
	})
	if err != nil {
		return SingleResult{Success: false, Error: err.Error()}
	}

	status := "already_exists"
	if created {
		postings := make([]models.Posting, len(fps))
		for i, fp := range fps {
			postings[i] = models.Posting{Hash: fp.Hash, Offset: fp.Offset}
		}
		if err := p.store.InsertPostings(ctx, trackID, postings); err != nil {
			return SingleResult{Success: false, Error: err.Error()}
		}
		status = "added"
	}

	return SingleResult{
		Success: true,
		TrackID: trackID,
		Status:  status,
		Title:   trackMeta.Title,
		Artist:  trackMeta.Artist,
	}
}
