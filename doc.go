// Package soundtrace is an audio-fingerprint recognition engine: it
// ingests reference tracks into an inverted hash index and identifies
// short recordings against it by time-coherent histogram matching.
//
// Entry points live under cmd/ (cmd/server for the HTTP/WS façade,
// cmd/soundtrace for the offline CLI). The implementation is organized
// into subpackages:
//
//   - internal/audio: audio decoding (WAV, MP3) to mono PCM
//   - internal/dsp: STFT spectrogram computation and peak picking
//   - internal/fingerprint: constellation pairing and hash generation
//   - internal/index: the track/posting store and hot-hash cache layer
//   - internal/matcher: time-delta histogram ranking
//   - internal/ingest: the worker pool driving track/playlist ingestion
//   - internal/ledger: the ingestion task state machine and retention sweep
//   - internal/adapter: catalog adapters (local filesystem today)
//   - internal/handlers: HTTP request handlers (ingest, match, tasks, stats)
//   - internal/websocket: WS /identify and WS /tasks/{id} streaming surfaces
//   - internal/models: Track, Posting and Task schemas
//   - internal/config: environment-driven engine tuning
//   - internal/container: dependency injection container
//   - internal/database: database connection and migrations
//   - internal/cache: Redis client and posting cache
//   - internal/middleware: HTTP middleware (metrics, logging, tracing)
//   - internal/telemetry: OpenTelemetry tracing setup
package soundtrace
