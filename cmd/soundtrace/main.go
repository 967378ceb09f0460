// Command soundtrace is a thin cobra wrapper over the recognition core for
// offline ingest/match/task inspection, without going through the HTTP
// façade (cmd/server). Exit codes: 0 success, 1 user-facing failure (no
// match, bad input), 2 system error, matching the server's own error
// taxonomy.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/soundtrace/soundtrace/internal/adapter"
	"github.com/soundtrace/soundtrace/internal/config"
	"github.com/soundtrace/soundtrace/internal/database"
	apierrors "github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/ingest"
	"github.com/soundtrace/soundtrace/internal/ledger"
	"github.com/soundtrace/soundtrace/internal/logger"
	"github.com/soundtrace/soundtrace/internal/matcher"
	"github.com/soundtrace/soundtrace/internal/models"
	"github.com/spf13/cobra"
)

const (
	exitSuccess     = 0
	exitUserFailure = 1
	exitSystemError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	if err := logger.Initialize(getEnvOrDefault("LOG_LEVEL", "warn"), getEnvOrDefault("LOG_FILE", "soundtrace-cli.log")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitSystemError
	}
	defer logger.Close()

	root := &cobra.Command{
		Use:   "soundtrace",
		Short: "Offline ingest, match and task inspection for the recognition engine",
	}

	exitCode := exitSuccess
	root.AddCommand(newIngestCmd(&exitCode))
	root.AddCommand(newMatchCmd(&exitCode))
	root.AddCommand(newTaskCmd(&exitCode))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSystemError
	}
	return exitCode
}

func newIngestCmd(exitCode *int) *cobra.Command {
	var libraryRoot string
	cmd := &cobra.Command{
		Use:   "ingest <source-url>",
		Short: "Submit a track or playlist for ingestion and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, tasks, err := bootstrapIngest(libraryRoot)
			if err != nil {
				*exitCode = exitSystemError
				return err
			}
			defer pool.Shutdown(ctx)

			sourceURL := args[0]
			var taskID string
			if adapter.IsPlaylistURL(sourceURL) {
				taskID, err = pool.SubmitPlaylist(ctx, sourceURL)
			} else {
				taskID, err = pool.SubmitTrack(ctx, sourceURL)
			}
			if err != nil {
				*exitCode = exitSystemError
				return err
			}

			task, err := awaitTerminal(ctx, tasks, taskID)
			if err != nil {
				*exitCode = exitSystemError
				return err
			}
			printJSON(task)
			if task.Status == "failed" {
				*exitCode = exitUserFailure
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&libraryRoot, "library-root", getEnvOrDefault("LIBRARY_ROOT", "./library"), "root directory for file:// source URLs")
	return cmd
}

func newMatchCmd(exitCode *int) *cobra.Command {
	var minMatches int
	cmd := &cobra.Command{
		Use:   "match <audio-file>",
		Short: "Fingerprint a local audio file and rank it against the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openDB(); err != nil {
				*exitCode = exitSystemError
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				*exitCode = exitUserFailure
				return err
			}

			cfg := config.Load()
			query, err := fingerprint.FromBytes(raw, cfg.Params)
			if err != nil {
				if apiErr, ok := err.(*apierrors.APIError); ok && apiErr.Code == apierrors.ErrEmptyFingerprint {
					printJSON(matcher.NoMatch())
					*exitCode = exitUserFailure
					return nil
				}
				*exitCode = exitSystemError
				return err
			}

			mcfg := cfg.Matcher
			mcfg.MinAbsoluteMatches = minMatches
			m := matcher.New(index.NewStore(database.DB), mcfg)
			resp := m.Identify(cmd.Context(), query)
			printJSON(resp)
			if !resp.MatchFound {
				*exitCode = exitUserFailure
			}
			return nil
		},
	}
	// Stricter than the server's default: offline matching is usually run
	// against full files, where a genuine hit aligns far more postings.
	cmd.Flags().IntVar(&minMatches, "min-matches", 10, "minimum aligned postings for a confident match")
	return cmd
}

func newTaskCmd(exitCode *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Print the current state of an ingestion task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openDB(); err != nil {
				*exitCode = exitSystemError
				return err
			}
			tasks := ledger.New(database.DB)
			task, err := tasks.Get(cmd.Context(), args[0])
			if err == ledger.ErrTaskNotFound {
				*exitCode = exitUserFailure
				return err
			}
			if err != nil {
				*exitCode = exitSystemError
				return err
			}
			printJSON(task)
			return nil
		},
	}
	return cmd
}

func bootstrapIngest(libraryRoot string) (*ingest.Pool, ledger.Ledger, error) {
	if err := openDB(); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(libraryRoot, 0o755); err != nil {
		return nil, nil, err
	}

	cfg := config.Load()
	store := index.NewStore(database.DB)
	tasks := ledger.New(database.DB)
	fetcher := adapter.NewLocalFetcher(libraryRoot)
	pool := ingest.NewPool(fetcher, fetcher, store, tasks, cfg.Params).
		WithWorkerCount(cfg.WorkerCount)
	pool.Start()
	return pool, tasks, nil
}

func openDB() error {
	if database.DB != nil {
		return nil
	}
	if err := database.Initialize(); err != nil {
		return err
	}
	return database.Migrate()
}

// awaitTerminal polls the ledger every 250ms until the task leaves
// pending/running.
func awaitTerminal(ctx context.Context, tasks ledger.Ledger, taskID string) (*models.Task, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		task, err := tasks.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status == "completed" || task.Status == "failed" {
			return task, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return task, ctx.Err()
		}
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
