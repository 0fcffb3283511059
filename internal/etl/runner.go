package etl

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jwoo-kim/weather-etl/internal/config"
	"github.com/jwoo-kim/weather-etl/internal/sink"
	"github.com/jwoo-kim/weather-etl/internal/store"
	"github.com/jwoo-kim/weather-etl/internal/weather"
)

// Stage names the phase an ETL run is in. A failed run records the stage
// it reached together with the error.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageConfiguring  Stage = "configuring"
	StageExtracting   Stage = "extracting"
	StageTransforming Stage = "transforming"
	StageLoading      Stage = "loading"
	StageDone         Stage = "done"
)

// Source fetches one observation per requested city.
type Source interface {
	FetchAll(ctx context.Context, cities []string) ([]weather.Observation, error)
}

// Sink loads a batch of canonical rows under a strategy.
type Sink interface {
	Load(ctx context.Context, rows []weather.Row, strategy sink.Strategy) error
	Close() error
}

// Runner composes source, transformer and sink into one ETL run. Every
// failure inside a run is caught at this boundary: RunOnce always returns
// normally and the scheduler proceeds to the next tick regardless of
// outcome.
type Runner struct {
	cfg     *config.AppConfig
	history *store.RunHistory

	source   Source
	openSink func(ctx context.Context) (Sink, error)
}

// NewRunner wires the runner with the production source and sink. The
// source client lives for the process so its circuit breaker state carries
// across runs; the sink connection is opened and closed per run.
func NewRunner(cfg *config.AppConfig, history *store.RunHistory) *Runner {
	client := weather.NewClient(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.APIKey)

	return &Runner{
		cfg:     cfg,
		history: history,
		source:  client,
		openSink: func(ctx context.Context) (Sink, error) {
			return sink.Open(ctx, sink.Config{
				Host:     cfg.DBHost,
				Port:     cfg.DBPort,
				User:     cfg.DBUser,
				Password: cfg.DBPassword,
				Database: cfg.DBName,
				Table:    cfg.Table,
			})
		},
	}
}

// RunOnce executes one complete extract-transform-load cycle. It never
// panics or returns an error out of the scheduling boundary; outcomes are
// logged and recorded in the run history.
func (r *Runner) RunOnce(ctx context.Context) {
	result := store.RunResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Stage:     string(StageIdle),
	}
	defer func() {
		if p := recover(); p != nil {
			result.Error = fmt.Sprintf("panic: %v", p)
		}
		result.FinishedAt = time.Now().UTC()
		r.history.Append(result)

		if result.Succeeded() {
			log.Printf("run %s: completed, %d rows loaded", result.ID, result.Rows)
		} else {
			log.Printf("run %s: failed during %s: %s", result.ID, result.Stage, result.Error)
		}
	}()

	log.Printf("run %s: starting ETL cycle for %d cities", result.ID, len(r.cfg.Cities))

	result.Stage = string(StageConfiguring)
	if err := r.cfg.Validate(); err != nil {
		result.Error = err.Error()
		return
	}

	strategy, err := sink.ParseStrategy(r.cfg.Strategy)
	if err != nil {
		result.Error = err.Error()
		return
	}

	sinkClient, err := r.openSink(ctx)
	if err != nil {
		result.Error = err.Error()
		return
	}
	defer sinkClient.Close()

	result.Stage = string(StageExtracting)
	observations, err := r.source.FetchAll(ctx, r.cfg.Cities)
	if err != nil {
		result.Error = err.Error()
		return
	}
	log.Printf("run %s: extracted %d observations", result.ID, len(observations))

	result.Stage = string(StageTransforming)
	rows, err := Transform(observations)
	if err != nil {
		result.Error = err.Error()
		return
	}
	log.Printf("run %s: transformed %d rows", result.ID, len(rows))

	result.Stage = string(StageLoading)
	if err := sinkClient.Load(ctx, rows, strategy); err != nil {
		result.Error = err.Error()
		return
	}

	result.Rows = len(rows)
	result.Stage = string(StageDone)
}
