// Package importer turns the two input files into write tasks and runs them
// on a fail-isolated worker pool.
//
// A run moves through a fixed sequence of phases:
//
//	Init → ParseCatalog → ParseAndAggregateRatings → BuildTasks → Dispatch → Collect → Done
//
// Any error before Dispatch is fatal and no task is started. After Collect the
// run is Failed if at least one task failed; every failure is reported.
package importer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"stagingloader/internal/chunk"
	"stagingloader/internal/config"
	"stagingloader/internal/db"
	"stagingloader/internal/domain"
	"stagingloader/internal/metrics"
	"stagingloader/internal/ratings"
	"stagingloader/internal/source"
)

// Phase is a step of a Loader run.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseParseCatalog
	PhaseParseAndAggregateRatings
	PhaseBuildTasks
	PhaseDispatch
	PhaseCollect
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{
	"Init", "ParseCatalog", "ParseAndAggregateRatings", "BuildTasks",
	"Dispatch", "Collect", "Done", "Failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Report describes a finished run, successful or not.
type Report struct {
	RunID    string
	Phase    Phase // Done or Failed
	FailedIn Phase // phase that raised the error; meaningful only when Failed

	CatalogRecords int
	RatingEvents   int
	Entities       int
	CatalogTasks   int
	RatingTasks    int
	Succeeded      int
	RowsWritten    int64
	Failures       domain.TaskErrors
	Duration       time.Duration
}

// Loader coordinates one ingestion run. It is the only component that sees
// both datasets; workers only see their own task.
type Loader struct {
	Config  config.Config
	Connect db.Factory
	Metrics *metrics.Recorder
	RunID   string // generated when empty

	// OnPhase, when set, is called on every phase transition.
	OnPhase func(Phase)
}

// New returns a Loader that connects to the store described by cfg.
func New(cfg config.Config, rec *metrics.Recorder) *Loader {
	return &Loader{Config: cfg, Connect: db.NewFactory(cfg.Conn), Metrics: rec}
}

// Run executes the whole pipeline. The returned Report is never nil. The
// error is fatal setup failure, or domain.TaskErrors when some writes failed.
func (l *Loader) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	if l.RunID == "" {
		l.RunID = uuid.NewString()
	}
	rep := &Report{RunID: l.RunID}
	l.enter(rep, PhaseInit)

	err := l.run(ctx, rep)
	rep.Duration = time.Since(start)
	if err != nil {
		rep.FailedIn = rep.Phase
		l.enter(rep, PhaseFailed)
		log.Printf("⚠️ run %s failed in %s after %s: %v", rep.RunID, rep.FailedIn, rep.Duration.Round(time.Millisecond), err)
		return rep, err
	}
	l.enter(rep, PhaseDone)

	secs := rep.Duration.Seconds()
	var rate float64
	if secs > 0 {
		rate = float64(rep.RowsWritten) / secs
	}
	log.Printf("run %s done: catalog=%d events=%d entities=%d tasks=%d inserted=%d duration=%s rate_per_second=%.0f",
		rep.RunID, rep.CatalogRecords, rep.RatingEvents, rep.Entities,
		rep.CatalogTasks+rep.RatingTasks, rep.RowsWritten, rep.Duration.Round(time.Millisecond), rate)
	return rep, nil
}

func (l *Loader) enter(rep *Report, p Phase) {
	rep.Phase = p
	if l.OnPhase != nil {
		l.OnPhase(p)
	}
}

func (l *Loader) run(ctx context.Context, rep *Report) error {
	cfg := l.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	dialect, err := db.ParseDialect(cfg.Conn.Driver)
	if err != nil {
		return &domain.ConfigError{Field: "db_driver", Reason: err.Error()}
	}
	opts := source.Options{Comma: cfg.Comma(), Encoding: cfg.Encoding}

	l.enter(rep, PhaseParseCatalog)
	csrc, err := source.OpenCatalog(cfg.CatalogCSV, opts, cfg.CatalogHeader)
	if err != nil {
		return err
	}
	catalog, err := source.ReadAll(csrc)
	if err != nil {
		return err
	}
	rep.CatalogRecords = len(catalog)
	l.Metrics.Records("catalog", len(catalog))
	log.Printf("catalog: %d records from %s", len(catalog), cfg.CatalogCSV)

	l.enter(rep, PhaseParseAndAggregateRatings)
	rsrc, err := source.OpenRatings(cfg.RatingsCSV, opts)
	if err != nil {
		return err
	}
	agg, st, err := ratings.ReduceSource(rsrc)
	if err != nil {
		return err
	}
	rep.RatingEvents, rep.Entities = st.Events, st.Entities
	l.Metrics.Records("rating_events", st.Events)
	l.Metrics.Records("entities", st.Entities)
	log.Printf("ratings: %d events over %d entities from %s", st.Events, st.Entities, cfg.RatingsCSV)

	l.enter(rep, PhaseBuildTasks)
	catalogTable := db.CatalogTable(cfg.CatalogTable)
	ratingTable := db.RatingTable(cfg.RatingsTable)
	if cfg.EnsureTables {
		if err := l.ensureTables(ctx, dialect, catalogTable, ratingTable); err != nil {
			return err
		}
	}
	catalogChunks, err := chunk.Split(catalog, cfg.Workers)
	if err != nil {
		return err
	}
	ratingChunks, err := chunk.Split(agg.Entries(), cfg.Workers)
	if err != nil {
		return err
	}
	tasks := BuildTasks(dialect, catalogTable, catalogChunks, CatalogRow)
	tasks = append(tasks, BuildTasks(dialect, ratingTable, ratingChunks, RatingRow)...)
	rep.CatalogTasks, rep.RatingTasks = len(catalogChunks), len(ratingChunks)

	l.enter(rep, PhaseDispatch)
	pool := &Pool{Workers: cfg.Workers, Driver: cfg.Conn.Driver, Connect: l.Connect, Metrics: l.Metrics}
	out := pool.Run(ctx, tasks)

	l.enter(rep, PhaseCollect)
	rep.Succeeded = out.Succeeded
	rep.RowsWritten = out.Rows
	rep.Failures = out.Failed
	return out.Err()
}

// ensureTables creates both staging tables over a short-lived control
// connection.
func (l *Loader) ensureTables(ctx context.Context, d db.Dialect, tables ...db.Table) error {
	conn, err := l.Connect(ctx)
	if err != nil {
		return &domain.ConnectionError{Driver: string(d), Err: err}
	}
	defer func() { _ = conn.Close(ctx) }()
	if err := db.EnsureTables(ctx, conn, d, tables...); err != nil {
		return &domain.QueryError{Statement: "CREATE TABLE", Err: err}
	}
	return nil
}
