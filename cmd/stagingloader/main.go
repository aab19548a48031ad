// Command stagingloader loads a movie catalog and the mean of its ratings into
// two staging tables. It is a thin composition layer: flags and environment
// are resolved into a config.Config, the store factory and metrics recorder
// come from Deps, and the importer package does the rest.
//
// Exit status is 0 when every record was written and 1 otherwise; a summary
// of every failure goes to stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stagingloader/internal/config"
	"stagingloader/internal/db"
	"stagingloader/internal/importer"
	"stagingloader/internal/metrics"
)

const jobName = "stagingloader"

// Deps holds the boundaries run depends on so tests can swap them.
type Deps struct {
	Factory    func(p config.ConnectionParams) db.Factory
	NewMetrics func() *metrics.Recorder
}

func defaultDeps() Deps {
	return Deps{
		Factory:    db.NewFactory,
		NewMetrics: metrics.New,
	}
}

// run executes one load and pushes metrics when a Pushgateway is configured.
// A failed push is logged and never changes the result.
func run(ctx context.Context, cfg *config.Config, deps Deps) (*importer.Report, error) {
	rec := deps.NewMetrics()
	l := &importer.Loader{
		Config:  *cfg,
		Connect: deps.Factory(cfg.Conn),
		Metrics: rec,
	}
	rep, err := l.Run(ctx)
	if perr := rec.Push(cfg.Pushgateway, jobName, rep.RunID); perr != nil {
		log.Printf("⚠️ %v", perr)
	}
	return rep, err
}

func newRootCommand(stdout io.Writer, deps Deps) *cobra.Command {
	cfg := config.New()
	cmd := &cobra.Command{
		Use:   "stagingloader --catalog_csv FILE --ratings_csv FILE [flags]",
		Short: "Load catalog records and mean ratings into staging tables",
		Long: `stagingloader reads a catalog file (id,title,genres) and a ratings file
(userId,entityId,rating,timestamp), averages the ratings per entity and writes
both datasets to staging tables with idempotent inserts, in parallel chunks.

Every flag can also be set through a LOADER_<FLAG> environment variable or a
TOML file given with --config.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Resolve(viper.New(), cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			rep, err := run(cmd.Context(), cfg, deps)
			if err != nil {
				return errors.Wrapf(err, "run %s failed in %s", rep.RunID, rep.FailedIn)
			}
			fmt.Fprintf(stdout, "run %s: %d catalog records, %d entities, %d rows inserted in %s\n",
				rep.RunID, rep.CatalogRecords, rep.Entities, rep.RowsWritten, rep.Duration)
			return nil
		},
	}
	cfg.RegisterFlags(cmd.Flags())
	cmd.SetOut(stdout)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout, defaultDeps()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "stagingloader:", err)
		os.Exit(1)
	}
}
