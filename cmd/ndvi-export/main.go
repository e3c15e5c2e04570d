// Command ndvi-export submits one NDVI composite export per year of a job and
// exits as soon as every year has been submitted or has failed. It does not
// wait for the exports to finish; run export-monitor for that.
//
// Usage:
//
//	ndvi-export -job albemarle.hcl
//	ndvi-export -start 2020 -end 2022 -folder GEE_Exports -prefix NDVI
//
// Without -job the built-in Albemarle Peninsula job is used. Exit status is 0
// when every year was submitted, 2 when some years failed, and 1 on an
// authentication, configuration, or startup error.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/ndvi-export/internal/adapter/earthengine"
	kafkaadapter "github.com/couchcryptid/ndvi-export/internal/adapter/kafka"
	"github.com/couchcryptid/ndvi-export/internal/adapter/sqlite"
	"github.com/couchcryptid/ndvi-export/internal/batch"
	"github.com/couchcryptid/ndvi-export/internal/config"
	"github.com/couchcryptid/ndvi-export/internal/dispatch"
	"github.com/couchcryptid/ndvi-export/internal/observability"
	"github.com/couchcryptid/ndvi-export/internal/session"
	"github.com/jonboulle/clockwork"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("ndvi-export", flag.ContinueOnError)
	jobPath := fs.String("job", "", "HCL job file (default: built-in Albemarle job)")
	start := fs.Int("start", 0, "override first year")
	end := fs.Int("end", 0, "override last year")
	step := fs.Int("step", 0, "override year step")
	folder := fs.String("folder", "", "override destination folder")
	prefix := fs.String("prefix", "", "override file name prefix")
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFatal
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	job := config.DefaultJob()
	if *jobPath != "" {
		job, err = config.LoadJob(*jobPath)
		if err != nil {
			logger.Error("failed to load job", "path", *jobPath, "error", err)
			return exitFatal
		}
	}
	job = applyOverrides(job, fs, overrides{
		start: *start, end: *end, step: *step, folder: *folder, prefix: *prefix,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := sqlite.Open(ctx, cfg.LedgerPath)
	if err != nil {
		logger.Error("failed to open ledger", "path", cfg.LedgerPath, "error", err)
		return exitFatal
	}
	defer ledger.Close()

	var publisher dispatch.EventPublisher
	if cfg.EventsEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("task events enabled", "topic", cfg.KafkaTopic)
	}

	metrics := observability.NewMetrics()
	sessions := session.NewManager(cfg.CredentialsPath, cfg.EEProject, clockwork.NewRealClock(), logger)
	client := earthengine.NewClient(cfg.EEBaseURL, cfg.EETimeout, metrics, logger)
	dispatcher := dispatch.New(client, ledger, publisher, metrics, logger)
	orchestrator := batch.New(sessions, dispatcher, ledger, metrics, logger)

	result, err := orchestrator.Run(ctx, job)
	if err != nil {
		logger.Error("batch aborted", "error", err)
		if len(result.Entries) > 0 {
			_ = result.Report(stdout)
		}
		return exitFatal
	}
	if err := result.Report(stdout); err != nil {
		logger.Error("write report", "error", err)
	}

	if len(result.Failed()) > 0 {
		return exitPartial
	}
	return exitOK
}

type overrides struct {
	start, end, step int
	folder, prefix   string
}

// applyOverrides replaces job fields for every flag the operator set.
func applyOverrides(job config.Job, fs *flag.FlagSet, o overrides) config.Job {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "start":
			job.Years.Start = o.start
		case "end":
			job.Years.End = o.end
		case "step":
			job.Years.Step = o.step
		case "folder":
			job.Folder = o.folder
		case "prefix":
			job.Prefix = o.prefix
		}
	})
	return job
}
