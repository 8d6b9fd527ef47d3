// Package pgcompare wires configuration, connections and the reconciler
// into the command actions exposed by the CLI.
package pgcompare

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/k0kubun/pp/v3"
	log "github.com/sirupsen/logrus"

	"github.com/pgcompare/pgcompare/compare"
	"github.com/pgcompare/pgcompare/config"
	"github.com/pgcompare/pgcompare/database"
	"github.com/pgcompare/pgcompare/repo"
	"github.com/pgcompare/pgcompare/report"
)

// Exit codes. OutOfSync lets CI pipelines fail a build on drift.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitOutOfSync = 2
)

// Options are the parsed command-line selections.
type Options struct {
	Action  string // init, discover, compare, check, copy-table
	Batch   int    // 0 = all batches
	Project int    // 0 = project from the config file
	Table   string // restrict to one table alias
	CopyTo  string // destination alias for copy-table
	Report  string // HTML report path, empty = none
	MapOnly bool   // compile and print the column map, then stop
	Debug   bool   // force debug logging
}

// Run executes one action and returns the process exit code.
func Run(cfg *config.Config, opts *Options) int {
	if opts.Debug {
		cfg.LogLevel = "debug"
	}
	if opts.Project > 0 {
		cfg.Project = opts.Project
	}
	SetupLogging(cfg)
	logger := log.WithField("thread", "main")

	repoConn, err := database.Connect("repo", cfg.Repo())
	if err != nil {
		logger.Errorf("Cannot connect to repository: %s", err)
		return ExitError
	}
	defer repoConn.Close()
	r := repo.New(repoConn, cfg.Repo(), cfg.Project)

	switch opts.Action {
	case "init":
		if err := r.Init(); err != nil {
			logger.Errorf("Error initializing repository: %s", err)
			return ExitError
		}
		return ExitOK

	case "discover":
		source, target, err := connectSides(cfg)
		if err != nil {
			logger.Errorf("%s", err)
			return ExitError
		}
		defer source.Close()
		defer target.Close()
		if err := r.Discover(source, target, cfg.SourceSchema, cfg.TargetSchema); err != nil {
			logger.Errorf("Error during discovery: %s", err)
			return ExitError
		}
		return ExitOK

	case "copy-table":
		if opts.Table == "" || opts.CopyTo == "" {
			logger.Error("copy-table requires --table and --to")
			return ExitError
		}
		if err := r.CopyTable(opts.Table, opts.CopyTo); err != nil {
			logger.Errorf("Error copying table: %s", err)
			return ExitError
		}
		return ExitOK

	case "compare", "check":
		return runReconcile(cfg, opts, r)

	default:
		logger.Errorf("Unknown action: %s", opts.Action)
		return ExitError
	}
}

func runReconcile(cfg *config.Config, opts *Options, r *repo.Repo) int {
	logger := log.WithField("thread", "main")

	source, target, err := connectSides(cfg)
	if err != nil {
		logger.Errorf("%s", err)
		return ExitError
	}
	defer source.Close()
	defer target.Close()
	logVersions(source, target)

	rec := compare.NewReconciler(cfg, r, source, target)
	cancelOnSignal(rec.Sync)

	if opts.MapOnly {
		return runMapOnly(rec, r, opts)
	}

	mode := compare.ModeCompare
	if opts.Action == "check" {
		mode = compare.ModeCheck
	}

	started := time.Now()
	results, err := rec.Run(mode, opts.Batch, opts.Table)
	if err != nil {
		logger.Errorf("Error running %s: %s", opts.Action, err)
		return ExitError
	}

	var outOfSync, failed int64
	for _, res := range results {
		if res.Status == compare.StatusFailed {
			failed++
		}
		outOfSync += res.Counts.OutOfSync()
		logger.Infof("Table %s: status=%s equal=%d outOfSync=%d elapsed=%s",
			res.Alias, res.Status, res.Counts.Equal, res.Counts.OutOfSync(),
			res.Elapsed.Round(time.Millisecond))
	}
	logger.Infof("Processed %d table(s) in %s, %d row(s) out of sync",
		len(results), time.Since(started).Round(time.Millisecond), outOfSync)

	if opts.Report != "" {
		data := report.Data{
			GeneratedAt: time.Now(),
			Project:     cfg.Project,
			Action:      opts.Action,
			Tables:      results,
		}
		if err := report.Write(opts.Report, data); err != nil {
			logger.Errorf("Error writing report: %s", err)
		} else {
			logger.Infof("Report written to %s", opts.Report)
		}
	}

	switch {
	case failed > 0:
		return ExitError
	case outOfSync > 0:
		return ExitOutOfSync
	default:
		return ExitOK
	}
}

// runMapOnly compiles and prints each selected table's column map without
// touching staging.
func runMapOnly(rec *compare.Reconciler, r *repo.Repo, opts *Options) int {
	logger := log.WithField("thread", "main")

	tables, err := r.Tables(opts.Batch, opts.Table)
	if err != nil {
		logger.Errorf("Error listing tables: %s", err)
		return ExitError
	}
	for _, t := range tables {
		cm, _, err := rec.Compile(t)
		if err != nil {
			logger.Errorf("Error compiling column map for %s: %s", t.Alias, err)
			return ExitError
		}
		fmt.Printf("-- %s\n", t.Alias)
		pp.Println(cm)
	}
	return ExitOK
}

func connectSides(cfg *config.Config) (*database.Conn, *database.Conn, error) {
	source, err := database.Connect("source", cfg.Side("source"))
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to source: %w", err)
	}
	target, err := database.Connect("target", cfg.Side("target"))
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("cannot connect to target: %w", err)
	}
	return source, target, nil
}

func logVersions(source, target *database.Conn) {
	logger := log.WithField("thread", "main")
	if v := source.Version(); v != "" {
		logger.Infof("Source version: %s", v)
	}
	if v := target.Version(); v != "" {
		logger.Infof("Target version: %s", v)
	}
}

// cancelOnSignal raises the shutdown flag on SIGINT/SIGTERM so workers
// stop at the next batch boundary; a second signal kills the process.
func cancelOnSignal(sync *compare.ThreadSync) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		log.WithField("thread", "main").Warn("Shutdown requested, finishing current batches")
		sync.Cancel()
		<-ch
		os.Exit(ExitError)
	}()
}

// SetupLogging configures logrus from the config's log-level and
// log-destination keys.
func SetupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	switch cfg.LogDestination {
	case "", "stdout":
		log.SetOutput(os.Stdout)
	case "stderr":
		log.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.LogDestination, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.SetOutput(os.Stdout)
			log.WithField("thread", "main").Warnf("Cannot open log destination %s: %s", cfg.LogDestination, err)
			return
		}
		log.SetOutput(f)
	}
}
