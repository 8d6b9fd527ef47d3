package compare

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pgcompare/pgcompare/config"
	"github.com/pgcompare/pgcompare/database"
)

// Repository is the narrow surface of the repository database the
// reconciler drives. Implemented by repo.Repo.
type Repository interface {
	Tables(batchNbr int, alias string) ([]TableEntry, error)
	TableMaps(tid int) (map[Side]TableMap, error)
	AliasOverrides(tid int) (map[string]string, error)
	SaveColumnMap(cm *ColumnMap) error

	StagingTable(s Side) string
	ClearStaging(tid, batchNbr int) error
	StagedCount(s Side, tid int) (int64, error)
	VacuumStaging() error
	NewLoaderConn() (*database.Conn, error)

	RunCompare(tid, batchNbr int) (CompareCounts, error)
	Findings(tid, batchNbr int) ([]Finding, error)
	DeleteFinding(f Finding) error

	StartHistory(tid int, action string, batchNbr int) error
	CompleteHistory(tid int, action string, batchNbr int, status string, result TableResult) error
}

// Reconciler drives the end-to-end reconciliation of the tables selected
// by batch number and optional alias.
type Reconciler struct {
	Cfg    *config.Config
	Repo   Repository
	Source *database.Conn
	Target *database.Conn
	Sync   *ThreadSync
}

// NewReconciler wires a reconciler over live connections.
func NewReconciler(cfg *config.Config, repo Repository, source, target *database.Conn) *Reconciler {
	return &Reconciler{Cfg: cfg, Repo: repo, Source: source, Target: target, Sync: &ThreadSync{}}
}

func (r *Reconciler) conn(s Side) *database.Conn {
	if s == SideSource {
		return r.Source
	}
	return r.Target
}

// Run reconciles every enabled table of the batch. Table-level failures
// are recorded and the next table proceeds; only the table results are
// returned.
func (r *Reconciler) Run(mode RunMode, batchNbr int, alias string) ([]TableResult, error) {
	tables, err := r.Repo.Tables(batchNbr, alias)
	if err != nil {
		return nil, err
	}
	logger := log.WithField("thread", "reconcile")

	var results []TableResult
	for _, t := range tables {
		if !t.Enabled {
			logger.Infof("Table %s is disabled, skipping", t.Alias)
			results = append(results, TableResult{
				Tid: t.Tid, Alias: t.Alias, BatchNbr: t.BatchNbr, Status: StatusSkipped,
			})
			continue
		}
		if r.Sync.Cancelled() {
			break
		}
		results = append(results, r.reconcileTable(t, mode))
	}
	return results, nil
}

// Compile resolves the table maps and compiles the column map without
// running a compare (the maponly path).
func (r *Reconciler) Compile(t TableEntry) (*ColumnMap, map[Side]TableMap, error) {
	maps, err := r.Repo.TableMaps(t.Tid)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range Sides {
		if _, ok := maps[s]; !ok {
			return nil, nil, &MapError{Tid: t.Tid, Reason: fmt.Sprintf("no %s table map", s)}
		}
	}

	overrides, err := r.Repo.AliasOverrides(t.Tid)
	if err != nil {
		return nil, nil, err
	}

	var cols [2][]database.ColumnInfo
	for i, s := range Sides {
		tm := maps[s]
		c, err := r.conn(s).SelectColumns(tm.SchemaName, tm.TableName)
		if err != nil {
			return nil, nil, err
		}
		if len(c) == 0 {
			return nil, nil, &MapError{Tid: t.Tid, Reason: fmt.Sprintf(
				"%s table %s.%s has no columns", s, tm.SchemaName, tm.TableName)}
		}
		cols[i] = c
	}

	opts := CastOptions{
		Method:     r.Cfg.ColumnHashMethod,
		NumberCast: r.Cfg.NumberCast,
		FloatCast:  r.Cfg.FloatCast,
	}
	cm, err := CompileColumnMap(t.Tid, r.Source.Dialect, r.Target.Dialect,
		cols[0], cols[1], overrides, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := r.Repo.SaveColumnMap(cm); err != nil {
		return nil, nil, err
	}
	return cm, maps, nil
}

func (r *Reconciler) reconcileTable(t TableEntry, mode RunMode) TableResult {
	logger := log.WithField("thread", "reconcile")
	r.Sync.Reset()
	result := TableResult{
		Tid: t.Tid, Alias: t.Alias, BatchNbr: t.BatchNbr,
		Status: StatusRunning, StartedAt: time.Now(),
	}
	action := "reconcile"
	if mode == ModeCheck {
		action = "recheck"
	}

	if err := r.Repo.StartHistory(t.Tid, action, t.BatchNbr); err != nil {
		logger.Errorf("Error starting history for %s: %s", t.Alias, err)
	}

	cm, maps, err := r.Compile(t)
	if err != nil {
		logger.Errorf("Error compiling column map for %s: %s", t.Alias, err)
		result.Status = StatusFailed
		r.complete(action, result)
		return result
	}

	if mode == ModeCheck {
		result = r.recheckTable(t, cm, maps, result)
		r.complete(action, result)
		return result
	}

	logger.Info("Clearing data compare findings")
	if err := r.Repo.ClearStaging(t.Tid, t.BatchNbr); err != nil {
		logger.Errorf("Error clearing staging for %s: %s", t.Alias, err)
		result.Status = StatusFailed
		r.complete(action, result)
		return result
	}

	if err := r.runWorkers(t, cm, maps); err != nil {
		logger.Errorf("Error reconciling %s: %s", t.Alias, err)
		result.Status = StatusFailed
		result.Elapsed = time.Since(result.StartedAt)
		r.complete(action, result)
		return result
	}

	if r.Sync.Cancelled() {
		logger.Warnf("Cancelled before compare of %s; staging rows retained for inspection", t.Alias)
		result.Status = StatusFailed
		result.Elapsed = time.Since(result.StartedAt)
		r.complete(action, result)
		return result
	}

	counts, err := r.Repo.RunCompare(t.Tid, t.BatchNbr)
	if err != nil {
		logger.Errorf("Error comparing %s: %s", t.Alias, err)
		result.Status = StatusFailed
	} else {
		result.Counts = counts
		result.Status = StatusCompared
		logger.Infof("Table %s: equal=%d notEqual=%d missingSource=%d missingTarget=%d",
			t.Alias, counts.Equal, counts.NotEqual, counts.MissingSource, counts.MissingTarget)
	}
	result.Elapsed = time.Since(result.StartedAt)
	r.complete(action, result)
	return result
}

// shardDegree is the effective extractor parallelism for a table. The
// shard predicate needs a mod column; without one on both sides every
// shard would stream the full table and stage duplicates, so the degree
// collapses to a single shard.
func shardDegree(t TableEntry, maps map[Side]TableMap) int {
	parallel := t.ParallelDegree
	if parallel < 1 {
		return 1
	}
	for _, s := range Sides {
		if parallel > 1 && maps[s].ModColumn == "" {
			log.WithField("thread", "reconcile").Warnf(
				"Table %s has no mod column on the %s side, running a single shard", t.Alias, s)
			return 1
		}
	}
	return parallel
}

// runWorkers spawns the extractors, loaders and observer for one table
// and waits for the pipeline to drain.
func (r *Reconciler) runWorkers(t TableEntry, cm *ColumnMap, maps map[Side]TableMap) error {
	parallel := shardDegree(t, maps)

	queues := map[Side]*Queue{}
	for _, s := range Sides {
		queues[s] = NewQueue(r.Cfg.MessageQueueSize)
	}

	observer := &Observer{
		Sync:         r.Sync,
		ThrottleSize: r.Cfg.ObserverThrottleSize,
		Vacuum:       r.Cfg.ObserverVacuum,
		StagedCount:  func(s Side) (int64, error) { return r.Repo.StagedCount(s, t.Tid) },
		VacuumStaging: func() error {
			return r.Repo.VacuumStaging()
		},
	}
	if r.Cfg.ObserverThrottle {
		observer.Start()
		defer observer.Stop()
	}

	var loaders errgroup.Group
	if r.Cfg.LoaderThreads > 0 {
		for _, s := range Sides {
			for i := 0; i < r.Cfg.LoaderThreads; i++ {
				loader := &Loader{
					Number:       i,
					Side:         s,
					StagingTable: r.Repo.StagingTable(s),
					Queue:        queues[s],
					Sync:         r.Sync,
					CommitSize:   r.Cfg.BatchCommitSize,
					NewConn:      r.Repo.NewLoaderConn,
				}
				loaders.Go(loader.Run)
			}
		}
	}

	// Degraded diagnosis mode: extractors write staging themselves over a
	// per-side repository connection. Open those before any shard starts.
	stage := map[Side]func(Batch) error{}
	if r.Cfg.LoaderThreads == 0 {
		for _, s := range Sides {
			conn, err := r.Repo.NewLoaderConn()
			if err != nil {
				return err
			}
			defer conn.Close()
			staging := r.Repo.StagingTable(s)
			c := conn
			stage[s] = func(b Batch) error { return StageDirect(c, staging, b) }
		}
	}

	var extractors errgroup.Group
	for _, s := range Sides {
		side := s
		for shard := 0; shard < parallel; shard++ {
			r.Sync.ExtractorStarted(side)
			e := &Extractor{
				Side:     side,
				Shard:    shard,
				Parallel: parallel,
				Tid:      t.Tid,
				Conn:     r.conn(side),
				Table:    maps[side],
				Exprs:    cm.Expressions(side),
				Queue:    queues[side],
				Sync:     r.Sync,
				Cfg:      r.Cfg,
			}
			if fn := stage[side]; fn != nil {
				e.Queue = nil
				e.Stage = fn
			}
			extractors.Go(e.Run)
		}
	}

	extractErr := extractors.Wait()
	loadErr := loaders.Wait()

	if r.Sync.ExtractErrors() > 0 {
		return fmt.Errorf("%d extractor shard(s) failed", r.Sync.ExtractErrors())
	}
	if extractErr != nil {
		return extractErr
	}
	return loadErr
}

func (r *Reconciler) recheckTable(t TableEntry, cm *ColumnMap, maps map[Side]TableMap, result TableResult) TableResult {
	result.Status = StatusRechecking
	rc := &Rechecker{
		Cfg:    r.Cfg,
		Repo:   r.Repo,
		Source: r.Source,
		Target: r.Target,
	}
	rechecks, err := rc.Run(t, cm, maps)
	result.Elapsed = time.Since(result.StartedAt)
	if err != nil {
		log.WithField("thread", "reconcile").Errorf("Error rechecking %s: %s", t.Alias, err)
		result.Status = StatusFailed
		return result
	}
	result.Rechecks = rechecks
	result.Status = StatusRechecked
	for _, rr := range rechecks {
		switch rr.Outcome {
		case RecheckConfirmed:
			result.Counts.NotEqual++
		case RecheckStillMissing:
			if rr.Finding.Side == SideSource {
				result.Counts.MissingTarget++
			} else {
				result.Counts.MissingSource++
			}
		case RecheckResolved:
			result.Counts.Equal++
		}
	}
	return result
}

func (r *Reconciler) complete(action string, result TableResult) {
	if err := r.Repo.CompleteHistory(result.Tid, action, result.BatchNbr, result.Status, result); err != nil {
		log.WithField("thread", "reconcile").Errorf("Error completing history for %s: %s", result.Alias, err)
	}
}
