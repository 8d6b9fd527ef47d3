package compare

import (
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pgcompare/pgcompare/database"
)

// loaderPollTimeout bounds each queue poll so completion is observed
// promptly once both sides drain.
const loaderPollTimeout = 500 * time.Millisecond

// Loader drains fingerprint batches from a side's queue into that side's
// staging table using a prepared, transactional insert per batch.
type Loader struct {
	Number       int
	Side         Side
	StagingTable string
	Queue        *Queue
	Sync         *ThreadSync

	// CommitSize caps the rows per transaction; zero means one
	// transaction per polled batch.
	CommitSize int

	// NewConn opens a dedicated repository connection; loaders never
	// share one.
	NewConn func() (*database.Conn, error)
}

func stagingInsertSQL(stagingTable string) string {
	return fmt.Sprintf("INSERT INTO %s (tid, pk_hash, column_hash, pk) VALUES ($1, $2, $3, ($4)::jsonb)", stagingTable)
}

// Run loads until both sides report complete and the queue is drained.
// A failed batch is rolled back and logged, then loading continues: the
// missing rows surface as findings and a rerun resolves them.
func (l *Loader) Run() error {
	threadName := fmt.Sprintf("loader-%s-t%d", l.Side, l.Number)
	logger := log.WithField("thread", threadName)
	logger.Info("Start repository loader thread")

	conn, err := l.NewConn()
	if err != nil {
		return fmt.Errorf("loader %s-%d: %w", l.Side, l.Number, err)
	}
	defer conn.Close()

	for _, stmt := range database.LoaderSessionSetup() {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("loader %s-%d session setup: %w", l.Side, l.Number, err)
		}
	}

	stmt, err := conn.Prepare(stagingInsertSQL(l.StagingTable))
	if err != nil {
		return fmt.Errorf("loader %s-%d prepare: %w", l.Side, l.Number, err)
	}
	defer stmt.Close()

	for {
		batch, ok := l.Queue.Poll(loaderPollTimeout)
		if ok && len(batch) > 0 {
			for _, chunk := range l.chunks(batch) {
				if err := l.insertBatch(conn, stmt, chunk); err != nil {
					logger.Errorf("Error loading batch of %d rows: %s", len(chunk), err)
				} else {
					l.Sync.AddLoaded(l.Side, int64(len(chunk)))
				}
			}
		}
		if l.Sync.SidesComplete() && l.Queue.Empty() {
			break
		}
	}

	logger.Info("Loader thread complete")
	l.Sync.LoaderFinished()
	return nil
}

// chunks splits a batch into commit-sized transactions.
func (l *Loader) chunks(batch Batch) []Batch {
	if l.CommitSize <= 0 || len(batch) <= l.CommitSize {
		return []Batch{batch}
	}
	var out []Batch
	for len(batch) > l.CommitSize {
		out = append(out, batch[:l.CommitSize])
		batch = batch[l.CommitSize:]
	}
	return append(out, batch)
}

func (l *Loader) insertBatch(conn *database.Conn, stmt *sql.Stmt, batch Batch) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	txStmt := tx.Stmt(stmt)
	for _, row := range batch {
		if row.PK == "" {
			continue
		}
		if _, err := txStmt.Exec(row.Tid, row.PKHash, row.ColumnHash, row.PK); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// StageDirect writes a batch synchronously into staging on the given
// connection. Used when loader-threads is zero.
func StageDirect(conn *database.Conn, stagingTable string, batch Batch) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	insert := stagingInsertSQL(stagingTable)
	for _, row := range batch {
		if row.PK == "" {
			continue
		}
		if _, err := tx.Exec(insert, row.Tid, row.PKHash, row.ColumnHash, row.PK); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
