package compare

import (
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pgcompare/pgcompare/config"
	"github.com/pgcompare/pgcompare/database"
)

// Extractor streams one shard of a table, fingerprinting rows into
// batches on the side's queue. It owns its connection, its cursor and its
// outbound buffer; the queue and ThreadSync are the only shared state.
type Extractor struct {
	Side     Side
	Shard    int
	Parallel int
	Tid      int

	Conn  *database.Conn
	Table TableMap
	Exprs SideExpressions

	Queue *Queue
	Sync  *ThreadSync
	Cfg   *config.Config

	// Stage is set instead of Queue when loader-threads is zero: batches
	// are written synchronously into staging (degraded diagnosis mode).
	Stage func(Batch) error
}

// buildSelect renders the shard's streaming query.
func (e *Extractor) buildSelect() string {
	d := e.Conn.Dialect
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s AS pk_hash, %s AS column_hash, %s AS pk FROM %s WHERE 1=1",
		e.Exprs.PKExpression, e.Exprs.ColumnExpression, e.Exprs.PKJSON,
		d.QualifiedTable(e.Table.SchemaName, e.Table.TableName,
			e.Table.SchemaPreserveCase, e.Table.TablePreserveCase))

	if e.Parallel > 1 && e.Table.ModColumn != "" {
		modCol := d.Quote(e.Table.ModColumn, d.PreserveCase(e.Table.ModColumn))
		fmt.Fprintf(&b, " AND %s", d.ShardPredicate(modCol, e.Parallel, e.Shard))
	}
	if e.Table.TableFilter != "" {
		fmt.Fprintf(&b, " AND (%s)", e.Table.TableFilter)
	}
	if e.Cfg.DatabaseSort {
		b.WriteString(" ORDER BY 1")
	}
	return b.String()
}

// Run streams the shard to completion. The error has already been
// recorded in the sync object when non-nil; the reconciler uses it only
// to mark the table failed.
func (e *Extractor) Run() error {
	threadName := fmt.Sprintf("extract-%s-s%d", e.Side, e.Shard)
	logger := log.WithField("thread", threadName)
	logger.Infof("Start extractor for %s.%s shard %d/%d",
		e.Table.SchemaName, e.Table.TableName, e.Shard, e.Parallel)

	defer func() {
		// Sentinel lets pollers wake promptly; the counter raises the
		// side-complete flag once the last shard is done.
		if e.Queue != nil {
			e.Queue.Put(Batch{})
		}
		e.Sync.ExtractorFinished(e.Side)
	}()

	query := e.buildSelect()
	logger.Debugf("Shard query: %s", query)

	rows, err := e.Conn.Query(query)
	if err != nil {
		e.Sync.RecordExtractError()
		logger.Errorf("Error executing shard query: %s", err)
		return fmt.Errorf("extract %s shard %d: %w", e.Side, e.Shard, err)
	}
	defer rows.Close()

	batch := make(Batch, 0, e.Cfg.BatchFetchSize)
	var rowCount int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		e.Sync.AwaitThrottle()
		if e.Stage != nil {
			if err := e.Stage(batch); err != nil {
				return err
			}
		} else {
			e.Queue.Put(batch)
		}
		batch = make(Batch, 0, e.Cfg.BatchFetchSize)
		return nil
	}

	for rows.Next() {
		var pkHash, columnHash, pk sql.NullString
		if err := rows.Scan(&pkHash, &columnHash, &pk); err != nil {
			e.Sync.RecordExtractError()
			logger.Errorf("Error scanning row: %s", err)
			return fmt.Errorf("extract %s shard %d: %w", e.Side, e.Shard, err)
		}
		if !pk.Valid {
			continue
		}
		batch = append(batch, RowFingerprint{
			Tid:        e.Tid,
			PKHash:     pkHash.String,
			ColumnHash: columnHash.String,
			PK:         pk.String,
		})
		rowCount++

		if len(batch) >= e.Cfg.BatchFetchSize {
			if err := flush(); err != nil {
				e.Sync.RecordExtractError()
				logger.Errorf("Error staging batch: %s", err)
				return err
			}
			if e.Cfg.BatchProgressReportSize > 0 && rowCount%e.Cfg.BatchProgressReportSize == 0 {
				logger.Infof("Extracted %d rows", rowCount)
			}
			if e.Sync.Cancelled() {
				logger.Warnf("Cancelled after %d rows", rowCount)
				return nil
			}
		}
	}
	if err := rows.Err(); err != nil {
		e.Sync.RecordExtractError()
		logger.Errorf("Error streaming shard: %s", err)
		return fmt.Errorf("extract %s shard %d: %w", e.Side, e.Shard, err)
	}

	if err := flush(); err != nil {
		e.Sync.RecordExtractError()
		logger.Errorf("Error staging final batch: %s", err)
		return err
	}

	logger.Infof("Extractor complete, %d rows", rowCount)
	return nil
}
