package compare

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nozzle/throttler"
	log "github.com/sirupsen/logrus"

	"github.com/pgcompare/pgcompare/config"
	"github.com/pgcompare/pgcompare/database"
)

// recheckConcurrency bounds the number of in-flight single-row probes.
const recheckConcurrency = 8

// Rechecker re-examines previously recorded findings row by row: each
// finding's primary key is bound back against both tables and the
// fingerprints are recomputed in place. Findings that no longer differ
// are deleted; the rest are confirmed.
type Rechecker struct {
	Cfg    *config.Config
	Repo   Repository
	Source *database.Conn
	Target *database.Conn
}

func (rc *Rechecker) conn(s Side) *database.Conn {
	if s == SideSource {
		return rc.Source
	}
	return rc.Target
}

// findingGroup is every finding recorded for one primary key. A
// not_equal row is written on both sides, so the group is probed once
// and its outcome counts the row once.
type findingGroup struct {
	primary Finding
	all     []Finding
}

// groupFindings collapses the per-side findings to one group per key,
// preserving first-seen order. The source-side finding leads the group
// when both sides recorded one.
func groupFindings(findings []Finding) []findingGroup {
	index := make(map[string]int, len(findings))
	var groups []findingGroup
	for _, f := range findings {
		if i, ok := index[f.PK]; ok {
			groups[i].all = append(groups[i].all, f)
			if f.Side == SideSource {
				groups[i].primary = f
			}
			continue
		}
		index[f.PK] = len(groups)
		groups = append(groups, findingGroup{primary: f, all: []Finding{f}})
	}
	return groups
}

// Run rechecks every finding of the table's batch, one probe per
// distinct primary key.
func (rc *Rechecker) Run(t TableEntry, cm *ColumnMap, maps map[Side]TableMap) ([]RecheckResult, error) {
	logger := log.WithField("thread", "recheck")

	findings, err := rc.Repo.Findings(t.Tid, t.BatchNbr)
	if err != nil {
		return nil, err
	}
	if len(findings) == 0 {
		logger.Infof("Table %s has no findings to recheck", t.Alias)
		return nil, nil
	}
	groups := groupFindings(findings)
	logger.Infof("Rechecking %d row(s) behind %d finding(s) for table %s",
		len(groups), len(findings), t.Alias)

	type recheckedGroup struct {
		res RecheckResult
		all []Finding
	}

	var mu sync.Mutex
	rechecked := make([]recheckedGroup, 0, len(groups))

	th := throttler.New(recheckConcurrency, len(groups))
	for _, g := range groups {
		go func(g findingGroup) {
			res, err := rc.recheckFinding(g.primary, cm, maps)
			if err == nil {
				mu.Lock()
				rechecked = append(rechecked, recheckedGroup{res: res, all: g.all})
				mu.Unlock()
			}
			th.Done(err)
		}(g)
		th.Throttle()
	}

	results := make([]RecheckResult, 0, len(rechecked))
	for _, rg := range rechecked {
		results = append(results, rg.res)
	}
	if err := th.Err(); err != nil {
		return results, err
	}

	for _, rg := range rechecked {
		if rg.res.Outcome != RecheckResolved {
			continue
		}
		// Both sides' findings clear together.
		for _, f := range rg.all {
			if err := rc.Repo.DeleteFinding(f); err != nil {
				logger.Errorf("Error clearing resolved finding %s: %s", f.PK, err)
			}
		}
	}
	return results, nil
}

// recheckFinding probes both tables for the finding's key and classifies
// the outcome.
func (rc *Rechecker) recheckFinding(f Finding, cm *ColumnMap, maps map[Side]TableMap) (RecheckResult, error) {
	res := RecheckResult{Finding: f}

	pkValues, err := parsePK(f.PK)
	if err != nil {
		return res, fmt.Errorf("finding pk %s: %w", f.PK, err)
	}

	var hashes [2]string
	var present [2]bool
	for i, s := range Sides {
		hash, found, err := rc.probe(s, cm, maps[s], pkValues)
		if err != nil {
			return res, err
		}
		hashes[i] = hash
		present[i] = found
	}

	switch {
	case present[0] && present[1] && hashes[0] == hashes[1]:
		res.Outcome = RecheckResolved
	case !present[0] && !present[1]:
		// Row deleted from both sides since the compare.
		res.Outcome = RecheckResolved
	case f.Status == FindingMissing && present[0] != present[1]:
		res.Outcome = RecheckStillMissing
	default:
		res.Outcome = RecheckConfirmed
	}
	return res, nil
}

// probe fetches one row's fingerprint by primary key. Returns found=false
// when the key no longer exists on that side.
func (rc *Rechecker) probe(s Side, cm *ColumnMap, tm TableMap, pkValues map[string]string) (string, bool, error) {
	conn := rc.conn(s)
	d := conn.Dialect
	exprs := cm.Expressions(s)

	var preds []string
	var binds []interface{}
	for _, c := range cm.PKColumns() {
		v, ok := pkValues[c.Alias]
		if !ok {
			return "", false, fmt.Errorf("pk value for %s missing from finding", c.Alias)
		}
		preds = append(preds, fmt.Sprintf("%s = %s",
			c.side(s).ValueExpression, d.Placeholder(len(binds)+1)))
		binds = append(binds, v)
	}

	query := fmt.Sprintf("SELECT %s AS column_hash FROM %s WHERE %s",
		exprs.ColumnExpression,
		d.QualifiedTable(tm.SchemaName, tm.TableName, tm.SchemaPreserveCase, tm.TablePreserveCase),
		strings.Join(preds, " AND "))

	var hash string
	err := conn.QueryRow(query, binds...).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("recheck probe %s: %w", s, err)
	}
	return hash, true, nil
}

// parsePK decodes the staged pk JSON object into alias/value pairs. All
// values are canonical strings regardless of the column's native type.
func parsePK(pk string) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(pk), &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("empty primary key object")
	}
	return m, nil
}
