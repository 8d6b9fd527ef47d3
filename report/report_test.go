package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgcompare/pgcompare/compare"
)

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	data := Data{
		GeneratedAt: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		Project:     1,
		Action:      "compare",
		Tables: []compare.TableResult{
			{
				Tid: 1, Alias: "customers", BatchNbr: 1,
				Status: compare.StatusCompared,
				Counts: compare.CompareCounts{Equal: 1000, NotEqual: 3, MissingTarget: 2},
				Elapsed: 4 * time.Second,
			},
			{
				Tid: 2, Alias: "orders", BatchNbr: 1,
				Status:  compare.StatusCompared,
				Counts:  compare.CompareCounts{Equal: 500},
				Elapsed: time.Second,
			},
		},
	}
	require.NoError(t, Write(path, data))

	html, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(html)

	assert.Contains(t, body, "customers")
	assert.Contains(t, body, "orders")
	assert.Contains(t, body, ">1000<")
	assert.Contains(t, body, ">5<", "total out of sync")
	assert.Contains(t, body, "compare")
}

func TestWriteReportRechecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	data := Data{
		GeneratedAt: time.Now(),
		Action:      "check",
		Tables: []compare.TableResult{{
			Alias:  "customers",
			Status: compare.StatusRechecked,
			Rechecks: []compare.RecheckResult{
				{
					Finding: compare.Finding{PK: `{"id": "7"}`, Status: compare.FindingNotEqual},
					Outcome: compare.RecheckConfirmed,
				},
				{
					Finding: compare.Finding{PK: `{"id": "8"}`, Status: compare.FindingMissing},
					Outcome: compare.RecheckResolved,
				},
			},
		}},
	}
	require.NoError(t, Write(path, data))

	html, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(html)
	assert.Contains(t, body, "Recheck: customers")
	assert.Contains(t, body, "confirmed")
	assert.Contains(t, body, "resolved")
}

func TestDataTotals(t *testing.T) {
	d := Data{Tables: []compare.TableResult{
		{Counts: compare.CompareCounts{Equal: 10, NotEqual: 1}},
		{Counts: compare.CompareCounts{Equal: 5, MissingSource: 2}},
	}}
	assert.Equal(t, int64(3), d.TotalOutOfSync())
	assert.Equal(t, int64(18), d.TotalRows())
}
