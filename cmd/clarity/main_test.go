package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-bi/clarity/engine"
	"github.com/clarity-bi/clarity/schema"
	"github.com/clarity-bi/clarity/session"
)

const (
	salesCSV = `Policy No,Dealer,Product,Make,Policy Sold Date,Gross Premium
P1,A,Gold,Toyota,2024-01-10,1000
P2,B,Silver,Honda,2024-02-15,2000
P3,A,Gold,Ford,2024-02-20,1500
P4,C,Silver,Toyota,2024-03-05,1500
`
	claimsCSV = `Policy No,Claim Status,Total Auth Amount,Failure Date
P1,Approved,300,2024-03-01
P3,Rejected,120,2024-04-11
`
)

type fixture struct {
	dir    string
	sales  string
	claims string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:    dir,
		sales:  filepath.Join(dir, "sales.csv"),
		claims: filepath.Join(dir, "claims.csv"),
	}
	require.NoError(t, os.WriteFile(f.sales, []byte(salesCSV), 0o600))
	require.NoError(t, os.WriteFile(f.claims, []byte(claimsCSV), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[log]\nlevel = \"error\"\n"), 0o600))
	return f
}

// run executes the CLI with the fixture's config and no window.
func (f fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--config", f.dir, "--env-file", "", "--window-months", "0"))
	err := root.Execute()
	return out.String(), err
}

func (f fixture) input() []string {
	return []string{"--sales", f.sales, "--claims", f.claims}
}

func TestSummaryJSON(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, append([]string{"summary", "--format", "json"}, f.input()...)...)
	require.NoError(t, err)

	var got struct {
		KPIs   engine.KPISnapshot `json:"kpis"`
		Budget engine.Budget      `json:"budget"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 4, got.KPIs.TotalPolicies)
	assert.Equal(t, 6000.0, got.KPIs.TotalPremium)
	assert.Equal(t, 6000.0, got.Budget.Revenue.Actual)

	out, err = f.run(t, append([]string{"summary", "--format", "json", "--filter", "dealer=A"}, f.input()...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.KPIs.TotalPolicies)
}

func TestSummaryText(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, append([]string{"summary"}, f.input()...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "=== OVERALL KPIs ===")
	assert.Contains(t, out, "=== DEALER PERFORMANCE")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestDiscover(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, append([]string{"discover"}, f.input()...)...)
	require.NoError(t, err)

	var got session.IngestSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 4, got.SalesRowCount)
	assert.Equal(t, 2, got.ClaimsRowCount)
	assert.Equal(t, "sales.csv+claims.csv", got.Meta.Source)
	assert.Equal(t, []string{"A", "B", "C"}, got.FilterOptions.Dealers)
}

func TestDiscoverSingleCSV(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "discover", "--csv", f.sales, "--format", "json")
	require.NoError(t, err)

	var table schema.Table
	require.NoError(t, json.Unmarshal([]byte(out), &table))
	assert.Equal(t, "sales", table.Name)
	assert.Equal(t, 4, table.RowCount)
	premium, ok := table.Column("Gross Premium")
	require.True(t, ok)
	assert.Equal(t, schema.TypeNumber, premium.Type)
	assert.Equal(t, schema.RoleMeasure, premium.Role)
	assert.Equal(t, []string{"Gross Premium"}, table.Measures())

	_, err = f.run(t, "discover", "--csv", filepath.Join(f.dir, "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeOf(err))

	empty := filepath.Join(f.dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = f.run(t, "discover", "--csv", empty)
	require.Error(t, err)
	assert.Equal(t, exitData, exitCodeOf(err))

	_, err = f.run(t, append([]string{"discover", "--csv", f.sales}, f.input()...)...)
	assert.Error(t, err, "--csv cannot be combined with a Sales/Claims pair")
}

func TestReport(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, append([]string{"report", "dealers"}, f.input()...)...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Dealer,Premium"))

	_, err = f.run(t, append([]string{"report", "weather"}, f.input()...)...)
	assert.Error(t, err)

	path := filepath.Join(f.dir, "status.xlsx")
	_, err = f.run(t, append([]string{"report", "status", "--format", "xlsx", "--out", path}, f.input()...)...)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestPredict(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, append([]string{"predict"}, f.input()...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Loss ratio trend:")
	assert.Contains(t, out, "2024-04")

	_, err = f.run(t, append([]string{"predict", "--filter", "dealer=C"}, f.input()...)...)
	require.Error(t, err)
	assert.Equal(t, exitData, exitCodeOf(err))
}

func TestExport(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, append([]string{"export", "sales"}, f.input()...)...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Policy No,Dealer"))

	_, err = f.run(t, append([]string{"export", "claims", "--format", "xlsx"}, f.input()...)...)
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeOf(err))
}

func TestUsageErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "summary")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeOf(err))

	_, err = f.run(t, append([]string{"summary", "--format", "yaml"}, f.input()...)...)
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeOf(err))

	_, err = f.run(t, "summary", "--file", filepath.Join(f.dir, "missing.xlsx"))
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeOf(err))

	bad := filepath.Join(f.dir, "empty.xlsx")
	require.NoError(t, os.WriteFile(bad, nil, 0o600))
	_, err = f.run(t, "summary", "--file", bad)
	require.Error(t, err)
	assert.Equal(t, exitData, exitCodeOf(err))
}

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, exitFailure, exitCodeOf(errors.New("boom")))
	assert.Equal(t, exitUsage, exitCodeOf(withCode(exitUsage, errors.New("bad flag"))))
	assert.NoError(t, withCode(exitData, nil))
}
