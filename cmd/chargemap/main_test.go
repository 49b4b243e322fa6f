package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/chargemap/internal/cli"
	"github.com/Veraticus/chargemap/internal/config"
)

const chargesCSV = `statement_id,customer_name,provider_name,charge_name,usage_unit
s1,acme,Metro Power,Delivery Charge,kWh
s1,acme,Metro Power,Sales Tax,
s2,globex,City Water,Delivery Charge,gal
`

// useTestSettings points the commands at a fresh database for one test.
func useTestSettings(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	settings = &config.Settings{
		DatabasePath: filepath.Join(dir, "chargemap.db"),
		LogLevel:     "info",
		LogFormat:    "console",
		Concurrency:  2,
		Theme:        "default",
	}
	t.Cleanup(func() { settings = nil })
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCategorizeWorkflow(t *testing.T) {
	dir := useTestSettings(t)
	csvPath := writeFile(t, dir, "charges.csv", chargesCSV)

	out, err := execute(t, chargesCmd(), "", "import", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 charges")

	out, err = execute(t, rulesCmd(), "", "submit",
		"--customer", "acme",
		"--value", "Delivery",
		"--condition", "starts_with",
		"--charge-id", "DELIVERY")
	require.NoError(t, err)
	assert.Contains(t, out, cli.PendingIcon+" Submitted rule 1 for acme at priority 1, waiting for approval")

	out, err = execute(t, rulesCmd(), "", "approve", "--yes", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule 1 approved")

	out, err = execute(t, categorizeCmd(), "", "--quiet", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "acme")
	assert.NotContains(t, out, "globex")

	out, err = execute(t, chargesCmd(), "", "list", "--customer", "acme", "--uncategorized")
	require.NoError(t, err)
	assert.Contains(t, out, "Sales Tax")
	assert.NotContains(t, out, "Delivery Charge")

	out, err = execute(t, runsCmd(), "", "--customer", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "acme")
}

func TestApproveAsksForConfirmation(t *testing.T) {
	useTestSettings(t)

	_, err := execute(t, rulesCmd(), "", "submit", "--customer", "acme", "--pattern", "Tax", "--charge-id", "TAX")
	require.NoError(t, err)

	out, err := execute(t, rulesCmd(), "n\n", "approve", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Approve rule 1? [y/N]")
	assert.Contains(t, out, "Skipped rule 1")

	out, err = execute(t, rulesCmd(), "", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")

	out, err = execute(t, rulesCmd(), "y\n", "approve", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule 1 approved")
}

func TestApprovePriorityConflict(t *testing.T) {
	useTestSettings(t)

	for range 2 {
		_, err := execute(t, rulesCmd(), "", "submit", "--customer", "acme", "--priority", "5", "--pattern", "Tax", "--charge-id", "TAX")
		require.NoError(t, err)
	}

	_, err := execute(t, rulesCmd(), "", "approve", "--yes", "1")
	require.NoError(t, err)

	out, err := execute(t, rulesCmd(), "", "approve", "--yes", "2")
	require.ErrorIs(t, err, errSomeFailed)
	assert.Contains(t, out, "priority 5 already in use")
}

func TestSupersedeKeepsUnchangedFields(t *testing.T) {
	useTestSettings(t)

	_, err := execute(t, rulesCmd(), "", "submit",
		"--customer", "acme", "--priority", "3", "--pattern", "^Delivery",
		"--charge-id", "DELIVERY", "--tariff", "R1")
	require.NoError(t, err)
	_, err = execute(t, rulesCmd(), "", "approve", "--yes", "1")
	require.NoError(t, err)

	out, err := execute(t, rulesCmd(), "", "supersede", "1", "--charge-id", "DELIVERY_FIXED", "--clear-scope", "tariff")
	require.NoError(t, err)
	assert.Contains(t, out, "Submitted rule 2 to replace rule 1")

	_, err = execute(t, rulesCmd(), "", "approve", "--yes", "2")
	require.NoError(t, err)

	out, err = execute(t, rulesCmd(), "", "show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "DELIVERY_FIXED")
	assert.Contains(t, out, "^Delivery")
	assert.Contains(t, out, "Priority:      3")
	assert.Contains(t, out, "Scope:         any")

	out, err = execute(t, rulesCmd(), "", "list", "--status", "superseded")
	require.NoError(t, err)
	assert.Contains(t, out, "DELIVERY")

	out, err = execute(t, rulesCmd(), "", "history", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "superseded")
}

func TestPreviewCandidate(t *testing.T) {
	dir := useTestSettings(t)
	csvPath := writeFile(t, dir, "charges.csv", chargesCSV)
	_, err := execute(t, chargesCmd(), "", "import", csvPath)
	require.NoError(t, err)

	out, err := execute(t, previewCmd(), "", "--customer", "acme", "--pattern", "(?i)tax", "--charge-id", "TAX")
	require.NoError(t, err)
	assert.Contains(t, out, "1 charges would change")
	assert.Contains(t, out, "Sales Tax")
	assert.Contains(t, out, "Categorized: 0 → 1 of 2")
}

func TestRulesImport(t *testing.T) {
	dir := useTestSettings(t)
	path := writeFile(t, dir, "rules.csv", `customer_name,priority_order,charge_name_mapping,charge_id
acme,1,^Delivery,DELIVERY
acme,2,(unclosed,BROKEN
acme,3,Tax,TAX
`)

	out, err := execute(t, rulesCmd(), "", "import", "--approve", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Submitted 2 rules")
	assert.Contains(t, out, "Approved 2 of them")
	assert.Contains(t, out, "1 rows were not submitted")
}

func TestMigrateStatus(t *testing.T) {
	useTestSettings(t)

	out, err := execute(t, migrateCmd(), "", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 0 of 3")

	_, err = execute(t, migrateCmd(), "")
	require.NoError(t, err)

	out, err = execute(t, migrateCmd(), "", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 3 of 3")
}

func TestInvalidRuleID(t *testing.T) {
	useTestSettings(t)

	_, err := execute(t, rulesCmd(), "", "show", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid rule ID "abc"`)
}

func TestRulesImportDryRun(t *testing.T) {
	dir := useTestSettings(t)

	_, err := execute(t, rulesCmd(), "", "submit", "--customer", "acme", "--priority", "1", "--pattern", "^Delivery", "--charge-id", "DELIVERY")
	require.NoError(t, err)
	_, err = execute(t, rulesCmd(), "", "approve", "--yes", "1")
	require.NoError(t, err)

	path := writeFile(t, dir, "rules.csv", `customer_name,priority_order,charge_name_mapping,charge_id
acme,1,Tax,TAX
acme,2,Fee,FEE
`)

	out, err := execute(t, rulesCmd(), "", "import", "--approve", "--dry-run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run, nothing was written")
	assert.Contains(t, out, "Submitted 2 rules")
	assert.Contains(t, out, "Approved 1 of them")

	out, err = execute(t, rulesCmd(), "", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "FEE")
}

func TestSupersedeIgnoreCase(t *testing.T) {
	useTestSettings(t)

	_, err := execute(t, rulesCmd(), "", "submit", "--customer", "acme", "--priority", "1", "--pattern", "^Delivery", "--charge-id", "DELIVERY")
	require.NoError(t, err)
	_, err = execute(t, rulesCmd(), "", "approve", "--yes", "1")
	require.NoError(t, err)

	_, err = execute(t, rulesCmd(), "", "supersede", "1", "--ignore-case")
	require.NoError(t, err)

	out, err := execute(t, rulesCmd(), "", "show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "(?i)^Delivery")
}

func TestRulesReorderSwap(t *testing.T) {
	useTestSettings(t)

	for _, args := range [][]string{
		{"--priority", "1", "--pattern", "Tax", "--charge-id", "TAX"},
		{"--priority", "2", "--pattern", "Surcharge", "--charge-id", "SUR"},
	} {
		_, err := execute(t, rulesCmd(), "", append([]string{"submit", "--customer", "acme"}, args...)...)
		require.NoError(t, err)
	}
	_, err := execute(t, rulesCmd(), "", "approve", "--yes", "1", "2")
	require.NoError(t, err)

	out, err := execute(t, rulesCmd(), "", "reorder", "--customer", "acme", "1=2", "2=1")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule 1 is now rule 3 at priority 2")
	assert.Contains(t, out, "Rule 2 is now rule 4 at priority 1")

	out, err = execute(t, rulesCmd(), "", "list", "--status", "approved")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "SUR"), strings.Index(out, "TAX"))
}

func TestParsePriorities(t *testing.T) {
	got, err := parsePriorities([]string{"3=2", "4=1"})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{3: 2, 4: 1}, got)

	for _, bad := range [][]string{{"3"}, {"x=1"}, {"3=x"}, {"3=1", "3=2"}} {
		_, err := parsePriorities(bad)
		assert.Error(t, err, bad)
	}
}
