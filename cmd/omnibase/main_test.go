package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/canonicalize"
)

var orderFixture = []byte(`{"items":[{"sku":"A-1","qty":2}]}`)

const contractTmpl = `
name: pricing
version: 2.1.0
kind: COMPUTE
fields:
  limits.max_items: 50
capabilities:
  - name: catalog.read
    version: ">=1.2, <2"
handlers:
  - id: load
    phase: PREFLIGHT
    requires: [catalog.read]
  - id: price
    phase: EXECUTE
    depends_on: [load]
fixtures:
  - path: fixtures/order.json
    digest: %s
`

// writeBundle lays out a base profile with two ordered patches.
func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "patches"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fixtures"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contract.yaml"),
		[]byte(fmt.Sprintf(contractTmpl, canonicalize.HashBytes(orderFixture))), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixtures", "order.json"), orderFixture, 0o600))
	writePatch(t, dir, "10-defaults.yaml", "name: defaults\noperations:\n  - op: set\n    path: limits.max_items\n    value: 40\n")
	writePatch(t, dir, "20-tighten.yaml", "name: tighten\napplies_after: [defaults]\noperations:\n  - op: set\n    path: limits.max_items\n    value: 20\n")
	return dir
}

func writePatch(t *testing.T, dir, name, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patches", name), []byte(doc), 0o600))
}

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("LEDGER_DRIVER", "none")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OMNIBASE_CONFIG", "")
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"omnibase"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, out, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "verify")

	code, _, errOut := run("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")

	code, _, _ = run()
	assert.Equal(t, 2, code)
}

func TestRun_BadConfig(t *testing.T) {
	quietEnv(t)
	t.Setenv("LEDGER_DRIVER", "oracle")
	code, _, errOut := run("merge", "--bundle", t.TempDir())
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "unsupported ledger driver")
}

func TestMergeCmd(t *testing.T) {
	quietEnv(t)
	dir := writeBundle(t)

	code, out, errOut := run("merge", "--bundle", dir)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "pricing@2.1.0")
	assert.Contains(t, out, "Applied: defaults -> tighten")
	assert.Contains(t, out, "0 added, 1 modified, 0 removed")

	code, out, _ = run("merge", "--bundle", dir, "--json")
	require.Equal(t, 0, code)
	var doc struct {
		Merged struct {
			AppliedOrder []string `json:"applied_order"`
			Digest       string   `json:"digest"`
		} `json:"merged"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, []string{"defaults", "tighten"}, doc.Merged.AppliedOrder)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, doc.Merged.Digest)
}

func TestMergeCmd_Errors(t *testing.T) {
	quietEnv(t)

	code, _, errOut := run("merge")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--bundle is required")

	code, _, _ = run("merge", "--bundle", t.TempDir())
	assert.Equal(t, 2, code)

	dir := writeBundle(t)
	writePatch(t, dir, "30-loosen.yaml", "name: loosen\noperations:\n  - op: set\n    path: limits.max_items\n    value: 99\n")
	code, _, errOut = run("merge", "--bundle", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Merge rejected")
}

func TestMergeCmd_Publish(t *testing.T) {
	quietEnv(t)
	t.Setenv("ARTIFACT_STORAGE_TYPE", "fs")
	dataDir := t.TempDir()
	t.Setenv("DATA_DIR", dataDir)

	code, out, errOut := run("merge", "--bundle", writeBundle(t), "--publish")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Published: sha256:")

	entries, err := os.ReadDir(filepath.Join(dataDir, "artifacts"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestPlanCmd(t *testing.T) {
	quietEnv(t)
	dir := writeBundle(t)

	code, out, errOut := run("plan", "--bundle", dir)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "PREFLIGHT")
	assert.Contains(t, out, "price")

	code, out, _ = run("plan", "--bundle", dir, "--json")
	require.Equal(t, 0, code)
	var plan struct {
		Steps []struct {
			Phase      string   `json:"phase"`
			HandlerIDs []string `json:"handler_ids"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, []string{"load"}, plan.Steps[0].HandlerIDs)
	assert.Equal(t, "EXECUTE", plan.Steps[1].Phase)
}

func TestVerifyCmd(t *testing.T) {
	quietEnv(t)
	dir := writeBundle(t)

	code, out, errOut := run("verify", "--bundle", dir)
	require.Equal(t, 0, code, out+errOut)
	assert.Contains(t, out, "fixture_presence")
	assert.Contains(t, out, "PASS")

	require.NoError(t, os.Remove(filepath.Join(dir, "fixtures", "order.json")))
	code, out, _ = run("verify", "--bundle", dir, "--json")
	assert.Equal(t, 1, code)
	var report struct {
		Overall string `json:"overall"`
		Checks  []struct {
			CheckID string `json:"check_id"`
			Status  string `json:"status"`
			Reason  string `json:"reason"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "FAIL", report.Overall)
	for _, c := range report.Checks {
		if c.CheckID == "fixture_presence" {
			assert.Equal(t, "FAIL", c.Status)
			assert.Equal(t, "FIXTURE_MISSING", c.Reason)
		} else {
			assert.NotEqual(t, "FAIL", c.Status, c.CheckID)
		}
	}
}

func TestVerifyCmd_Strict(t *testing.T) {
	quietEnv(t)
	dir := writeBundle(t)
	writePatch(t, dir, "30-label.yaml", "name: label\noperations:\n  - op: set\n    path: display.label\n    value: Pricing\n")

	code, _, _ := run("verify", "--bundle", dir)
	assert.Equal(t, 0, code)

	code, out, _ := run("verify", "--bundle", dir, "--strict")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "OVERLAY_ORDER_AMBIGUOUS")
}

func TestGraphCmd(t *testing.T) {
	quietEnv(t)
	dir := writeBundle(t)

	code, out, errOut := run("graph", "--bundle", dir)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"price" -> "load";`)

	code, out, _ = run("graph", "--bundle", dir, "--of", "patches", "--format", "mermaid")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `["tighten"]`)

	code, _, _ = run("graph", "--bundle", dir, "--format", "svg")
	assert.Equal(t, 2, code)
	code, _, _ = run("graph", "--bundle", dir, "--of", "hooks")
	assert.Equal(t, 2, code)
}

func TestHistoryCmd(t *testing.T) {
	quietEnv(t)
	t.Setenv("LEDGER_DRIVER", "sqlite")
	t.Setenv("LEDGER_DSN", filepath.Join(t.TempDir(), "ledger.db"))
	dir := writeBundle(t)

	code, _, errOut := run("merge", "--bundle", dir)
	require.Equal(t, 0, code, errOut)
	code, _, errOut = run("verify", "--bundle", dir)
	require.Equal(t, 0, code, errOut)

	code, out, errOut := run("history", "--contract", "pricing", "--json")
	require.Equal(t, 0, code, errOut)
	var records []struct {
		Overall        string   `json:"overall"`
		AppliedPatches []string `json:"applied_patches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "", records[0].Overall)
	assert.Equal(t, "PASS", records[1].Overall)
	assert.Equal(t, []string{"defaults", "tighten"}, records[1].AppliedPatches)
}

func TestHistoryCmd_NoLedger(t *testing.T) {
	quietEnv(t)
	code, _, errOut := run("history", "--contract", "pricing")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "no ledger configured")
}
