package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basinops/basinops-kernel/pkg/types"
)

func newTestTrail(t *testing.T) (Trail, string) {
	t.Helper()
	dir := t.TempDir()
	trail, err := New(Config{Enabled: true, Path: dir}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { trail.Close() })
	return trail, dir
}

func todayFile(dir string) string {
	return filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".jsonl")
}

func TestRecordAppendsOneLinePerEntry(t *testing.T) {
	trail, dir := newTestTrail(t)

	for i := 0; i < 3; i++ {
		trail.Record(&types.AuditEntry{
			Tool:   "geowiz.analyze",
			Action: types.AuditRequest,
			UserID: "demo-analyst",
		})
	}

	raw, err := os.ReadFile(todayFile(dir))
	if err != nil {
		t.Fatalf("reading audit file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var entry types.AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("line is not valid JSON: %v", err)
		}
	}
}

func TestRecordRedactsSensitiveParameters(t *testing.T) {
	trail, dir := newTestTrail(t)

	trail.Record(&types.AuditEntry{
		Tool:   "econobot.analyze",
		Action: types.AuditRequest,
		UserID: "demo-analyst",
		Parameters: map[string]any{
			"basin":  "Permian",
			"apiKey": "sk-live-123",
			"nested": map[string]any{
				"token": "xyz",
				"safe":  "ok",
			},
		},
	})

	raw, err := os.ReadFile(todayFile(dir))
	if err != nil {
		t.Fatalf("reading audit file: %v", err)
	}
	content := string(raw)

	if strings.Contains(content, "sk-live-123") || strings.Contains(content, "xyz") {
		t.Fatalf("sensitive values reached disk: %s", content)
	}
	if !strings.Contains(content, "Permian") || !strings.Contains(content, `"safe":"ok"`) {
		t.Errorf("non-sensitive values should persist verbatim: %s", content)
	}

	var entry types.AuditEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &entry); err != nil {
		t.Fatalf("parsing persisted line: %v", err)
	}
	if entry.Parameters["apiKey"] != Redacted {
		t.Errorf("apiKey = %v, want %s", entry.Parameters["apiKey"], Redacted)
	}
	nested := entry.Parameters["nested"].(map[string]any)
	if nested["token"] != Redacted || nested["safe"] != "ok" {
		t.Errorf("nested redaction wrong: %v", nested)
	}
}

func TestGetEntriesReturnsEntriesInOrder(t *testing.T) {
	trail, _ := newTestTrail(t)

	trail.Record(&types.AuditEntry{Tool: "geowiz.analyze", Action: types.AuditRequest})
	trail.Record(&types.AuditEntry{Tool: "geowiz.analyze", Action: types.AuditResponse})

	entries, err := trail.GetEntries("")
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != types.AuditRequest || entries[1].Action != types.AuditResponse {
		t.Errorf("entries out of order: %+v", entries)
	}
}

func TestGetEntriesMissingDateIsEmpty(t *testing.T) {
	trail, _ := newTestTrail(t)
	entries, err := trail.GetEntries("1999-01-01")
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestDisabledTrailIsInert(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	trail, err := New(Config{Enabled: false, Path: dir}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	trail.Record(&types.AuditEntry{Tool: "geowiz.analyze", Action: types.AuditRequest})

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("disabled trail must not create its directory")
	}
	entries, err := trail.GetEntries("")
	if err != nil || entries != nil {
		t.Errorf("disabled trail should read back nothing, got %v, %v", entries, err)
	}
}

func TestEnabledTrailRequiresPath(t *testing.T) {
	if _, err := New(Config{Enabled: true}, nil); err == nil {
		t.Fatal("expected error for enabled trail without a path")
	}
}

func TestRedactPreservesStructure(t *testing.T) {
	in := map[string]any{
		"basin": "Permian",
		"credentials": map[string]any{
			"user": "x",
		},
		"wells": []any{
			map[string]any{"name": "A-1", "authCode": "42"},
		},
	}
	out := Redact(in)

	// Whole subtree under a sensitive key is replaced.
	if out["credentials"] != Redacted {
		t.Errorf("credentials = %v, want %s", out["credentials"], Redacted)
	}
	wells := out["wells"].([]any)
	well := wells[0].(map[string]any)
	if well["authCode"] != Redacted || well["name"] != "A-1" {
		t.Errorf("list-nested redaction wrong: %v", well)
	}
	// Input untouched.
	if in["credentials"].(map[string]any)["user"] != "x" {
		t.Error("Redact must not mutate its input")
	}
}
