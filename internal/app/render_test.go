package app

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"hbk-go/internal/hbk"
	"hbk-go/internal/journal"
	"hbk-go/internal/testutil"
)

var renderNow = time.Date(2024, 1, 17, 10, 30, 0, 0, time.UTC)

func sampleView() hbk.View {
	failed := testutil.LocalOnly("c", false, 5)
	failed.Status = "FAILED"
	failed.ErrorMessage = "upload timed out"
	return hbk.NewView([]hbk.BackupRecord{
		testutil.Synced("a", true, 1024, 1100),
		testutil.RemoteOnly("b", false, 300),
		failed,
	})
}

func TestRenderBackups_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderBackups(&buf, FormatTable, sampleView(), renderNow); err != nil {
		t.Fatalf("RenderBackups() error = %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header plus 3 rows:\n%s", len(lines), out)
	}
	for _, want := range []string{"ID", "REMOTE", "1.0 GB", "300.0 MB", "2 days ago", "FAILED", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// A record whose status places it on neither tier shows no sizes.
	if !strings.Contains(lines[3], "-") {
		t.Errorf("unclassified row = %q, want placeholder sizes", lines[3])
	}
}

func TestRenderBackups_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderBackups(&buf, "", hbk.NewView(nil), renderNow); err != nil {
		t.Fatalf("RenderBackups() error = %v", err)
	}
	if buf.String() != "No backups.\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRenderBackups_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderBackups(&buf, FormatJSON, sampleView(), renderNow); err != nil {
		t.Fatalf("RenderBackups() error = %v", err)
	}
	var items []backupItem
	if err := json.Unmarshal(buf.Bytes(), &items); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if items[0].LocalSizeMB != 1024 || !items[0].Pinned {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].LocalSizeMB != 0 || items[1].RemoteSizeMB != 300 {
		t.Errorf("items[1] = %+v", items[1])
	}
	if items[2].Error != "upload timed out" || items[2].LocalSizeMB != 0 {
		t.Errorf("items[2] = %+v", items[2])
	}
}

func TestRenderSummary_YAML(t *testing.T) {
	v := sampleView()
	var buf bytes.Buffer
	err := RenderSummary(&buf, FormatYAML, []hbk.TierSummary{v.Summary(hbk.Local), v.Summary(hbk.Remote)})
	if err != nil {
		t.Fatalf("RenderSummary() error = %v", err)
	}
	var items []summaryItem
	if err := yaml.Unmarshal(buf.Bytes(), &items); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].Tier != hbk.Local.String() || items[0].Count != 1 || items[0].Size != "1.0 GB" {
		t.Errorf("local = %+v", items[0])
	}
	if items[1].Count != 2 || items[1].PinnedSizeMB != 1100 || items[1].NonPinnedSizeMB != 300 {
		t.Errorf("remote = %+v", items[1])
	}
}

func TestRenderSummary_Table(t *testing.T) {
	v := sampleView()
	var buf bytes.Buffer
	if err := RenderSummary(&buf, FormatTable, []hbk.TierSummary{v.Summary(hbk.Remote)}); err != nil {
		t.Fatalf("RenderSummary() error = %v", err)
	}
	for _, want := range []string{"TIER", "1.4 GB", "1.1 GB", "300.0 MB"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestRenderSettings(t *testing.T) {
	settings := hbk.Settings{"storageBackend": "S3", "backupInterval": 3}

	var table bytes.Buffer
	if err := RenderSettings(&table, FormatTable, settings); err != nil {
		t.Fatalf("RenderSettings() error = %v", err)
	}
	out := table.String()
	if strings.Index(out, "backupInterval") > strings.Index(out, "storageBackend") {
		t.Errorf("keys not sorted:\n%s", out)
	}

	var js bytes.Buffer
	if err := RenderSettings(&js, FormatJSON, nil); err != nil {
		t.Fatalf("RenderSettings() error = %v", err)
	}
	if strings.TrimSpace(js.String()) != "{}" {
		t.Errorf("empty settings json = %q", js.String())
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderBackups(&buf, "xml", sampleView(), renderNow); err == nil {
		t.Error("RenderBackups() with unknown format expected error")
	}
}

func TestRenderHistory(t *testing.T) {
	started := renderNow.Add(-time.Hour)
	entries := []*journal.Entry{
		{ID: 2, Operation: "Delete", BackupID: "a", StartedAt: started, Status: journal.StatusError, Error: "delete a: Not Found (status 404)",
			FinishedAt: sql.NullTime{Time: started.Add(1500 * time.Millisecond), Valid: true}},
		{ID: 1, Operation: "List", StartedAt: started, Status: journal.StatusRunning},
	}
	var buf bytes.Buffer
	if err := RenderHistory(&buf, entries, renderNow); err != nil {
		t.Fatalf("RenderHistory() error = %v", err)
	}
	for _, want := range []string{"Delete", "1.5s", "1 hour ago", "Not Found", "running"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	RenderHistory(&buf, nil, renderNow)
	if buf.String() != "No operations recorded.\n" {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestRenderDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: "due now"},
		{d: 90 * time.Minute, want: "1 hour from now (1h30m0s)"},
		{d: 26 * time.Hour, want: "1 day from now (26h0m0s)"},
	}
	for _, tt := range tests {
		if got := RenderDuration(tt.d, renderNow); got != tt.want {
			t.Errorf("RenderDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
