package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"gopkg.in/yaml.v3"

	"hbk-go/internal/hbk"
	"hbk-go/internal/journal"
)

// Output formats accepted by the Render functions.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// backupItem is the serialized form of a backup in json and yaml output.
type backupItem struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Status       string    `json:"status" yaml:"status"`
	Pinned       bool      `json:"pinned" yaml:"pinned"`
	Date         time.Time `json:"date" yaml:"date"`
	LocalSizeMB  float64   `json:"localSizeMB" yaml:"localSizeMB"`
	RemoteSizeMB float64   `json:"remoteSizeMB" yaml:"remoteSizeMB"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
}

type summaryItem struct {
	Tier            string  `json:"tier" yaml:"tier"`
	Count           int     `json:"count" yaml:"count"`
	PinnedCount     int     `json:"pinnedCount" yaml:"pinnedCount"`
	NonPinnedCount  int     `json:"nonPinnedCount" yaml:"nonPinnedCount"`
	SizeMB          float64 `json:"sizeMB" yaml:"sizeMB"`
	PinnedSizeMB    float64 `json:"pinnedSizeMB" yaml:"pinnedSizeMB"`
	NonPinnedSizeMB float64 `json:"nonPinnedSizeMB" yaml:"nonPinnedSizeMB"`
	Size            string  `json:"size" yaml:"size"`
}

// RenderBackups writes view in format. Dates in table output are relative
// to now.
func RenderBackups(w io.Writer, format string, view hbk.View, now time.Time) error {
	records := view.Records()
	switch format {
	case FormatTable, "":
		if len(records) == 0 {
			_, err := fmt.Fprintln(w, "No backups.")
			return err
		}
		table := uitable.New()
		table.MaxColWidth = 40
		table.AddRow("ID", "NAME", "STATUS", "PINNED", "DATE", "LOCAL", "REMOTE")
		for _, r := range records {
			table.AddRow(r.ID, r.Name, string(r.Status), pinMark(r.Pinned),
				humanize.RelTime(r.Date, now, "ago", "from now"),
				sizeCell(r, hbk.Local), sizeCell(r, hbk.Remote))
		}
		_, err := fmt.Fprintln(w, table)
		return err
	default:
		items := make([]backupItem, 0, len(records))
		for _, r := range records {
			items = append(items, backupItem{
				ID:           r.ID,
				Name:         r.Name,
				Status:       string(r.Status),
				Pinned:       r.Pinned,
				Date:         r.Date,
				LocalSizeMB:  r.SizeOn(hbk.Local),
				RemoteSizeMB: r.SizeOn(hbk.Remote),
				Error:        r.ErrorMessage,
			})
		}
		return encode(w, format, items)
	}
}

// RenderSummary writes per-tier counts and sizes in format.
func RenderSummary(w io.Writer, format string, summaries []hbk.TierSummary) error {
	switch format {
	case FormatTable, "":
		table := uitable.New()
		table.AddRow("TIER", "BACKUPS", "PINNED", "OTHER", "SIZE", "PINNED SIZE", "OTHER SIZE")
		for _, s := range summaries {
			table.AddRow(s.Tier.String(), s.Count, s.PinnedCount, s.NonPinnedCount,
				hbk.FormatSize(s.SizeMB), hbk.FormatSize(s.PinnedSizeMB), hbk.FormatSize(s.NonPinnedSizeMB))
		}
		_, err := fmt.Fprintln(w, table)
		return err
	default:
		items := make([]summaryItem, 0, len(summaries))
		for _, s := range summaries {
			items = append(items, summaryItem{
				Tier:            s.Tier.String(),
				Count:           s.Count,
				PinnedCount:     s.PinnedCount,
				NonPinnedCount:  s.NonPinnedCount,
				SizeMB:          s.SizeMB,
				PinnedSizeMB:    s.PinnedSizeMB,
				NonPinnedSizeMB: s.NonPinnedSizeMB,
				Size:            hbk.FormatSize(s.SizeMB),
			})
		}
		return encode(w, format, items)
	}
}

// RenderSettings writes the backend settings in format. Table output is
// sorted by key.
func RenderSettings(w io.Writer, format string, settings hbk.Settings) error {
	switch format {
	case FormatTable, "":
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		table := uitable.New()
		table.AddRow("KEY", "VALUE")
		for _, k := range keys {
			table.AddRow(k, fmt.Sprint(settings[k]))
		}
		_, err := fmt.Fprintln(w, table)
		return err
	default:
		if settings == nil {
			settings = hbk.Settings{}
		}
		return encode(w, format, map[string]any(settings))
	}
}

// RenderHistory writes journal entries as a table.
func RenderHistory(w io.Writer, entries []*journal.Entry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No operations recorded.")
		return err
	}
	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("#", "OPERATION", "BACKUP", "STARTED", "STATUS", "DURATION", "ERROR")
	for _, e := range entries {
		duration := ""
		if e.FinishedAt.Valid {
			duration = e.Duration().Truncate(time.Millisecond).String()
		}
		table.AddRow(e.ID, e.Operation, e.BackupID,
			humanize.RelTime(e.StartedAt, now, "ago", "from now"),
			e.Status, duration, e.Error)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

// RenderDuration formats the time until the next backup.
func RenderDuration(d time.Duration, now time.Time) string {
	if d <= 0 {
		return "due now"
	}
	return fmt.Sprintf("%s (%s)", humanize.RelTime(now.Add(d), now, "ago", "from now"), d.Truncate(time.Second))
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want %s)", format, strings.Join([]string{FormatTable, FormatJSON, FormatYAML}, ", "))
	}
}

func pinMark(pinned bool) string {
	if pinned {
		return "yes"
	}
	return ""
}

func sizeCell(r hbk.BackupRecord, t hbk.Tier) string {
	if !r.Status.On(t) {
		return "-"
	}
	return hbk.FormatSize(r.SizeOn(t))
}
