package hbk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Decoder turns a backend list response body into backup records.
type Decoder interface {
	Name() string
	Decode(r io.Reader) ([]BackupRecord, error)
}

// WireCopy is the per-tier sub-record of the canonical schema.
type WireCopy struct {
	Size float64 `json:"size"`
}

// WireRecord is the canonical JSON shape of a backup record.
type WireRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Pinned       bool      `json:"pinned"`
	Status       Status    `json:"status"`
	Date         time.Time `json:"date"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Local        *WireCopy `json:"local,omitempty"`
	Remote       *WireCopy `json:"remote,omitempty"`
}

// ToWire converts a record to the canonical schema.
func ToWire(r BackupRecord) WireRecord {
	w := WireRecord{
		ID:           r.ID,
		Name:         r.Name,
		Pinned:       r.Pinned,
		Status:       r.Status,
		Date:         r.Date,
		ErrorMessage: r.ErrorMessage,
	}
	if r.Local.Present {
		w.Local = &WireCopy{Size: r.Local.SizeMB}
	}
	if r.Remote.Present {
		w.Remote = &WireCopy{Size: r.Remote.SizeMB}
	}
	return w
}

// FromWire converts a canonical wire record to a BackupRecord.
func FromWire(w WireRecord) BackupRecord {
	r := BackupRecord{
		ID:           w.ID,
		Name:         w.Name,
		Pinned:       w.Pinned,
		Status:       w.Status,
		Date:         w.Date,
		ErrorMessage: w.ErrorMessage,
	}
	if w.Local != nil {
		r.Local = Copy{Present: true, SizeMB: w.Local.Size}
	}
	if w.Remote != nil {
		r.Remote = Copy{Present: true, SizeMB: w.Remote.Size}
	}
	return r
}

// schema describes one backend's naming of tiers and statuses.
// Variants are adapted explicitly; no variant is assumed to be compatible
// with another.
type schema struct {
	name       string
	localKey   string
	remoteKey  string
	localOnly  string
	remoteOnly string
	// remoteSizeTopLevel is set when the remote sub-record carries no size
	// and the remote size is the plain top-level "size" number instead.
	remoteSizeTopLevel bool
}

var schemas = map[string]schema{
	"canonical": {
		name: "canonical", localKey: "local", remoteKey: "remote",
		localOnly: string(StatusLocalOnly), remoteOnly: string(StatusRemoteOnly),
	},
	"hassio-s3": {
		name: "hassio-s3", localKey: "ha", remoteKey: "s3",
		localOnly: "HAONLY", remoteOnly: "S3ONLY",
	},
	"hassio-storage": {
		name: "hassio-storage", localKey: "ha", remoteKey: "storage",
		localOnly: "HAONLY", remoteOnly: "STORAGEONLY",
		remoteSizeTopLevel: true,
	},
	"hassio-drive": {
		name: "hassio-drive", localKey: "ha", remoteKey: "drive",
		localOnly: "HAONLY", remoteOnly: "DRIVEONLY",
		remoteSizeTopLevel: true,
	},
}

// LookupDecoder returns the decoder registered under name.
// An empty name selects the canonical schema.
func LookupDecoder(name string) (Decoder, error) {
	if name == "" {
		name = "canonical"
	}
	s, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q (known: %v)", name, DecoderNames())
	}
	return s, nil
}

// CanonicalDecoder returns the decoder for the canonical schema.
func CanonicalDecoder() Decoder { return schemas["canonical"] }

// DecoderNames lists the registered schema names in sorted order.
func DecoderNames() []string {
	names := make([]string, 0, len(schemas))
	for n := range schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s schema) Name() string { return s.name }

// Decode rejects only a body that is not a JSON array. Entries are taken
// as they come: a field of the wrong type or an unparsable date reads as
// its zero value instead of failing the whole list.
func (s schema) Decode(r io.Reader) ([]BackupRecord, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s backup list: %w", s.name, err)
	}

	records := make([]BackupRecord, 0, len(raw))
	for _, entry := range raw {
		var obj map[string]json.RawMessage
		// A non-object entry becomes an empty record.
		_ = json.Unmarshal(entry, &obj)
		records = append(records, s.decodeOne(obj))
	}
	return records, nil
}

func (s schema) decodeOne(obj map[string]json.RawMessage) BackupRecord {
	rec := BackupRecord{
		ID:           text(obj["id"]),
		Name:         text(obj["name"]),
		Pinned:       flag(obj["pinned"]),
		Status:       s.status(text(obj["status"])),
		Date:         date(obj["date"]),
		ErrorMessage: text(obj["errorMessage"]),
		Local:        decodeCopy(obj[s.localKey]),
	}

	if s.remoteSizeTopLevel {
		if present(obj[s.remoteKey]) {
			rec.Remote = Copy{Present: true, SizeMB: number(obj["size"])}
		}
	} else {
		rec.Remote = decodeCopy(obj[s.remoteKey])
	}
	return rec
}

func (s schema) status(raw string) Status {
	switch raw {
	case s.localOnly:
		return StatusLocalOnly
	case s.remoteOnly:
		return StatusRemoteOnly
	default:
		return Status(raw)
	}
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeCopy reads a tier sub-record. Any non-null value marks the copy
// present; its size is 0 unless the value is an object with a usable size.
func decodeCopy(raw json.RawMessage) Copy {
	if !present(raw) {
		return Copy{}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Copy{Present: true}
	}
	return Copy{Present: true, SizeMB: number(obj["size"])}
}

// text reads a string. Numbers keep their JSON spelling, so numeric ids
// survive; anything else is "".
func text(raw json.RawMessage) string {
	var v string
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func flag(raw json.RawMessage) bool {
	var v bool
	_ = json.Unmarshal(raw, &v)
	return v
}

// number reads a JSON number or a string holding one.
func number(raw json.RawMessage) float64 {
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			return f
		}
	}
	return 0
}

// date reads an RFC 3339 timestamp; anything else is the zero time.
func date(raw json.RawMessage) time.Time {
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}
	}
	return t
}
