// Package event defines the normalized telemetry record flowing through the
// hunt pipeline and the normalization of raw ingest payloads into it.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Normalized is a single telemetry event after ingest normalization.
// Immutable once created; Fingerprint identifies it for deduplication.
type Normalized struct {
	Fingerprint string         `json:"fingerprint"`
	Timestamp   time.Time      `json:"ts"`
	Type        string         `json:"event"`
	Source      string         `json:"source"`
	Host        string         `json:"host,omitempty"`
	User        string         `json:"user,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Normalize converts a raw ingest record into a Normalized event, filling
// defaults for missing fields and computing the dedup fingerprint over
// (type, host, user, timestamp).
func Normalize(raw map[string]any, now time.Time) (Normalized, error) {
	if raw == nil {
		return Normalized{}, fmt.Errorf("nil record")
	}

	ts := timestampOf(raw, now)
	meta := metaOf(raw)

	n := Normalized{
		Timestamp: ts,
		Type:      firstString(raw, "event", "type"),
		Source:    firstString(raw, "source", "origin"),
		Host:      firstString(raw, "host"),
		User:      firstString(raw, "user"),
		Meta:      meta,
	}
	if n.Type == "" {
		n.Type = "unknown"
	}
	if n.Source == "" {
		n.Source = "ingest"
	}
	if n.Host == "" {
		n.Host = stringOf(meta["host"])
	}
	if n.User == "" {
		n.User = stringOf(meta["user"])
	}
	n.Fingerprint = Fingerprint(n.Type, n.Host, n.User, n.Timestamp)
	return n, nil
}

// Fingerprint is the deterministic dedup key for an event identity.
func Fingerprint(eventType, host, user string, ts time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%d", eventType, host, user, ts.UnixNano()))
	return hex.EncodeToString(sum[:])
}

func timestampOf(raw map[string]any, now time.Time) time.Time {
	for _, key := range []string{"ts", "timestamp"} {
		switch v := raw[key].(type) {
		case float64:
			sec, frac := int64(v), v-float64(int64(v))
			return time.Unix(sec, int64(frac*float64(time.Second))).UTC()
		case int64:
			return time.Unix(v, 0).UTC()
		case int:
			return time.Unix(int64(v), 0).UTC()
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC()
			}
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return time.Unix(int64(f), 0).UTC()
			}
		case time.Time:
			return v.UTC()
		}
	}
	return now.UTC()
}

func metaOf(raw map[string]any) map[string]any {
	if m, ok := raw["meta"].(map[string]any); ok {
		return m
	}
	return nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(raw[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
