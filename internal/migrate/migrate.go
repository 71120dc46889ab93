// Package migrate upgrades persisted progress blobs to the current schema.
//
// Payloads carry an explicit schemaVersion and are upgraded through an
// ordered chain of version steps:
//
//	v0: unversioned legacy blob. Day entries may be "flat" single-exercise
//	    records ({done, pushupCount, timestamp, timeOfDay}) written before
//	    multi-exercise support existed.
//	v1: per-day, per-exercise records, but exercise objects still use the
//	    legacy `done` key and may carry epoch-millisecond timestamps.
//	v2: current schema (progress.State).
//
// Unversioned blobs enter the chain at v0; entry classification there is
// per entry, since old clients produced mixed files. Normalize never
// fails loudly: garbage in means nil out, and unrecognized entries are
// dropped silently. Corrupt local data is treated as no prior state.
package migrate

import (
	"encoding/json"
	"time"

	"github.com/lucas-martinati/OneUp-sub000/internal/progress"
)

// Result reports what a normalization pass did.
type Result struct {
	FromVersion  int
	Entries      int // day entries surviving migration
	FlatMigrated int // legacy flat entries wrapped into the primary exercise
	Dropped      int // unrecognized entries discarded
}

// timeOfDayValues are the only accepted timeOfDay strings; anything else
// is dropped rather than carried forward.
var timeOfDayValues = map[string]bool{
	string(progress.Morning):   true,
	string(progress.Afternoon): true,
	string(progress.Evening):   true,
}

// Normalize converts a raw persisted blob into a current-schema snapshot.
//
// exerciseIDs is the configured catalogue, in order; the first id is the
// primary exercise legacy flat records are migrated into. Returns nil if
// the blob is missing, malformed, or unusable.
func Normalize(raw []byte, exerciseIDs []string) (*progress.State, *Result) {
	res := &Result{}
	if len(raw) == 0 {
		return nil, res
	}

	var blob map[string]any
	if err := json.Unmarshal(raw, &blob); err != nil || blob == nil {
		return nil, res
	}

	version := 0
	if v, ok := blob["schemaVersion"].(float64); ok {
		version = int(v)
	}
	res.FromVersion = version

	if version < 1 {
		upgradeV0(blob, exerciseIDs, res)
	}
	if version < 2 {
		upgradeV1(blob, res)
	}
	blob["schemaVersion"] = progress.SchemaVersion

	normalizeTopLevel(blob)

	data, err := json.Marshal(blob)
	if err != nil {
		return nil, res
	}
	var state progress.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, res
	}
	if state.Completions == nil {
		state.Completions = make(map[string]progress.DayRecord)
	}
	res.Entries = len(state.Completions)
	return &state, res
}

// upgradeV0 wraps legacy flat day entries into the primary exercise.
//
// An entry is current-format if any of its keys matches a configured
// exercise id; otherwise it is a flat record and its done/pushupCount/
// timestamp/timeOfDay fields become the primary exercise's completion.
func upgradeV0(blob map[string]any, exerciseIDs []string, res *Result) {
	completions, ok := blob["completions"].(map[string]any)
	if !ok {
		return
	}
	primary := ""
	if len(exerciseIDs) > 0 {
		primary = exerciseIDs[0]
	}

	for date, entry := range completions {
		rec, ok := entry.(map[string]any)
		if !ok {
			delete(completions, date)
			res.Dropped++
			continue
		}
		if hasExerciseKey(rec, exerciseIDs) {
			continue
		}
		if primary == "" || !looksLikeFlatRecord(rec) {
			delete(completions, date)
			res.Dropped++
			continue
		}
		completions[date] = map[string]any{
			primary: map[string]any{
				"done":      rec["done"],
				"count":     rec["pushupCount"],
				"timestamp": rec["timestamp"],
				"timeOfDay": rec["timeOfDay"],
			},
		}
		res.FlatMigrated++
	}
}

// upgradeV1 normalizes every per-exercise object: done becomes
// isCompleted when isCompleted is absent, timestamps are coerced to
// RFC 3339, and field values of the wrong type are shed.
func upgradeV1(blob map[string]any, res *Result) {
	completions, ok := blob["completions"].(map[string]any)
	if !ok {
		return
	}

	for date, entry := range completions {
		rec, ok := entry.(map[string]any)
		if !ok {
			delete(completions, date)
			res.Dropped++
			continue
		}
		for id, sub := range rec {
			c, ok := sub.(map[string]any)
			if !ok {
				delete(rec, id)
				continue
			}
			rec[id] = normalizeCompletion(c)
		}
		if len(rec) == 0 {
			delete(completions, date)
			res.Dropped++
		}
	}
}

func normalizeCompletion(c map[string]any) map[string]any {
	out := make(map[string]any, 4)

	if v, ok := c["isCompleted"].(bool); ok {
		out["isCompleted"] = v
	} else if v, ok := c["done"].(bool); ok {
		out["isCompleted"] = v
	} else {
		out["isCompleted"] = false
	}

	if ts := normalizeTimestamp(c["timestamp"]); ts != "" {
		out["timestamp"] = ts
	}
	if v, ok := c["timeOfDay"].(string); ok && timeOfDayValues[v] {
		out["timeOfDay"] = v
	}
	if v, ok := c["count"].(float64); ok && v > 0 {
		out["count"] = v
	}
	return out
}

// normalizeTimestamp coerces a decoded timestamp value to RFC 3339.
// Numbers are epoch milliseconds, the format the original mobile clients
// persisted. Anything unparseable is discarded.
func normalizeTimestamp(v any) string {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.Format(time.RFC3339Nano)
		}
		return ""
	case float64:
		if t <= 0 {
			return ""
		}
		return time.UnixMilli(int64(t)).UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// looksLikeFlatRecord reports whether the entry carries any of the legacy
// flat fields. Objects with none of them are unrecognized and dropped.
func looksLikeFlatRecord(rec map[string]any) bool {
	for _, key := range []string{"done", "pushupCount", "timestamp", "timeOfDay"} {
		if _, ok := rec[key]; ok {
			return true
		}
	}
	return false
}

// normalizeTopLevel sheds top-level fields of the wrong type so decoding
// into progress.State cannot fail on them.
func normalizeTopLevel(blob map[string]any) {
	for _, key := range []string{"startDate", "userStartDate"} {
		if _, ok := blob[key].(string); !ok {
			delete(blob, key)
		}
	}
	if _, ok := blob["isSetup"].(bool); !ok {
		delete(blob, "isSetup")
	}
	if _, ok := blob["completions"].(map[string]any); !ok {
		delete(blob, "completions")
	}
	for key := range blob {
		switch key {
		case "schemaVersion", "startDate", "userStartDate", "isSetup", "completions":
		default:
			delete(blob, key)
		}
	}
}

func hasExerciseKey(rec map[string]any, exerciseIDs []string) bool {
	for _, id := range exerciseIDs {
		if _, ok := rec[id]; ok {
			return true
		}
	}
	return false
}
