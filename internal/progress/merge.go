package progress

// Merge reconciles a local and a remote snapshot into a new one.
//
// The rule is last-writer-wins at per-exercise-per-day granularity, the
// finest grain at which two devices can plausibly race:
//
//   - a date present only remotely is adopted wholesale
//   - within a shared date, an exercise missing locally is adopted
//   - otherwise timestamps decide: a strictly newer remote timestamp (or
//     a remote timestamp where local has none) overlays the remote
//     isCompleted/timestamp/timeOfDay onto the local entry, preserving
//     any device-local count; in every other case local wins unchanged
//
// Top-level scalars keep the local value when the local side has real
// history. A pristine local side (fresh install, nothing recorded) defers
// its scalars to the remote instead, so a reinstall cannot silently
// revert a synced userStartDate or isSetup flag.
//
// Merge never mutates its inputs and is idempotent: Merge(s, s) equals s.
func Merge(local, remote *State) *State {
	if local == nil {
		return remote.Clone()
	}
	if remote == nil {
		return local.Clone()
	}

	merged := local.Clone()
	if local.Pristine() {
		merged.StartDate = remote.StartDate
		merged.UserStartDate = remote.UserStartDate
		merged.IsSetup = remote.IsSetup
	} else {
		if merged.StartDate == "" {
			merged.StartDate = remote.StartDate
		}
		if merged.UserStartDate == "" {
			merged.UserStartDate = remote.UserStartDate
		}
	}
	if merged.SchemaVersion < remote.SchemaVersion {
		merged.SchemaVersion = remote.SchemaVersion
	}

	for date, remoteRec := range remote.Completions {
		localRec, ok := merged.Completions[date]
		if !ok {
			merged.Completions[date] = remoteRec.clone()
			continue
		}
		for id, rc := range remoteRec {
			lc, ok := localRec[id]
			if !ok {
				localRec[id] = cloneCompletion(rc)
				continue
			}
			if remoteNewer(lc, rc) {
				lc.IsCompleted = rc.IsCompleted
				lc.TimeOfDay = rc.TimeOfDay
				if rc.Timestamp != nil {
					ts := *rc.Timestamp
					lc.Timestamp = &ts
				} else {
					lc.Timestamp = nil
				}
				localRec[id] = lc
			}
		}
	}

	return merged
}

// remoteNewer reports whether the remote completion should overlay the
// local one: remote strictly newer, or remote stamped while local is not.
// Equal or absent remote timestamps keep local.
func remoteNewer(local, remote Completion) bool {
	if remote.Timestamp == nil {
		return false
	}
	if local.Timestamp == nil {
		return true
	}
	return remote.Timestamp.After(*local.Timestamp)
}

func cloneCompletion(c Completion) Completion {
	if c.Timestamp != nil {
		ts := *c.Timestamp
		c.Timestamp = &ts
	}
	return c
}
