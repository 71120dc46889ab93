package progress

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", value, err)
	}
	return &parsed
}

func testState(t *testing.T) *State {
	t.Helper()
	return &State{
		SchemaVersion: SchemaVersion,
		StartDate:     "2025-01-01",
		UserStartDate: "2025-01-10",
		IsSetup:       true,
		Completions: map[string]DayRecord{
			"2025-01-10": {
				"pushups": {IsCompleted: true, Timestamp: ts(t, "2025-01-10T09:00:00Z"), TimeOfDay: Morning},
			},
		},
	}
}

func TestMergeIdempotent(t *testing.T) {
	s := testState(t)
	merged := Merge(s, s)
	if diff := cmp.Diff(s, merged); diff != "" {
		t.Errorf("Merge(s, s) differs from s (-want +got):\n%s", diff)
	}
}

func TestMergeAbsentSides(t *testing.T) {
	s := testState(t)

	if diff := cmp.Diff(s, Merge(nil, s)); diff != "" {
		t.Errorf("Merge(nil, s) should return remote verbatim:\n%s", diff)
	}
	if diff := cmp.Diff(s, Merge(s, nil)); diff != "" {
		t.Errorf("Merge(s, nil) should return local verbatim:\n%s", diff)
	}
	if Merge(nil, nil) != nil {
		t.Error("Merge(nil, nil) should be nil")
	}
}

func TestMergeRemoteOnlyDateAdopted(t *testing.T) {
	local := testState(t)
	remote := testState(t)
	remote.Completions["2025-01-11"] = DayRecord{
		"squats": {IsCompleted: true, Timestamp: ts(t, "2025-01-11T19:00:00Z"), TimeOfDay: Evening},
	}

	merged := Merge(local, remote)
	if !merged.Completions["2025-01-11"]["squats"].IsCompleted {
		t.Error("remote-only date should be adopted wholesale")
	}
}

func TestMergeLastWriterWins(t *testing.T) {
	older := "2025-01-10T09:00:00Z"
	newer := "2025-01-10T10:00:00Z"

	tests := []struct {
		name          string
		local, remote Completion
		wantCompleted bool
		wantCount     int
	}{
		{
			name:          "remote strictly newer wins",
			local:         Completion{IsCompleted: true, Timestamp: ts(t, older), Count: 7},
			remote:        Completion{IsCompleted: false, Timestamp: ts(t, newer)},
			wantCompleted: false,
			wantCount:     7, // local-only count preserved through overlay
		},
		{
			name:          "local newer wins unchanged",
			local:         Completion{IsCompleted: true, Timestamp: ts(t, newer), Count: 3},
			remote:        Completion{IsCompleted: false, Timestamp: ts(t, older)},
			wantCompleted: true,
			wantCount:     3,
		},
		{
			name:          "equal timestamps keep local",
			local:         Completion{IsCompleted: true, Timestamp: ts(t, older)},
			remote:        Completion{IsCompleted: false, Timestamp: ts(t, older)},
			wantCompleted: true,
		},
		{
			name:          "remote stamped beats unstamped local",
			local:         Completion{IsCompleted: true},
			remote:        Completion{IsCompleted: false, Timestamp: ts(t, older)},
			wantCompleted: false,
		},
		{
			name:          "unstamped remote never wins",
			local:         Completion{IsCompleted: true, Timestamp: ts(t, older)},
			remote:        Completion{IsCompleted: false},
			wantCompleted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := testState(t)
			remote := testState(t)
			local.Completions["2025-01-10"] = DayRecord{"pushups": tt.local}
			remote.Completions["2025-01-10"] = DayRecord{"pushups": tt.remote}

			got := Merge(local, remote).Completions["2025-01-10"]["pushups"]
			if got.IsCompleted != tt.wantCompleted {
				t.Errorf("merged isCompleted = %v, want %v", got.IsCompleted, tt.wantCompleted)
			}
			if got.Count != tt.wantCount {
				t.Errorf("merged count = %d, want %d", got.Count, tt.wantCount)
			}
		})
	}
}

func TestMergeExerciseOnlyOnOneSide(t *testing.T) {
	local := testState(t)
	remote := testState(t)
	local.Completions["2025-01-10"]["situps"] = Completion{IsCompleted: true, Count: 4}
	remote.Completions["2025-01-10"]["squats"] = Completion{IsCompleted: true, Timestamp: ts(t, "2025-01-10T20:00:00Z")}

	merged := Merge(local, remote)
	rec := merged.Completions["2025-01-10"]
	if !rec["situps"].IsCompleted {
		t.Error("local-only exercise lost in merge")
	}
	if !rec["squats"].IsCompleted {
		t.Error("remote-only exercise not adopted")
	}
}

func TestMergeScalarsLocalPreferred(t *testing.T) {
	local := testState(t)
	remote := testState(t)
	remote.UserStartDate = "2025-02-01"
	remote.IsSetup = false

	merged := Merge(local, remote)
	if merged.UserStartDate != "2025-01-10" {
		t.Errorf("userStartDate = %s, want local 2025-01-10", merged.UserStartDate)
	}
	if !merged.IsSetup {
		t.Error("isSetup should keep local value")
	}
}

func TestMergePristineLocalDefersToRemote(t *testing.T) {
	local := NewState(2025)
	remote := testState(t)

	merged := Merge(local, remote)
	if !merged.IsSetup {
		t.Error("pristine local should adopt remote isSetup")
	}
	if merged.UserStartDate != remote.UserStartDate {
		t.Errorf("userStartDate = %s, want remote %s", merged.UserStartDate, remote.UserStartDate)
	}
	if len(merged.Completions) != len(remote.Completions) {
		t.Errorf("completions = %d entries, want %d", len(merged.Completions), len(remote.Completions))
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	local := testState(t)
	remote := testState(t)
	remote.Completions["2025-01-10"] = DayRecord{
		"pushups": {IsCompleted: false, Timestamp: ts(t, "2025-01-10T23:00:00Z")},
	}

	localBefore := local.Clone()
	remoteBefore := remote.Clone()
	_ = Merge(local, remote)

	if diff := cmp.Diff(localBefore, local); diff != "" {
		t.Errorf("local mutated by merge:\n%s", diff)
	}
	if diff := cmp.Diff(remoteBefore, remote); diff != "" {
		t.Errorf("remote mutated by merge:\n%s", diff)
	}
}
