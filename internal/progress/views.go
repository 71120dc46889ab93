package progress

import (
	"math"
	"time"
)

// maxStreakLookback bounds the backward walk of the streak views.
// A challenge year never exceeds this.
const maxStreakLookback = 365

// DayNumber returns the 1-based day number of dateStr relative to
// startDate. Both endpoints are normalized to UTC midnight before
// differencing, so the result does not depend on the caller's zone.
//
// DayNumber(start, start) == 1. Dates before startDate yield values
// below 1 and are excluded from totals by the callers.
func DayNumber(startDate, dateStr string) int {
	start, err := ParseDay(startDate)
	if err != nil {
		return 0
	}
	day, err := ParseDay(dateStr)
	if err != nil {
		return 0
	}
	return int(day.Sub(start).Hours()/24) + 1
}

// GoalFor returns the target repetition count for the given day number
// and exercise multiplier: max(1, ceil(dayNumber * multiplier)).
func GoalFor(dayNumber int, multiplier float64) int {
	goal := int(math.Ceil(float64(dayNumber) * multiplier))
	if goal < 1 {
		return 1
	}
	return goal
}

// IsDayDone reports whether at least one exercise is completed on the
// given day.
func IsDayDone(completions map[string]DayRecord, dateStr string) bool {
	for _, c := range completions[dateStr] {
		if c.IsCompleted {
			return true
		}
	}
	return false
}

// Streak counts consecutive done days walking backward from todayStr
// inclusive, stopping at the first gap.
func Streak(completions map[string]DayRecord, todayStr string) int {
	return streakWhile(todayStr, func(dateStr string) bool {
		return IsDayDone(completions, dateStr)
	})
}

// ExerciseStreak counts consecutive days a specific exercise was
// completed, walking backward from todayStr inclusive.
func ExerciseStreak(completions map[string]DayRecord, todayStr, exerciseID string) int {
	return streakWhile(todayStr, func(dateStr string) bool {
		return completions[dateStr][exerciseID].IsCompleted
	})
}

func streakWhile(todayStr string, done func(string) bool) int {
	day, err := ParseDay(todayStr)
	if err != nil {
		return 0
	}
	n := 0
	for i := 0; i < maxStreakLookback; i++ {
		if !done(DayKey(day.AddDate(0, 0, -i))) {
			break
		}
		n++
	}
	return n
}

// TotalReps sums the goal reps of every completed day for one exercise.
//
// Reps are never stored; they are recomputed from completion flags and the
// current goal formula, so a multiplier change retroactively reshapes
// totals without a data migration. Days before startDate are excluded.
func TotalReps(completions map[string]DayRecord, startDate, exerciseID string, multiplier float64) int {
	total := 0
	for dateStr, rec := range completions {
		if !rec[exerciseID].IsCompleted {
			continue
		}
		day := DayNumber(startDate, dateStr)
		if day < 1 {
			continue
		}
		total += GoalFor(day, multiplier)
	}
	return total
}

// DaysBetween enumerates the calendar-day keys in [from, to), to
// exclusive. Used by the challenge-start backfill.
func DaysBetween(from, to time.Time) []string {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	var days []string
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		days = append(days, DayKey(d))
	}
	return days
}
