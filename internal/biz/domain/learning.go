package domain

import "time"

const learningDayLayout = "2006-01-02"

// LearningTracker records when each learning subject was last asked
type LearningTracker struct {
	LastAsked  map[string]time.Time
	TodayCount map[string]int
	LastReset  string // calendar date of the last daily reset
}

// NewLearningTracker creates an empty tracker
func NewLearningTracker() *LearningTracker {
	return &LearningTracker{
		LastAsked:  make(map[string]time.Time),
		TodayCount: make(map[string]int),
	}
}

// Touch resets the daily counts the first time it runs on a new calendar date
func (t *LearningTracker) Touch(now time.Time) {
	if t.LastAsked == nil {
		t.LastAsked = make(map[string]time.Time)
	}
	day := now.Format(learningDayLayout)
	if t.TodayCount == nil || t.LastReset != day {
		t.TodayCount = make(map[string]int)
		t.LastReset = day
	}
}

// SubjectInterval spreads the subjects evenly across a day
func SubjectInterval(subjectCount int) time.Duration {
	if subjectCount <= 0 {
		return 0
	}
	return 24 * time.Hour / time.Duration(subjectCount)
}

// NextSubject returns the subject with the earliest due time.
// A subject that was never asked is due at the zero time, so it is always due.
// Ties keep list order. ok is false for an empty list, which is never due.
func (t *LearningTracker) NextSubject(subjects []string) (subject string, dueAt time.Time, ok bool) {
	if len(subjects) == 0 {
		return "", time.Time{}, false
	}
	interval := SubjectInterval(len(subjects))
	for i, s := range subjects {
		var due time.Time
		if last, asked := t.LastAsked[s]; asked {
			due = last.Add(interval)
		}
		if i == 0 || due.Before(dueAt) {
			subject, dueAt = s, due
		}
	}
	return subject, dueAt, true
}

// DueSubject returns the next subject only if it is due at now
func (t *LearningTracker) DueSubject(subjects []string, now time.Time) (string, bool) {
	subject, dueAt, ok := t.NextSubject(subjects)
	if !ok || dueAt.After(now) {
		return "", false
	}
	return subject, true
}

// RecordAsked marks subject as asked at now and bumps today's count
func (t *LearningTracker) RecordAsked(subject string, now time.Time) {
	t.Touch(now)
	t.LastAsked[subject] = now
	t.TodayCount[subject]++
}

// CountToday returns how many times subject was asked on the tracker's current day
func (t *LearningTracker) CountToday(subject string) int {
	return t.TodayCount[subject]
}
