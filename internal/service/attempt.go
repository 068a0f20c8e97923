package service

// assignmentAttempt derives the show-answer predicates for a staff graded
// assignment. Submitting counts as answering correctly; there is no notion of
// partial correctness.
type assignmentAttempt struct {
	finalized     bool
	pastDue       bool
	uploadAllowed bool
}

// CorrectnessAvailable is always true: scores are never withheld for this
// assignment type.
func (a assignmentAttempt) CorrectnessAvailable() bool { return true }

func (a assignmentAttempt) HasAttempted() bool { return a.finalized }

func (a assignmentAttempt) IsCorrect() bool { return a.finalized }

func (a assignmentAttempt) CanAttempt() bool { return a.uploadAllowed }

func (a assignmentAttempt) IsPastDue() bool { return a.pastDue }
