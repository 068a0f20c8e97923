// Package policy decides when the model solution for a problem may be shown
// to the current viewer.
package policy

// Mode is a configured show-answer policy value.
type Mode string

// Supported show-answer modes. Anything else, including the empty string,
// withholds the answer.
const (
	ModeAlways           Mode = "always"
	ModeAnswered         Mode = "answered"
	ModeAttempted        Mode = "attempted"
	ModeClosed           Mode = "closed"
	ModeFinished         Mode = "finished"
	ModeCorrectOrPastDue Mode = "correct_or_past_due"
	ModePastDue          Mode = "past_due"
	ModeNever            Mode = "never"
)

// Attempt exposes the predicates the decision table consumes. A concrete
// assignment type implements these and gets the table for free.
type Attempt interface {
	// CorrectnessAvailable reports whether the viewer may see correctness
	// information at all; withholding it masks the answer regardless of mode.
	CorrectnessAvailable() bool
	// HasAttempted reports whether the student already attempted the problem.
	HasAttempted() bool
	// IsCorrect reports whether the student earned full credit.
	IsCorrect() bool
	// CanAttempt reports whether another attempt is still allowed.
	CanAttempt() bool
	// IsPastDue reports whether the due date, including grace, has passed.
	IsPastDue() bool
}

// Closed reports whether the problem no longer accepts answers.
func Closed(a Attempt) bool {
	return !a.CanAttempt() || a.IsPastDue()
}

// AnswerAvailable evaluates the show-answer decision table. The checks run in
// a fixed precedence: the staff override is evaluated after the never mode, so
// never hides the answer even from staff.
func AnswerAvailable(mode Mode, staffViewer bool, a Attempt) bool {
	switch {
	case !a.CorrectnessAvailable():
		return false
	case mode == "":
		return false
	case mode == ModeNever:
		return false
	case staffViewer:
		return true
	}

	switch mode {
	case ModeAttempted:
		return a.HasAttempted()
	case ModeAnswered:
		return a.IsCorrect()
	case ModeClosed:
		return Closed(a)
	case ModeFinished:
		return Closed(a) || a.IsCorrect()
	case ModeCorrectOrPastDue:
		return a.IsCorrect() || a.IsPastDue()
	case ModePastDue:
		return a.IsPastDue()
	case ModeAlways:
		return true
	}

	return false
}
