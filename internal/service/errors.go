package service

import (
	"errors"
	"fmt"
)

// ErrBlockNotFound indicates the assignment block does not exist.
var ErrBlockNotFound = errors.New("block not found")

// ErrSubmissionNotFound indicates the student has no submission yet.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrNotAllowed indicates the caller may not perform the action in the
// assignment's current state.
var ErrNotAllowed = errors.New("action not allowed")

// ErrInvalidGrade indicates the submitted grade did not parse as an integer.
// It surfaces as an error JSON payload, not as an HTTP error.
var ErrInvalidGrade = errors.New("Please enter valid grade")

// Settings validation failures keep the exact client-facing wording.
var (
	ErrPointsNotInteger  = errors.New("Points must be an integer")
	ErrPointsNegative    = errors.New("Points must be a positive integer")
	ErrWeightNotDecimal  = errors.New("Weight must be a decimal number")
	ErrWeightNegative    = errors.New("Weight must be a positive decimal number")
)

// FileTooLargeError rejects an upload before any write happens.
type FileTooLargeError struct {
	Limit int64
}

func (e FileTooLargeError) Error() string {
	return fmt.Sprintf("uploaded file exceeds the maximum allowed size of %d bytes", e.Limit)
}

// BlobNotFoundError reports a missing stored file with messaging tailored to
// the audience: staff get the path and a support contact, students get a
// generic retry message.
type BlobNotFoundError struct {
	Filename     string
	Path         string
	StaffFacing  bool
	SupportEmail string
}

func (e BlobNotFoundError) Error() string {
	if e.StaffFacing {
		return fmt.Sprintf("Sorry, assignment %s cannot be found at %s. Please contact %s", e.Filename, e.Path, e.SupportEmail)
	}
	return fmt.Sprintf("Sorry, the file you uploaded, %s, cannot be found. Please try uploading it again or contact course staff", e.Filename)
}
