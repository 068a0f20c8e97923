package dto

// RosterRow is one student's line on the staff grading screen.
type RosterRow struct {
	ModuleID          uint    `json:"module_id"`
	StudentID         string  `json:"student_id"`
	SubmissionID      string  `json:"submission_id"`
	Username          string  `json:"username"`
	FullName          string  `json:"fullname"`
	Filename          string  `json:"filename"`
	Timestamp         string  `json:"timestamp"`
	Score             *int    `json:"score"`
	Approved          bool    `json:"approved"`
	NeedsApproval     bool    `json:"needs_approval"`
	MayGrade          bool    `json:"may_grade"`
	AnnotatedFilename *string `json:"annotated"`
	Comment           string  `json:"comment"`
	Finalized         bool    `json:"finalized"`
}

// StaffGradingDataResponse feeds the grading screen.
type StaffGradingDataResponse struct {
	Assignments []RosterRow `json:"assignments"`
	MaxScore    int         `json:"max_score"`
	DisplayName string      `json:"display_name"`
}

// EnterGradeRequest carries a staff grade entry. Grade stays a raw string so a
// non-integer value can be rejected with the original error payload.
type EnterGradeRequest struct {
	ModuleID     uint   `json:"module_id" validate:"required"`
	SubmissionID string `json:"submission_id"`
	Grade        string `json:"grade"`
	Comment      string `json:"comment"`
}

// RemoveGradeRequest identifies whose grade to reset.
type RemoveGradeRequest struct {
	ModuleID  uint   `json:"module_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// GradeErrorResponse mirrors the error JSON the grading screen expects when a
// grade fails validation. It is deliberately not an HTTP error.
type GradeErrorResponse struct {
	Error string `json:"error"`
}
