package dto

// SaveSettingsRequest carries the studio-editable block settings. Points and
// weight arrive as raw strings so validation can report the exact failure.
type SaveSettingsRequest struct {
	DisplayName string `json:"display_name"`
	Points      string `json:"points"`
	Weight      string `json:"weight"`
}

// UploadedFile is the student-visible identity of a stored file.
type UploadedFile struct {
	Filename string `json:"filename"`
}

// GradedInfo is present once an authoritative score exists.
type GradedInfo struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// DebugField is one (name, value) pair of the block's declared fields,
// assembled explicitly for the staff debug panel.
type DebugField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// StaffDebugInfo extends the student state for staff viewers.
type StaffDebugInfo struct {
	IsReleased bool         `json:"is_released"`
	Location   string       `json:"location"`
	Category   string       `json:"category"`
	Fields     []DebugField `json:"fields"`
}

// StudentStateResponse is the client-facing view of one student's assignment.
type StudentStateResponse struct {
	DisplayName     string          `json:"display_name"`
	Uploaded        *UploadedFile   `json:"uploaded"`
	Annotated       *UploadedFile   `json:"annotated"`
	Graded          *GradedInfo     `json:"graded"`
	MaxScore        int             `json:"max_score"`
	UploadAllowed   bool            `json:"upload_allowed"`
	MaxFileSize     int64           `json:"max_file_size"`
	AnswerAvailable bool            `json:"answer_available"`
	Solution        string          `json:"solution,omitempty"`
	StaffDebug      *StaffDebugInfo `json:"staff_debug,omitempty"`
}
