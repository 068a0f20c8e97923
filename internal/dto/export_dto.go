package dto

// PrepareExportResponse reports whether a fresh archive is ready. When false
// the rebuild has been enqueued and the caller should poll the status check.
type PrepareExportResponse struct {
	Downloadable bool `json:"downloadable"`
}

// ExportStatusResponse carries the archive freshness boolean.
type ExportStatusResponse struct {
	ZipAvailable bool `json:"zip_available"`
}

// ExportJob is the payload dispatched to the export worker.
type ExportJob struct {
	BlockID   string `json:"block_id"`
	CourseID  string `json:"course_id"`
	Requester string `json:"requester"`
}
