package upload

import "time"

// Status is the phase of an upload.
type Status string

const (
	StatusPreparing  Status = "preparing"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Progress is one upload progress report.
type Progress struct {
	Status        Status  `json:"status"`
	BytesUploaded int64   `json:"bytes_uploaded"`
	BytesTotal    int64   `json:"bytes_total"`
	Percentage    float64 `json:"percentage"`
	Error         string  `json:"error,omitempty"`
}

// ProgressFunc receives upload progress reports. It must not block.
type ProgressFunc func(Progress)

// Analytics summarizes a finished upload.
type Analytics struct {
	Elapsed  time.Duration `json:"elapsed"`
	FileSize int64         `json:"file_size"`
	Chunks   int           `json:"chunks"`
}

// Result is the outcome of an upload. Success=false carries Error.
type Result struct {
	Success    bool      `json:"success"`
	URL        string    `json:"url,omitempty"`
	PlatformID string    `json:"platform_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Analytics  Analytics `json:"analytics"`
}
