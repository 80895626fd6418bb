package dto

import (
	"time"

	"mediaCompressor/api/validation"
	"mediaCompressor/models"
)

// SubmitRequest is one upload as the service sees it.
type SubmitRequest struct {
	TraceID  string
	Kind     string
	Filename string
	Data     []byte
	Settings validation.SettingsInput
}

type UploadResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ReportResponse struct {
	Partitions   []models.Partition `json:"partitions,omitempty"`
	Degradations []string           `json:"degradations,omitempty"`
}

type TaskResponse struct {
	TaskID           string           `json:"task_id"`
	TraceID          string           `json:"trace_id,omitempty"`
	OriginalFilename string           `json:"original_filename,omitempty"`
	MediaKind        string           `json:"media_kind"`
	Status           string           `json:"status"`
	Progress         int              `json:"progress"`
	Settings         models.Settings  `json:"settings"`
	OriginalSize     int64            `json:"original_size"`
	CompressedSize   *int64           `json:"compressed_size"`
	CompressionRatio *float64         `json:"compression_ratio"`
	AIAnalysis       *models.Analysis `json:"ai_analysis,omitempty"`
	Report           *ReportResponse  `json:"report,omitempty"`
	DownloadURL      *string          `json:"download_url"`
	Error            *string          `json:"error"`
	ErrorKind        string           `json:"error_kind,omitempty"`
	CreatedAt        string           `json:"created_at"`
	UpdatedAt        string           `json:"updated_at"`
	StartedAt        *string          `json:"started_at,omitempty"`
	CompletedAt      *string          `json:"completed_at,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewTaskResponse renders a task snapshot. The same snapshot always renders the same
// response.
func NewTaskResponse(task *models.Task) *TaskResponse {
	resp := &TaskResponse{
		TaskID:           task.ID,
		TraceID:          task.TraceID,
		OriginalFilename: task.OriginalFilename,
		MediaKind:        string(task.MediaKind),
		Status:           string(task.Status),
		Progress:         task.Progress,
		Settings:         task.Settings,
		OriginalSize:     task.OriginalSize,
		CompressedSize:   task.CompressedSize,
		CompressionRatio: task.CompressionRatio,
		ErrorKind:        string(task.ErrorKind),
		CreatedAt:        formatTime(task.CreatedAt),
		UpdatedAt:        formatTime(task.UpdatedAt),
		StartedAt:        formatTimePtr(task.StartedAt),
		CompletedAt:      formatTimePtr(task.CompletedAt),
	}

	if task.Report != nil {
		analysis := task.Report.Analysis
		resp.AIAnalysis = &analysis
		if len(task.Report.Partitions) > 0 || len(task.Report.Degradations) > 0 {
			resp.Report = &ReportResponse{
				Partitions:   task.Report.Partitions,
				Degradations: task.Report.Degradations,
			}
		}
	}

	switch task.Status {
	case models.StatusCompleted:
		url := "/download/" + task.ID
		resp.DownloadURL = &url
	case models.StatusFailed:
		msg := task.ErrorMessage
		resp.Error = &msg
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
