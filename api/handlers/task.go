package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mediaCompressor/api/dto"
	"mediaCompressor/api/middleware"
	"mediaCompressor/api/validation"
	"mediaCompressor/models"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to
// temp files.
const multipartMemory = 32 << 20

type TaskService interface {
	SubmitCompression(ctx context.Context, req *dto.SubmitRequest) (string, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	FetchResult(ctx context.Context, id string) ([]byte, *models.Task, error)
}

type TaskHandler struct {
	service     TaskService
	maxFileSize int64
	logger      *zap.Logger
}

func NewTaskHandler(service TaskService, maxFileSize int64, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service:     service,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Upload accepts a multipart upload for the media kind in the path and queues it.
func (h *TaskHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())
	kind := mux.Vars(r)["kind"]

	if h.maxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(w, r, validation.ErrFileTooLarge)
			return
		}
		h.handleError(w, r, fmt.Errorf("%w: failed to parse form: %v", models.ErrInvalidInput, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, r, fmt.Errorf("%w: missing file: %v", models.ErrInvalidInput, err))
		return
	}
	defer file.Close()

	if err := validation.CheckSize(header.Size, h.maxFileSize); err != nil {
		h.handleError(w, r, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	settings, err := parseSettings(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	taskID, err := h.service.SubmitCompression(r.Context(), &dto.SubmitRequest{
		TraceID:  traceID,
		Kind:     kind,
		Filename: sanitizeFilename(header.Filename),
		Data:     data,
		Settings: settings,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.Info("File uploaded",
		zap.String("trace_id", traceID),
		zap.String("task_id", taskID),
		zap.String("media_kind", kind),
		zap.String("filename", header.Filename),
		zap.Int("size", len(data)),
	)

	h.respondJSON(w, http.StatusAccepted, dto.UploadResponse{
		TaskID:  taskID,
		Status:  string(models.StatusPending),
		Message: fmt.Sprintf("%s compression queued", strings.ToUpper(kind[:1])+kind[1:]),
	})
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.GetTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, dto.NewTaskResponse(task))
}

// Download streams the artifact of a completed task.
func (h *TaskHandler) Download(w http.ResponseWriter, r *http.Request) {
	data, task, err := h.service.FetchResult(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": downloadName(task, data),
	})
	w.Header().Set("Content-Type", validation.ContentType(data))
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseSettings reads quality, adaptive_mode and bitrate from the query string or the
// form. Absent values are left for the service to default.
func parseSettings(r *http.Request) (validation.SettingsInput, error) {
	var in validation.SettingsInput

	if v := r.FormValue("quality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return in, fmt.Errorf("%w: quality %q is not an integer", models.ErrInvalidInput, v)
		}
		in.Quality = &q
	}
	if v := r.FormValue("adaptive_mode"); v != "" {
		a, err := strconv.ParseBool(v)
		if err != nil {
			return in, fmt.Errorf("%w: adaptive_mode %q is not a boolean", models.ErrInvalidInput, v)
		}
		in.AdaptiveMode = &a
	}
	if v := r.FormValue("bitrate"); v != "" {
		b, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, fmt.Errorf("%w: bitrate %q is not a number", models.ErrInvalidInput, v)
		}
		in.Bitrate = &b
	}
	return in, nil
}

func sanitizeFilename(filename string) string {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// downloadName is compressed_<original name> with the extension of the format actually
// produced.
func downloadName(task *models.Task, data []byte) string {
	base := task.OriginalFilename
	if base == "" {
		base = task.ID
	}
	if ext, ok := artifactExtensions[validation.ContentType(data)]; ok {
		base = strings.TrimSuffix(base, filepath.Ext(base)) + ext
	}
	return "compressed_" + base
}

var artifactExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"audio/ogg":  ".ogg",
	"audio/wav":  ".wav",
	"video/mp4":  ".mp4",
}

func (h *TaskHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetTraceID(r.Context())

	status, code, message := http.StatusInternalServerError, "internal", "Internal server error"
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, models.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", "Task not found"
	case errors.Is(err, models.ErrNotReady):
		status, code, message = http.StatusConflict, "not_ready", "Task not completed"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("trace_id", traceID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		h.logger.Debug("Request rejected",
			zap.String("trace_id", traceID),
			zap.String("code", code),
			zap.Error(err),
		)
	}

	h.respondJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
