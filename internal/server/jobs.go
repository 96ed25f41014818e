package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"vidpipe/internal/jobs"
	"vidpipe/internal/logging"
	"vidpipe/internal/media"
	"vidpipe/internal/pipeline"
	"vidpipe/internal/progress"
	"vidpipe/internal/services"
	"vidpipe/internal/services/upload"
)

// JobRequest is the POST /api/jobs body. Omitted stage flags enable every stage.
type JobRequest struct {
	Media  pipeline.Media     `json:"media"`
	Stages *pipeline.Stages   `json:"stages,omitempty"`
	Upload upload.Options     `json:"upload"`
	Voice  media.VoiceOptions `json:"voice"`
	Edit   media.EditOptions  `json:"edit"`
}

// Job converts the request into a pipeline job.
func (r JobRequest) Job() pipeline.Job {
	stages := pipeline.AllStages()
	if r.Stages != nil {
		stages = *r.Stages
	}
	return pipeline.Job{
		Media:  r.Media,
		Stages: stages,
		Upload: r.Upload,
		Voice:  r.Voice,
		Edit:   r.Edit,
	}
}

// JobCreated is the POST /api/jobs reply.
type JobCreated struct {
	ID     string          `json:"id"`
	Status progress.Status `json:"status"`
}

// JobList is the GET /api/jobs body.
type JobList struct {
	Jobs []jobs.Record `json:"jobs"`
}

// JobResult is the success or pending body of GET /api/jobs/{id}/result.
type JobResult struct {
	ID     string          `json:"id"`
	Status progress.Status `json:"status"`
	URL    string          `json:"url,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeJobRequest(w, r)
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	rec, err := s.jobs.Start(req.Job())
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+rec.ID)
	writeJSON(s.logger, w, http.StatusAccepted, JobCreated{ID: rec.ID, Status: rec.Status})
}

func (s *Server) decodeJobRequest(w http.ResponseWriter, r *http.Request) (JobRequest, error) {
	var req JobRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, services.Wrap(services.ErrValidation, "api", "decode job", "invalid JSON body", err)
		}
		return req, nil
	}

	limit := int64(s.cfg.MaxUploadMiB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return req, services.Wrap(services.ErrValidation, "api", "decode job", "invalid multipart form", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	if raw := strings.TrimSpace(r.FormValue("options")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return req, services.Wrap(services.ErrValidation, "api", "decode job", "invalid options JSON", err)
		}
	}
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil
	case err != nil:
		return req, services.Wrap(services.ErrValidation, "api", "decode job", "read uploaded file", err)
	}
	defer file.Close()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		return req, err
	}
	req.Media.Locator = path
	if strings.TrimSpace(req.Media.Title) == "" {
		req.Media.Title = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}
	return req, nil
}

func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	dir := filepath.Join(s.workDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "api", "save upload", "create upload dir", err)
	}
	target := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	out, err := os.Create(target)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "api", "save upload", "create file", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(target)
		return "", services.Wrap(services.ErrValidation, "api", "save upload", "copy file", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("close upload: %w", err)
	}
	s.logger.Info("media uploaded",
		logging.String(logging.FieldEventType, "media_uploaded"),
		logging.String("path", target),
	)
	return target, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	records := s.jobs.List()
	query := r.URL.Query()
	if status := strings.TrimSpace(query.Get("status")); status != "" {
		filtered := records[:0]
		for _, rec := range records {
			if strings.EqualFold(string(rec.Status), status) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if limit := cast.ToInt(query.Get("limit")); limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	writeJSON(s.logger, w, http.StatusOK, JobList{Jobs: records})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, rec)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, rec)
}

// handleJobResult reports the outcome with a status code per kind:
// 200 published, 202 still running, 422 content policy, 409 cancelled,
// 500 system fault.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	switch {
	case !rec.Terminal():
		writeJSON(s.logger, w, http.StatusAccepted, JobResult{ID: rec.ID, Status: rec.Status})
	case rec.Status == progress.StatusCompleted:
		writeJSON(s.logger, w, http.StatusOK, JobResult{ID: rec.ID, Status: rec.Status, URL: rec.URL})
	default:
		status := http.StatusInternalServerError
		switch rec.ErrorKind {
		case jobs.KindContentPolicy:
			status = http.StatusUnprocessableEntity
		case jobs.KindCancelled:
			status = http.StatusConflict
		case jobs.KindValidation:
			status = http.StatusBadRequest
		}
		writeJSON(s.logger, w, status, ErrorResponse{Error: rec.Error, Kind: rec.ErrorKind, Hint: rec.Hint, Issues: rec.Issues})
	}
}
