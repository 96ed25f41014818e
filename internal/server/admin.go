package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"vidpipe/internal/logging"
	"vidpipe/internal/provider"
)

// BackendList is the GET /api/backends body.
type BackendList struct {
	Backends []provider.BackendStatus `json:"backends"`
}

// QuotaBackend is one backend's usage in QuotaView.
type QuotaBackend struct {
	ID           string `json:"id"`
	DailyUsed    int64  `json:"dailyUsed"`
	MonthlyUsed  int64  `json:"monthlyUsed"`
	WithinBudget bool   `json:"withinBudget"`
}

// QuotaView is the GET /api/quota body.
type QuotaView struct {
	DailyLimit   int64          `json:"dailyLimit"`
	MonthlyLimit int64          `json:"monthlyLimit"`
	ResetDay     int            `json:"resetDay"`
	DayStart     time.Time      `json:"dayStart"`
	WindowStart  time.Time      `json:"windowStart"`
	Backends     []QuotaBackend `json:"backends"`
}

// LogResponse is one page of the log long-poll.
type LogResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

func (s *Server) handleBackends(w http.ResponseWriter, _ *http.Request) {
	if s.backends == nil {
		writeJSON(s.logger, w, http.StatusOK, BackendList{})
		return
	}
	writeJSON(s.logger, w, http.StatusOK, BackendList{Backends: s.backends.Status(s.now())})
}

func (s *Server) handleResetBackend(w http.ResponseWriter, r *http.Request) {
	if s.backends == nil {
		writeError(s.logger, w, http.StatusNotFound, "no backends configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.backends.Reset(id); err != nil {
		writeFailure(s.logger, w, err)
		return
	}
	for _, status := range s.backends.Status(s.now()) {
		if status.ID == id {
			writeJSON(s.logger, w, http.StatusOK, status)
			return
		}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleQuota(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	view := QuotaView{
		ResetDay:    s.resetDay,
		DayStart:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		WindowStart: provider.BillingWindowStart(now, s.resetDay),
	}
	if s.backends != nil {
		for _, status := range s.backends.Status(now) {
			view.DailyLimit = status.DailyLimit
			view.MonthlyLimit = status.MonthlyLimit
			view.Backends = append(view.Backends, QuotaBackend{
				ID:           status.ID,
				DailyUsed:    status.DailyUsed,
				MonthlyUsed:  status.MonthlyUsed,
				WithinBudget: status.WithinBudget,
			})
		}
	}
	writeJSON(s.logger, w, http.StatusOK, view)
}

// handleLogs serves the log long-poll: ?since=<seq>&limit=&follow=1&tail=1,
// optionally filtered by ?job= and ?component=.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(s.logger, w, http.StatusOK, LogResponse{})
		return
	}
	query := r.URL.Query()
	since := cast.ToUint64(query.Get("since"))
	limit := cast.ToInt(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := cast.ToBool(query.Get("follow"))
	tail := cast.ToBool(query.Get("tail"))
	jobID := strings.TrimSpace(query.Get("job"))
	component := strings.TrimSpace(query.Get("component"))

	q := logging.Query{Since: since, Limit: limit, JobID: jobID, Component: component}

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = s.hub.Tail(q)
	} else {
		var err error
		events, next, err = s.hub.Fetch(r.Context(), q, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			writeError(s.logger, w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if events == nil {
		events = []logging.LogEvent{}
	}
	writeJSON(s.logger, w, http.StatusOK, LogResponse{Events: events, Next: next})
}
