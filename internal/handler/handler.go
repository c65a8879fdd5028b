// Package handler serves the read-only run inspection API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizen/internal/export"
	appI18n "github.com/pavelanni/quizen/internal/i18n"
	"github.com/pavelanni/quizen/internal/model"
	"github.com/pavelanni/quizen/internal/report"
	"github.com/pavelanni/quizen/internal/store"
)

// RunStore is the storage the API reads from.
type RunStore interface {
	ListRuns(ctx context.Context) ([]model.RunSummary, error)
	Load(ctx context.Context, runID string) (model.RunSnapshot, error)
	ListEvents(ctx context.Context, runID string) ([]model.Event, error)
	GetOperator(ctx context.Context, username string) (*store.Operator, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  RunStore
	logger *slog.Logger
}

// New creates a new Handler.
func New(s RunStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, logger: logger}
}

// Routes registers all HTTP routes. Everything except /health needs an
// operator.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(h.requireOperator)
		r.Get("/runs", h.handleListRuns)
		r.Get("/runs/{runID}", h.handleGetRun)
		r.Get("/runs/{runID}/events", h.handleEvents)
		r.Get("/runs/{runID}/report", h.handleReport)
		r.Get("/runs/{runID}/meta", h.handleMeta)
		r.Get("/runs/{runID}/validation", h.handleValidation)
		r.Get("/runs/{runID}/questions", h.handleQuestions)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		h.serverError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	h.logger.Debug("runs listed", "operator", OperatorFromContext(r.Context()), "count", len(runs))
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, ok := h.loadRun(w, r); !ok {
		return
	}
	events, err := h.store.ListEvents(r.Context(), runID)
	if err != nil {
		h.serverError(w, "list events", err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type reportResponse struct {
	report.Report
	StatusLabel string `json:"status_label"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	rep := report.Build(snap)
	writeJSON(w, http.StatusOK, reportResponse{
		Report:      rep,
		StatusLabel: appI18n.T(r.Context(), statusMessageID(rep.Progress.Status)),
	})
}

func (h *Handler) handleMeta(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": snap.RunID,
		"rows":   report.MetaRows(snap.Parts, snap.Questions),
	})
}

// handleValidation re-runs the export validator over the stored questions.
// The run itself is not changed.
func (h *Handler) handleValidation(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	resp := map[string]any{"run_id": snap.RunID, "valid": true, "reasons": []string{}}
	if err := export.Validate(snap.Questions); err != nil {
		resp["valid"] = false
		var verr *export.ValidationError
		if errors.As(err, &verr) {
			resp["reasons"] = verr.Reasons()
		} else {
			resp["reasons"] = []string{err.Error()}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleQuestions searches a run's bank. Query parameters: part,
// question_type, min_score, style_only, search, sort_by and order.
func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuestionQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	matches := report.FindQuestions(snap.Questions, query)
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":    snap.RunID,
		"count":     len(matches),
		"questions": matches,
		"progress":  report.Progress(snap.Events),
	})
}

func parseQuestionQuery(values url.Values) (report.QuestionQuery, error) {
	q := report.QuestionQuery{
		PartName: values.Get("part"),
		Search:   values.Get("search"),
		SortBy:   values.Get("sort_by"),
	}
	if v := values.Get("question_type"); v != "" {
		t, ok := model.ParseQuestionType(v)
		if !ok {
			return q, fmt.Errorf("invalid question_type %q", v)
		}
		q.Type = t
	}
	if v := values.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return q, fmt.Errorf("invalid min_score %q", v)
		}
		q.MinScore = &f
	}
	if v := values.Get("style_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, fmt.Errorf("invalid style_only %q", v)
		}
		q.StyleOnly = b
	}
	switch order := values.Get("order"); order {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return q, fmt.Errorf("invalid order %q (want asc or desc)", order)
	}
	return q, q.Validate()
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (model.RunSnapshot, bool) {
	runID := chi.URLParam(r, "runID")
	snap, err := h.store.Load(r.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, appI18n.Td(r.Context(), "RunNotFound", map[string]any{"RunID": runID}))
		return model.RunSnapshot{}, false
	}
	if err != nil {
		h.serverError(w, "load run", err)
		return model.RunSnapshot{}, false
	}
	return snap, true
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func statusMessageID(status string) string {
	switch status {
	case report.StatusRunning:
		return "StatusRunning"
	case report.StatusCompleted:
		return "StatusCompleted"
	case report.StatusFailed:
		return "StatusFailed"
	default:
		return "StatusPending"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
