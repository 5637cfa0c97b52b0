// Package handler exposes the generation and grading pipeline as a small
// JSON API. Everything here is I/O glue: decode, call, encode.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/provgen/provgen/internal/exam"
	"github.com/provgen/provgen/internal/grade"
	"github.com/provgen/provgen/internal/history"
	"github.com/provgen/provgen/internal/llm"
	"github.com/provgen/provgen/internal/model"
	"github.com/provgen/provgen/internal/train"
)

// Pinger checks the completion endpoint is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	generator *exam.Generator
	grader    *grade.Grader
	trainer   *train.Synthesizer
	history   *history.Store // nil when persistence is disabled
	pinger    Pinger
}

// New creates a new Handler. history may be nil.
func New(g *exam.Generator, gr *grade.Grader, tr *train.Synthesizer, hist *history.Store, p Pinger) *Handler {
	return &Handler{generator: g, grader: gr, trainer: tr, history: hist, pinger: p}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/exams", h.handleGenerate)
	r.Post("/api/exams/grade", h.handleGrade)
	r.Post("/api/training-material", h.handleTrain)
	r.Get("/api/students/{studentID}/mistakes", h.handleMistakes)
	r.Get("/healthz", h.handleHealth)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{"ok": false, "error": "invalid JSON body"})
		return
	}

	generated, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true, "exam": generated})
}

type gradeRequest struct {
	model.GradeRequest
	StudentID string `json:"student_id"`
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{"ok": false, "error": "invalid JSON body"})
		return
	}

	// A student context supplied in the request takes precedence; the
	// stored window only fills in when the request carries none.
	if req.Student == nil && req.StudentID != "" && h.history != nil {
		req.Student = h.loadStudentContext(req.StudentID)
	}

	report, err := h.grader.Grade(r.Context(), req.GradeRequest)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if req.StudentID != "" && h.history != nil {
		_, err := h.history.SaveReport(req.StudentID, req.Course, string(req.Level), *report, req.Questions, req.Answers)
		if err != nil {
			// The report is already complete; losing the record must
			// not fail the request.
			slog.Error("save grade report", "student_id", req.StudentID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true, "result": report})
}

func (h *Handler) loadStudentContext(studentID string) *model.StudentContext {
	hist, err := h.history.RecentHistory(studentID, model.MaxHistoryEntries)
	if err != nil {
		slog.Warn("load student history", "student_id", studentID, "error", err)
	}
	mistakes, err := h.history.RecentMistakes(studentID, model.MaxMistakeEntries)
	if err != nil {
		slog.Warn("load student mistakes", "student_id", studentID, "error", err)
	}
	if len(hist) == 0 && len(mistakes) == 0 {
		return nil
	}
	return &model.StudentContext{History: hist, Mistakes: mistakes}
}

type trainRequest struct {
	model.TrainRequest
	StudentID string `json:"student_id"`
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{"ok": false, "error": "invalid JSON body"})
		return
	}

	if len(req.Mistakes) == 0 && req.StudentID != "" && h.history != nil {
		mistakes, err := h.history.RecentMistakes(req.StudentID, train.MaxMistakes)
		if err != nil {
			slog.Warn("load student mistakes", "student_id", req.StudentID, "error", err)
		}
		req.Mistakes = mistakes
	}

	material, err := h.trainer.Synthesize(r.Context(), req.TrainRequest)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"ok":            true,
		"material_text": material.MaterialText,
		"focus_topics":  material.FocusTopics,
	})
}

func (h *Handler) handleMistakes(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusNotFound, envelope{"ok": false, "error": "history is disabled"})
		return
	}
	studentID := chi.URLParam(r, "studentID")

	limit := model.MaxMistakeEntries
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > train.MaxMistakes {
			writeJSON(w, http.StatusBadRequest, envelope{"ok": false, "error": "invalid limit"})
			return
		}
		limit = n
	}

	mistakes, err := h.history.RecentMistakes(studentID, limit)
	if err != nil {
		slog.Error("list mistakes", "student_id", studentID, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"ok": false, "error": "server error"})
		return
	}
	if mistakes == nil {
		mistakes = []model.Mistake{}
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true, "mistakes": mistakes})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		slog.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, envelope{"ok": false, "error": "completion endpoint unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true})
}

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps pipeline failures to HTTP responses. Invalid attempts
// are surfaced for debugging, never presented as valid results.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var invalid *exam.InvalidOutputError
	var badResult *grade.InvalidResultError
	var up *llm.UpstreamError

	switch {
	case errors.Is(err, model.ErrInvalidRequest), errors.Is(err, grade.ErrInvalidQuestion):
		writeJSON(w, http.StatusBadRequest, envelope{"ok": false, "error": err.Error()})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusInternalServerError, envelope{
			"ok":      false,
			"error":   "model output invalid",
			"details": invalid.Violation,
			"exam":    invalid.LastExam,
			"raw":     invalid.Raw,
		})
	case errors.As(err, &badResult):
		writeJSON(w, http.StatusBadGateway, envelope{
			"ok":    false,
			"error": "grading result malformed",
			"raw":   badResult.Raw,
		})
	case errors.As(err, &up):
		writeJSON(w, http.StatusBadGateway, envelope{
			"ok":      false,
			"error":   "upstream error",
			"status":  up.Status,
			"details": up.Message,
			"raw":     up.Raw,
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{"ok": false, "error": "server error"})
	}
}
