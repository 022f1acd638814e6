package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/cycleuser/audiblez/internal/db"
	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/models"
	"github.com/cycleuser/audiblez/internal/storage"
)

// JobStore is the part of the database the API reads.
type JobStore interface {
	EnsureUser(ctx context.Context, telegramID int64, username string) error
	ListJobs(ctx context.Context, userID int64, limit int) ([]models.Job, error)
	GetJobForUser(ctx context.Context, userID int64, jobID string) (models.Job, error)
	ListChapters(ctx context.Context, jobID string) ([]db.ChapterRecord, error)
}

type Server struct {
	store    JobStore
	botToken string
	log      logger.Logger
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

type jobDetails struct {
	models.Job
	Chapters []db.ChapterRecord `json:"chapters"`
}

func New(store JobStore, botToken string, log logger.Logger) *Server {
	return &Server{
		store:    store,
		botToken: botToken,
		log:      log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJob)
	mux.HandleFunc("/api/files/", s.handleFile)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		s.log.Info("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, user TelegramUser) {
		jobs, err := s.store.ListJobs(ctx, user.ID, 0)
		if err != nil {
			s.log.Error("list jobs", "chat", user.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db error"})
			return
		}
		if jobs == nil {
			jobs = []models.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, user TelegramUser) {
		job, ok := s.lookupJob(ctx, w, user, strings.TrimPrefix(r.URL.Path, "/api/jobs/"))
		if !ok {
			return
		}
		chapters, err := s.store.ListChapters(ctx, job.ID)
		if err != nil {
			s.log.Error("list chapters", "job", job.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db error"})
			return
		}
		if chapters == nil {
			chapters = []db.ChapterRecord{}
		}
		writeJSON(w, http.StatusOK, jobDetails{Job: job, Chapters: chapters})
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	s.withUser(w, r, func(ctx context.Context, user TelegramUser) {
		job, ok := s.lookupJob(ctx, w, user, strings.TrimPrefix(r.URL.Path, "/api/files/"))
		if !ok {
			return
		}
		if job.Status != models.JobCompleted || job.Output == "" || !storage.Exists(job.Output) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "audiobook not available"})
			return
		}

		w.Header().Set("Content-Type", "audio/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(filepath.Base(job.Output), `"`, "")+`"`)
		http.ServeFile(w, r, job.Output)
	})
}

func (s *Server) lookupJob(ctx context.Context, w http.ResponseWriter, user TelegramUser, id string) (models.Job, bool) {
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad job id"})
		return models.Job{}, false
	}
	job, err := s.store.GetJobForUser(ctx, user.ID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		} else {
			s.log.Error("get job", "job", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return models.Job{}, false
	}
	return job, true
}

func (s *Server) withUser(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, user TelegramUser)) {
	initData := extractInitData(r)
	if initData == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "initData required"})
		return
	}

	user, err := ValidateInitData(initData, s.botToken)
	if err != nil {
		s.log.Warn("rejected initData", "remote", r.RemoteAddr, "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid initData"})
		return
	}

	if err := s.store.EnsureUser(r.Context(), user.ID, user.Username); err != nil {
		s.log.Error("ensure user", "chat", user.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db error"})
		return
	}

	fn(r.Context(), user)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func extractInitData(r *http.Request) string {
	if v := r.Header.Get("X-Telegram-InitData"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(strings.ToLower(auth), "tma ") {
			return strings.TrimSpace(auth[4:])
		}
	}
	// query fallback for opening links in a plain browser
	return r.URL.Query().Get("initData")
}
