package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/dosekeeper/internal/metrics"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/reminder"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

// Pinger checks that the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Server provides the HTTP API for dosekeeper.
type Server struct {
	service *Service
	db      Pinger
	metrics *metrics.Metrics
	logger  *zap.Logger
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server. db may be nil for the in-memory store.
func NewServer(service *Service, db Pinger, m *metrics.Metrics, logger *zap.Logger, addr string) *Server {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		db:      db,
		metrics: m,
		logger:  logger,
		addr:    addr,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger, s.metrics))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/medications", func(r chi.Router) {
		r.Get("/", s.listMedications)
		r.Post("/", s.createMedication)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getMedication)
			r.Patch("/", s.updateMedication)
			r.Delete("/", s.deleteMedication)
			r.Post("/archive", s.archiveMedication)
			r.Post("/restore", s.restoreMedication)
			r.Post("/dose", s.logDose)
		})
	})

	r.Route("/reminder", func(r chi.Router) {
		r.Get("/", s.getReminder)
		r.Post("/take", s.resolve(reminder.ActionTake))
		r.Post("/skip", s.resolve(reminder.ActionSkip))
		r.Post("/snooze", s.resolve(reminder.ActionSnooze))
	})

	r.Get("/doses", s.listDoses)
	r.Get("/doses/stats", s.doseStats)
	r.Get("/problems", s.listProblems)
	r.Get("/scheduler", s.schedulerStats)
	r.Get("/audit", s.listAudit)

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("http server listening", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if s.db == nil {
		resp.DB = "memory"
	} else if err := s.db.Ping(r.Context()); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// --- Medication Handlers ---

func (s *Server) listMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := s.service.ListMedications(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meds)
}

func (s *Server) createMedication(w http.ResponseWriter, r *http.Request) {
	var patch models.MedicationPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	med, err := s.service.CreateMedication(r.Context(), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, med)
}

func (s *Server) getMedication(w http.ResponseWriter, r *http.Request) {
	med, err := s.service.GetMedication(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

func (s *Server) updateMedication(w http.ResponseWriter, r *http.Request) {
	var patch models.MedicationPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	med, err := s.service.UpdateMedication(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

func (s *Server) deleteMedication(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteMedication(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) archiveMedication(w http.ResponseWriter, r *http.Request) {
	med, err := s.service.ArchiveMedication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

func (s *Server) restoreMedication(w http.ResponseWriter, r *http.Request) {
	med, err := s.service.RestoreMedication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

func (s *Server) logDose(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.LogDose(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Reminder Handlers ---

type resolveRequest struct {
	MedicationID string `json:"medication_id"`
}

func (s *Server) getReminder(w http.ResponseWriter, r *http.Request) {
	rem := s.service.ActiveReminder()
	if rem == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) resolve(action reminder.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		out, err := s.service.Resolve(r.Context(), action, req.MedicationID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// --- Reporting Handlers ---

func (s *Server) listDoses(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, s.service.DoseLog(limit))
}

func (s *Server) doseStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	writeJSON(w, http.StatusOK, s.service.Stats(days))
}

func (s *Server) listProblems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Problems())
}

func (s *Server) schedulerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.SchedulerStats())
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.AuditTrail(r.URL.Query().Get("medication_id"), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
