package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/joescharf/prscore/internal/apperr"
	"github.com/joescharf/prscore/internal/models"
	"github.com/joescharf/prscore/internal/scoring"
)

// Server provides the REST API handlers.
type Server struct {
	svc         *scoring.Service
	log         *slog.Logger
	frontendURL string
	now         func() time.Time
}

// NewServer creates a new API server. frontendURL is the only origin
// allowed by CORS; empty allows any origin.
func NewServer(svc *scoring.Service, frontendURL string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc:         svc,
		log:         log,
		frontendURL: frontendURL,
		now:         time.Now,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	origins := []string{"*"}
	if s.frontendURL != "" {
		origins = []string{s.frontendURL}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api/pr", func(r chi.Router) {
		r.Post("/check", s.checkPR)
		r.Post("/evaluate", s.evaluatePR)
		r.Post("/score", s.scorePR)
	})

	r.Route("/api/assignments", func(r chi.Router) {
		r.Get("/", s.listAssignments)
		r.Post("/", s.createAssignment)
		r.Get("/{id}", s.getAssignment)
		r.Get("/{id}/submissions", s.listSubmissions)
		r.Post("/{id}/submissions", s.createSubmission)
	})

	r.Route("/api/submissions", func(r chi.Router) {
		r.Get("/", s.listAllSubmissions)
		r.Get("/{id}", s.getSubmission)
		r.Put("/{id}/status", s.updateSubmissionStatus)
	})

	return r
}

// requestLogger logs one line per request once the response is written.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a {"error": message} body. Unclassified errors
// are reported as a generic internal error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		s.log.Error("handler error",
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	level := slog.LevelWarn
	if e.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.Log(r.Context(), level, "handler error",
		slog.String("path", r.URL.Path),
		slog.String("kind", string(e.Kind)),
		slog.String("message", e.Message),
		slog.Any("err", e.Err),
	)
	writeJSON(w, e.Status, map[string]string{"error": e.Message})
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.BadRequest("Invalid JSON body")
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

// --- Scoring ---

type prRequest struct {
	PRURL string `json:"prUrl"`
}

func (s *Server) checkPR(w http.ResponseWriter, r *http.Request) {
	var req prRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Check(r.Context(), req.PRURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) evaluatePR(w http.ResponseWriter, r *http.Request) {
	var req prRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Evaluate(r.Context(), req.PRURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) scorePR(w http.ResponseWriter, r *http.Request) {
	var req prRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Score(r.Context(), req.PRURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Assignments ---

func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListAssignments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Assignment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createAssignment(w http.ResponseWriter, r *http.Request) {
	var a models.Assignment
	if err := decode(r, &a); err != nil {
		s.writeError(w, r, err)
		return
	}
	a.ID = ""
	if err := s.svc.CreateAssignment(r.Context(), &a); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) getAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// --- Submissions ---

type submissionRequest struct {
	UserID string `json:"user_id"`
	PRURL  string `json:"pr_url"`
}

func (s *Server) createSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.svc.Submit(r.Context(), chi.URLParam(r, "id"), req.UserID, req.PRURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.svc.GetAssignment(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRanked(w, r, id)
}

func (s *Server) listAllSubmissions(w http.ResponseWriter, r *http.Request) {
	s.writeRanked(w, r, "")
}

func (s *Server) writeRanked(w http.ResponseWriter, r *http.Request, assignmentID string) {
	ranked, err := s.svc.RankSubmissions(r.Context(), assignmentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type statusRequest struct {
	Status models.SubmissionStatus `json:"status"`
}

func (s *Server) updateSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.svc.SetStatus(r.Context(), id, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.svc.GetSubmission(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
