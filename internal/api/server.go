// Package api wires the catalog and circulation handlers into the HTTP router.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"libraloans/internal/catalog"
	"libraloans/internal/circulation"
	"libraloans/internal/http/response"
	"libraloans/internal/ratelimit"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options tunes the middleware stack.
type Options struct {
	AllowedOrigins []string
	// LoanRatePerMinute limits POST /api/loans per client. Zero disables it.
	LoanRatePerMinute int
	LoanRateBurst     int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db          Pinger
	books       *catalog.Handler
	loans       *circulation.Handler
	loanLimiter *ratelimit.KeyedRateLimiter
	options     Options
	router      *chi.Mux
	logger      *slog.Logger
	now         func() time.Time
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(db Pinger, books catalog.Service, loans circulation.Service, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		db:      db,
		books:   catalog.NewHandler(books, logger),
		loans:   circulation.NewHandler(loans, logger),
		options: opts,
		router:  chi.NewRouter(),
		logger:  logger,
		now:     time.Now,
	}
	if opts.LoanRatePerMinute > 0 {
		s.loanLimiter = ratelimit.PerMinute(opts.LoanRatePerMinute, opts.LoanRateBurst)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	origins := s.options.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(requestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(s.recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "route not found", s.logger)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "method not allowed", s.logger)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/books", func(r chi.Router) {
			r.Get("/search", s.books.HandleSearch)
			r.Get("/{id}", s.books.HandleGetBook)
		})

		r.Route("/loans", func(r chi.Router) {
			r.With(s.rateLimit).Post("/", s.loans.HandleCreateLoan)
			r.Get("/", s.loans.HandleListLoans)
			r.Get("/active", s.loans.HandleListActiveLoans)
			r.Get("/statistics", s.loans.HandleStatistics)
			r.Post("/return/{id}", s.loans.HandleReturnLoan)
		})
	})
}

type healthStatus struct {
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealth pings the database with a short deadline.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Database: "up", Timestamp: s.now().UTC()}
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		status.Database = "down"
		response.Write(w, http.StatusServiceUnavailable, response.Envelope{
			Success: false,
			Message: "database unavailable",
			Data:    status,
		}, s.logger)
		return
	}

	response.Write(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "service is running",
		Data:    status,
	}, s.logger)
}
