// Package fakebackend serves the nutrisync REST API from memory. It backs the
// mock-server command and the HTTP-level tests of the client.
package fakebackend

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/colthorp/nutrisync-cli-go/internal/models"
)

// Server is the fake backend. Handler returns the routed http.Handler.
type Server struct {
	store   *Store
	token   string
	origins []string
	log     zerolog.Logger

	mu      sync.Mutex
	faults  []*fault
	latency time.Duration
}

// fault fails the next matching requests with a status code.
type fault struct {
	method    string
	prefix    string
	status    int
	remaining int
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every API request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithCORSOrigins sets the origins allowed by the CORS handler.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithStore serves an existing store.
func WithStore(st *Store) Option {
	return func(s *Server) { s.store = st }
}

// WithTargets sets the daily goals reported by the dashboard.
func WithTargets(t models.DailySummary) Option {
	return func(s *Server) { s.store.targets = t }
}

// WithWeightKg sets the body weight used for server-side burn estimates.
func WithWeightKg(kg float64) Option {
	return func(s *Server) { s.store.weightKg = kg }
}

// WithClock overrides the time source of the store.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.store.now = now }
}

// New creates a server over an empty store. WithStore must come before
// options that touch the store.
func New(opts ...Option) *Server {
	s := &Server{
		store:   NewStore(),
		origins: []string{"*"},
		log:     log.Logger.With().Str("component", "fakebackend").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the backing store for seeding and assertions.
func (s *Server) Store() *Store {
	return s.store
}

// FailNext makes the next times requests with method whose path starts with
// prefix answer status.
func (s *Server) FailNext(method, prefix string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, prefix: prefix, status: status, remaining: times})
}

// SetLatency delays every API response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// takeFault consumes a matching fault. Zero means none.
func (s *Server) takeFault(r *http.Request) (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.faults {
		if f.method != r.Method || !strings.HasPrefix(r.URL.Path, f.prefix) {
			continue
		}
		f.remaining--
		if f.remaining <= 0 {
			s.faults = append(s.faults[:i], s.faults[i+1:]...)
		}
		return f.status, s.latency
	}
	return 0, s.latency
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.injectFaults)

		r.Get("/dashboard/{date}", s.getDashboard)

		r.Route("/food-logs", func(r chi.Router) {
			r.Get("/", s.listFood)
			r.Post("/", s.createFood)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", s.updateFood)
				r.Delete("/", s.deleteFood)
				r.Post("/items", s.addItem)
				r.Put("/items/{itemId}", s.updateItem)
				r.Delete("/items/{itemId}", s.deleteItem)
			})
		})

		r.Route("/exercise-logs", func(r chi.Router) {
			r.Get("/", s.listExercise)
			r.Post("/", s.createExercise)
			r.Get("/types", s.exerciseTypes)
			r.Put("/{id}", s.updateExercise)
			r.Delete("/{id}", s.deleteExercise)
		})

		r.Route("/water-logs", func(r chi.Router) {
			r.Get("/", s.listWater)
			r.Post("/", s.createWater)
			r.Delete("/{id}", s.deleteWater)
		})

		r.Get("/conversations/{id}/messages", s.listMessages)
		r.Post("/conversations/{id}/messages", s.sendMessage)
	})

	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, latency := s.takeFault(r)
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			if status == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "0")
			}
			respondError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}
