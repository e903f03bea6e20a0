// Package api exposes the reservation engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"residia/internal/access"
	"residia/internal/model"
	"residia/internal/reservation"
)

// ScopeResolver turns a bearer token into the caller's scope in a community.
type ScopeResolver interface {
	Resolve(ctx context.Context, token string, communityID int64) (*access.Scope, error)
}

// Reservations is the reservation engine as seen by the transport.
type Reservations interface {
	Create(ctx context.Context, scope *access.Scope, req reservation.CreateRequest) (*model.Reservation, error)
	UpdateStatus(ctx context.Context, scope *access.Scope, id int64, status, adminNotes string) (*model.Reservation, error)
	List(ctx context.Context, scope *access.Scope, f reservation.ListFilter) ([]model.Reservation, error)
	ExpandJurisdiction(ctx context.Context, scope *access.Scope, base []int64) ([]int64, error)
}

// Options configure the HTTP server.
type Options struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// HTTPServer serves the community-scoped reservation API.
type HTTPServer struct {
	server       *http.Server
	scopes       ScopeResolver
	reservations Reservations
	logger       zerolog.Logger
}

// NewHTTPServer wires routes and middleware.
func NewHTTPServer(opts Options, scopes ScopeResolver, reservations Reservations, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		scopes:       scopes,
		reservations: reservations,
		logger:       logger.With().Str("component", "api").Logger(),
	}

	router := mux.NewRouter()
	community := router.PathPrefix("/api/v1/communities/{communityID:[0-9]+}").Subrouter()
	community.Use(s.authenticate)
	community.HandleFunc("/reservations", s.handleCreateReservation).Methods(http.MethodPost)
	community.HandleFunc("/reservations", s.handleListReservations).Methods(http.MethodGet)
	community.HandleFunc("/reservations/export", s.handleExportReservations).Methods(http.MethodGet)
	community.HandleFunc("/reservations/{reservationID:[0-9]+}/status", s.handleUpdateStatus).Methods(http.MethodPatch)
	community.HandleFunc("/blocks/jurisdiction", s.handleJurisdiction).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "")
	})

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(router)

	handler := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(s.logRequests(corsHandler))

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Interface("panic", v).Msg("handler panic recovered")
}
