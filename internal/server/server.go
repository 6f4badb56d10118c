package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"nach-reprocessing/internal/cache"
	"nach-reprocessing/internal/config"
	"nach-reprocessing/internal/handler"
	"nach-reprocessing/internal/parser"
	"nach-reprocessing/internal/repository"
	"nach-reprocessing/internal/service"
	"nach-reprocessing/migrations"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// Server represents the HTTP server
type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	redis  *redis.Client
	logger *slog.Logger
	port   string
}

// OpenDB connects to Postgres and applies the embedded schema.
func OpenDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := repository.Open(ctx, cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to database")

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database schema up to date", "migrations", applied)

	return db, nil
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := OpenDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize store (Unit of Work)
	store := repository.NewStore(db, logger)

	rdb := cache.NewRedisClient(ctx, cfg.RedisAddr, logger)
	catalog := cache.NewErrorCatalog(store.ErrorConfig(), rdb, cfg.ErrorCacheTTL, logger)

	// Initialize services
	fileParser := parser.NewFileParser(cfg.Upload, logger)
	ingestionService := service.NewIngestionService(store, fileParser, cfg.Upload, logger)
	reprocessService := service.NewReprocessService(store, cfg.Reprocess, logger)
	transactionService := service.NewTransactionService(store, catalog, logger)

	// Initialize handlers
	uploadHandler := handler.NewUploadHandler(ingestionService, cfg.Upload.MaxSizeBytes, logger)
	reprocessHandler := handler.NewReprocessHandler(reprocessService)
	transactionHandler := handler.NewTransactionHandler(transactionService, logger)

	// Setup router
	router := mux.NewRouter()

	// Add middleware for logging
	router.Use(loggingMiddleware(logger))

	api := router.PathPrefix("/api/nach").Subrouter()
	api.HandleFunc("/upload", uploadHandler.Upload).Methods("POST")
	api.HandleFunc("/reprocess", reprocessHandler.Reprocess).Methods("POST")
	api.HandleFunc("/transactions/export", transactionHandler.Export).Methods("GET")
	api.HandleFunc("/transactions/{id:[0-9]+}", transactionHandler.Get).Methods("GET")
	api.HandleFunc("/transactions", transactionHandler.List).Methods("GET")
	api.HandleFunc("/stats", transactionHandler.Stats).Methods("GET")
	api.HandleFunc("/error-codes", transactionHandler.ErrorCodes).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return &Server{
		router: router,
		db:     db,
		redis:  rdb,
		logger: logger,
	}, nil
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return server, port, nil
}
