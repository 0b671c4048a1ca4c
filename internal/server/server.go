// Package server is the composition root: it opens the backends named in
// config.Config, builds the services and handlers on top of them, and
// mounts everything on one chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → store (sqlite | mongodb)   → AuthService, PostService
//	  → photo store (disk | minio) → PostService
//	  → limiter (memory | redis)   → RateLimit on /api/auth
//	  → handlers                   → routes
//
// Handlers only see services, services only see repository interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/blogging-api/internal/auth"
	"github.com/sakif/blogging-api/internal/config"
	"github.com/sakif/blogging-api/internal/handler"
	"github.com/sakif/blogging-api/internal/middleware"
	"github.com/sakif/blogging-api/internal/ratelimit"
	"github.com/sakif/blogging-api/internal/repository"
	"github.com/sakif/blogging-api/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/blogging-api/internal/repository/sqlite"
	"github.com/sakif/blogging-api/internal/service"
	"github.com/sakif/blogging-api/internal/storage"
)

// connectTimeout bounds every backend dial made by New.
const connectTimeout = 10 * time.Second

// store is whichever database backend the config selected.
type store struct {
	users repository.UserRepository
	posts repository.PostRepository
	db    handler.Pinger
}

// Server owns the router and every backend connection. Close releases the
// connections in reverse order of opening.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	closers []func() error
}

// New connects to the configured backends and sets up the routes. On error
// anything already opened is closed again.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := s.setup(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup(ctx context.Context) error {
	st, err := s.openStore(ctx)
	if err != nil {
		return err
	}

	photos, photoFiles, err := s.openPhotoStore(ctx)
	if err != nil {
		return err
	}

	limiter, err := s.openLimiter(ctx)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("server: creating token service: %w", err)
	}

	s.routes(st, photos, photoFiles, limiter, tokens)
	return nil
}

func (s *Server) openStore(ctx context.Context) (store, error) {
	switch s.config.DBDriver {
	case config.DriverMongo:
		db, err := mongodb.Connect(ctx, s.config.MongoURI, s.config.MongoDB)
		if err != nil {
			return store{}, fmt.Errorf("server: connecting to mongodb: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		return store{users: db.Users(), posts: db.Posts(), db: db}, nil

	default:
		if s.config.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(s.config.DBPath), 0o755); err != nil {
				return store{}, fmt.Errorf("server: creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(s.config.DBPath)
		if err != nil {
			return store{}, fmt.Errorf("server: opening sqlite: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		return store{users: db.Users(), posts: db.Posts(), db: db}, nil
	}
}

// openPhotoStore returns the cover photo store, and the files to serve
// under /img/posts when the photos live on local disk.
func (s *Server) openPhotoStore(ctx context.Context) (storage.PhotoStore, http.FileSystem, error) {
	if s.config.PhotoStore == config.PhotoMinio {
		m, err := storage.NewMinio(ctx,
			s.config.MinioEndpoint,
			s.config.MinioAccessKey,
			s.config.MinioSecretKey,
			s.config.MinioBucket,
			s.config.MinioUseSSL,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("server: connecting to minio: %w", err)
		}
		return m, nil, nil
	}

	d, err := storage.NewDisk(s.config.UploadDir)
	if err != nil {
		return nil, nil, fmt.Errorf("server: creating upload directory: %w", err)
	}
	return d, d.Files(), nil
}

// openLimiter uses Redis when an address is configured, so that several
// instances share one budget per client; otherwise it counts in memory.
func (s *Server) openLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	if s.config.RedisAddr != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, s.config.RedisAddr, s.config.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("server: connecting to redis: %w", err)
		}
		s.closers = append(s.closers, rdb.Close)
		return ratelimit.NewRedis(rdb, "ratelimit:auth", s.config.AuthRateLimit, s.config.AuthRateWindow), nil
	}

	mem := ratelimit.NewMemory(s.config.AuthRateLimit, s.config.AuthRateWindow)
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.config.AuthRateWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mem.Sweep()
			case <-stop:
				return
			}
		}
	}()
	s.closers = append(s.closers, func() error {
		close(stop)
		return nil
	})
	return mem, nil
}

// routes mounts every endpoint.
//
//	POST   /api/auth/signup     rate limited
//	POST   /api/auth/login      rate limited
//	GET    /api/posts           public, published only
//	GET    /api/posts/{postId}  public, counts a read
//	POST   /api/posts           auth
//	PUT    /api/posts/{postId}  auth, owner only
//	DELETE /api/posts/{postId}  auth, owner only
//	GET    /api/author          auth, the caller's posts
//	GET    /img/posts/*         cover photos, disk store only
//	GET    /healthz
func (s *Server) routes(st store, photos storage.PhotoStore, photoFiles http.FileSystem, limiter ratelimit.Limiter, tokens *auth.TokenService) {
	r := s.router

	// RealIP must precede RateLimit, which keys on RemoteAddr.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(handler.HandleNotFound(s.logger))
	r.MethodNotAllowed(handler.HandleMethodNotAllowed(s.logger))

	authService := service.NewAuthService(st.users, tokens, auth.NewPasswordService(), s.logger)
	postService := service.NewPostService(st.posts, photos, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	postHandler := handler.NewPostHandler(postService, s.config.MaxUploadBytes, s.logger)
	requireAuth := auth.RequireAuth(tokens, st.users, s.logger)

	r.Get("/healthz", handler.HandleHealth(st.db, s.logger))

	if photoFiles != nil {
		fileServer := http.FileServer(photoFiles)
		r.Handle("/img/posts/*", http.StripPrefix("/img/posts/", fileServer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter, s.logger))
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.Get("/posts", postHandler.HandleListPublished)
		r.Get("/posts/{postId}", postHandler.HandleGetPublished)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/author", postHandler.HandleListMine)
			r.Post("/posts", postHandler.HandleCreate)
			r.Put("/posts/{postId}", postHandler.HandleUpdate)
			r.Delete("/posts/{postId}", postHandler.HandleDelete)
		})
	})
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases every backend connection.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the backends.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing backends", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("db_driver", s.config.DBDriver),
			slog.String("photo_store", s.config.PhotoStore),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
