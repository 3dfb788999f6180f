package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moodfm/cache"
	"moodfm/config"
	"moodfm/core/auth"
	"moodfm/core/backend"
	"moodfm/logger"
	"moodfm/metrics"
	"moodfm/repository"
	"moodfm/storage"
	"moodfm/web"

	"github.com/gorilla/mux"
)

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(h.metrics.Middleware(routeName))
	router.Use(h.SessionMiddleware)

	// Pages
	router.HandleFunc("/", h.IndexHandler).Methods(http.MethodGet)
	router.HandleFunc("/create", h.CreatePageHandler).Methods(http.MethodGet)
	router.HandleFunc("/create", h.CreateHandler).Methods(http.MethodPost)
	router.HandleFunc("/image-create", h.ImageCreatePageHandler).Methods(http.MethodGet)
	router.HandleFunc("/detail-input", h.DetailInputPageHandler).Methods(http.MethodGet)
	router.HandleFunc("/playlist", h.PlaylistHandler).Methods(http.MethodGet)
	router.HandleFunc("/playlist-main", h.PlaylistMainHandler).Methods(http.MethodGet)

	// Generation
	router.HandleFunc("/generate-music", h.GenerateMusicHandler).Methods(http.MethodPost)
	router.HandleFunc("/generate-music-with-detail", h.GenerateWithDetailHandler).Methods(http.MethodPost)
	router.HandleFunc("/generate-music-from-image", h.GenerateFromImageHandler).Methods(http.MethodPost)
	router.HandleFunc("/generate-music-from-video", h.GenerateFromVideoHandler).Methods(http.MethodPost)
	router.HandleFunc("/upload", h.UploadHandler).Methods(http.MethodPost)

	// Playback and management
	router.HandleFunc("/play/{id}", h.PlayHandler).Methods(http.MethodGet)
	router.HandleFunc("/download/{id}", h.DownloadHandler).Methods(http.MethodGet)
	router.HandleFunc("/media/{name}", h.MediaHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/delete/{id}", h.DeleteHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/music/{id}/like", h.LikeHandler).Methods(http.MethodPost, http.MethodDelete)

	// Identity
	router.HandleFunc("/login", h.LoginHandler).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/auth/google/callback", h.GoogleCallbackHandler).Methods(http.MethodGet)
	router.HandleFunc("/logout", h.LogoutHandler).Methods(http.MethodGet)

	// Operations
	router.HandleFunc("/healthz", h.HealthzHandler).Methods(http.MethodGet)
	router.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", web.StaticHandler(h.cfg.StaticDir)))

	return router
}

// Services are the long-lived collaborators built from configuration.
type Services struct {
	Repo    repository.MusicRepository
	Media   storage.MediaStore
	Uploads storage.MediaStore
	Cache   cache.Cache
	Gateway *backend.Client
}

// NewMediaStore returns the configured store for generated music.
func NewMediaStore(ctx context.Context, cfg *config.Config) (storage.MediaStore, error) {
	switch cfg.MediaBackend {
	case "", "local":
		return storage.NewLocalStore(cfg.MediaDir)
	case "minio":
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown MEDIA_BACKEND %q", cfg.MediaBackend)
	}
}

// NewCache connects to Redis when configured. A connection failure is logged
// and the service runs without a cache.
func NewCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NopCache{}
	}
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("[Cache] Redis unavailable, continuing without cache", logger.ErrorField(err))
		return cache.NopCache{}
	}
	logger.Info("[Cache] connected to Redis", logger.String("addr", cfg.RedisAddr))
	return c
}

// NewGateway builds the backend client with the configured timeouts.
func NewGateway(cfg *config.Config, c cache.Cache) *backend.Client {
	return backend.NewClient(cfg.BackendURL, nil, backend.Timeouts{
		Health:        cfg.HealthTimeout,
		Auth:          cfg.AuthTimeout,
		Request:       cfg.RequestTimeout,
		Generate:      cfg.GenerateTimeout,
		MediaGenerate: cfg.MediaGenerateTimeout,
	}).WithCache(c, cfg.HealthCacheTTL, cfg.PlaylistCacheTTL)
}

// NewServices wires the stores, cache and backend client.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	media, err := NewMediaStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open media store: %w", err)
	}
	uploads, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open uploads directory: %w", err)
	}
	c := NewCache(ctx, cfg)
	return &Services{
		Repo:    repository.NewJSONMusicRepository(cfg.MusicDataFile, media, cfg.MediaPlaceholder),
		Media:   media,
		Uploads: uploads,
		Cache:   c,
		Gateway: NewGateway(cfg, c),
	}, nil
}

// Start initializes and starts the HTTP server, and shuts it down gracefully
// on SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	// directories
	ensureDirExists(cfg.StaticDir)
	ensureDirExists(cfg.UploadDir)
	if cfg.MediaBackend == "" || cfg.MediaBackend == "local" {
		ensureDirExists(cfg.MediaDir)
	}

	// stores, cache and backend client
	svc, err := NewServices(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer svc.Cache.Close()

	// sessions, pages and identity provider
	if cfg.SecretKey == "" {
		logger.Warn("[Server] SECRET_KEY is not set, sessions will not survive a restart")
	}
	sessions, err := auth.NewSessionManager(cfg.SecretKey, cfg.CookieSecure)
	if err != nil {
		return err
	}
	pages, err := web.NewRenderer()
	if err != nil {
		return err
	}
	provider := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		DiscoveryURL: cfg.GoogleDiscoveryURL,
		RedirectURI:  cfg.OAuthRedirectURI,
		Timeout:      cfg.AuthTimeout,
	})

	apiHandler := NewAPIHandler(Deps{
		Config:   cfg,
		Repo:     svc.Repo,
		Gateway:  svc.Gateway,
		Media:    svc.Media,
		Uploads:  svc.Uploads,
		Sessions: sessions,
		Identity: provider,
		Metrics:  metrics.NewRecorder(),
		Pages:    pages,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      NewRouter(apiHandler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.MediaGenerateTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// serve until a signal arrives
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] starting",
			logger.String("addr", cfg.ListenAddr),
			logger.String("backend", cfg.BackendURL),
			logger.String("media_backend", cfg.MediaBackend),
			logger.String("data_file", cfg.MusicDataFile))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-stop:
	}
	logger.Info("[Server] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("[Server] stopped")
	return nil
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("[Server] creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Fatal("[Server] failed to create directory", logger.String("path", path), logger.ErrorField(err))
		}
	} else if err != nil {
		logger.Fatal("[Server] failed to check directory", logger.String("path", path), logger.ErrorField(err))
	}
}
