package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cat-map-backend/internal/cache"
	"cat-map-backend/internal/config"
	"cat-map-backend/internal/discovery"
	"cat-map-backend/internal/events"
	"cat-map-backend/internal/handlers"
	"cat-map-backend/internal/identity"
	"cat-map-backend/internal/imageproc"
	"cat-map-backend/internal/push"
	"cat-map-backend/internal/repository"
	"cat-map-backend/internal/repository/memory"
	"cat-map-backend/internal/services"
	"cat-map-backend/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// repositories groups the persistence layer chosen at startup
type repositories struct {
	photos   services.PhotoRepository
	cats     services.CatRepository
	comments services.CommentRepository
	threads  services.ThreadRepository
	users    services.UserRepository
	cascades services.CascadeRepository
	orphans  services.OrphanRepository
	close    func()
}

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	repos, err := openRepositories(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer repos.close()

	store, err := openObjectStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create object store")
	}

	var denylist services.TokenDenylist = cache.NewMemoryDenylist()
	var snapshots services.SnapshotStore
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer client.Close()
		denylist = cache.NewRedisDenylist(client, "catmap:revoked:")
		snapshots = cache.NewSnapshotStore(client, cfg.Redis.SnapshotKey, cfg.Redis.SnapshotTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")
	} else {
		log.Warn().Msg("Redis address is empty, using in-memory token denylist")
	}

	publisher, err := events.NewPublisher(cfg.RabbitMQ.URI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer publisher.Close()

	var notifier services.Notifier = push.Nop{}
	if cfg.APNs.Enabled {
		client, err := push.NewClient(push.Options{
			KeyPath:         cfg.APNs.KeyPath,
			KeyID:           cfg.APNs.KeyID,
			TeamID:          cfg.APNs.TeamID,
			CertificatePath: cfg.APNs.CertificatePath,
			CertificatePass: cfg.APNs.CertificatePass,
			Topic:           cfg.APNs.Topic,
			Production:      cfg.APNs.Production,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		notifier = client
	}

	google := identity.NewGoogle(identity.GoogleOptions{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		Scopes:       cfg.OAuth.Scopes,
	})

	// Initialize services
	authz := services.RoleAuthorizer{}
	media := services.NewMedia(store, imageproc.NewCompressor(cfg.Upload.Workers), repos.orphans)

	photoStore := services.NewPhotoStore(repos.photos, repos.threads, repos.cascades, media, authz, publisher)
	if snapshots != nil {
		photoStore.UseSnapshots(snapshots)
	}
	userService := services.NewUserService(
		repos.users, repos.cascades, google, denylist, media, photoStore, publisher,
		cfg.JWT.Secret, cfg.Admin.Emails,
	)
	catService := services.NewCatService(repos.cats, repos.photos, repos.cascades, photoStore, media, authz, publisher)
	timelineService := services.NewTimelineService(
		repos.comments, repos.threads, repos.photos, repos.cats, repos.users, repos.cascades,
		photoStore, media, authz, publisher, notifier,
	)
	uploadFlow := services.NewUploadFlow(photoStore, cfg.Upload.DraftTTL)
	sweeper := services.NewOrphanSweeper(repos.orphans, store, cfg.Upload.SweepInterval, cfg.Upload.SweepBatch, cfg.Upload.SweepMaxAttempt)

	wsHub := services.NewWSHub(photoStore)
	photoStore.OnChange(wsHub.Broadcast)
	uploadFlow.OnPlacement(wsHub.NotifyPlacement)

	if err := photoStore.Warm(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to warm photo cache")
	}
	if _, err := photoStore.FetchAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to load photos")
	}

	go sweeper.Run(ctx)
	go uploadFlow.Run(ctx, time.Minute)

	router := handlers.NewRouter(handlers.Services{
		Users:          userService,
		Photos:         photoStore,
		Cats:           catService,
		Timeline:       timelineService,
		Uploads:        uploadFlow,
		Hub:            wsHub,
		Authz:          authz,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	var registry *discovery.ServiceRegistry
	if cfg.Consul.Enabled {
		registry, err = discovery.NewServiceRegistry(discovery.Options{
			ConsulAddress:  cfg.Consul.Address,
			ServiceName:    cfg.Consul.ServiceName,
			ServiceAddress: cfg.Consul.ServiceAddress,
			ServicePort:    cfg.Server.Port,
			Tags:           []string{"http", "api"},
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create service registry")
		}
		if err := registry.Register(); err != nil {
			log.Error().Err(err).Msg("Failed to register service")
		}
	}

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if registry != nil {
		if err := registry.Deregister(); err != nil {
			log.Error().Err(err).Msg("Failed to deregister service")
		}
	}

	// Stop background workers
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Close WebSocket connections
	wsHub.Close()

	// Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openRepositories connects to PostgreSQL, or keeps everything in memory
// when no database host is configured
func openRepositories(ctx context.Context, cfg config.DatabaseConfig) (*repositories, error) {
	if cfg.Host == "" {
		log.Warn().Msg("Database host is empty, using in-memory repositories")
		db := memory.New()
		return &repositories{
			photos:   db.Photos(),
			cats:     db.Cats(),
			comments: db.Comments(),
			threads:  db.Threads(),
			users:    db.Users(),
			cascades: db.Cascades(),
			orphans:  db.Orphans(),
			close:    func() {},
		}, nil
	}

	pool, err := repository.Connect(ctx, cfg.DSN(), cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	return &repositories{
		photos:   repository.NewPhotoRepository(pool),
		cats:     repository.NewCatRepository(pool),
		comments: repository.NewCommentRepository(pool),
		threads:  repository.NewThreadRepository(pool),
		users:    repository.NewUserRepository(pool),
		cascades: repository.NewCascadeRepository(pool),
		orphans:  repository.NewOrphanRepository(pool),
		close:    pool.Close,
	}, nil
}

// openObjectStore connects to the bucket, or keeps images in memory when
// no bucket is configured
func openObjectStore(ctx context.Context, cfg config.StorageConfig) (services.ObjectStore, error) {
	if cfg.Bucket == "" {
		log.Warn().Msg("Storage bucket is empty, using in-memory object store")
		return storage.NewMemoryStore("memory://catmap"), nil
	}
	return storage.NewS3Store(ctx, storage.S3Options{
		Region:        cfg.Region,
		Bucket:        cfg.Bucket,
		AccessKey:     cfg.AccessKey,
		SecretKey:     cfg.SecretKey,
		Endpoint:      cfg.Endpoint,
		PublicBaseURL: cfg.PublicBaseURL,
	})
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
