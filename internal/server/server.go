package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/tenantcart/apiserver/config"
	"github.com/tenantcart/apiserver/internal/db"
	"github.com/tenantcart/apiserver/internal/handlers"
	"github.com/tenantcart/apiserver/internal/idempotency"
	"github.com/tenantcart/apiserver/internal/jobs"
	"github.com/tenantcart/apiserver/internal/mq"
	"github.com/tenantcart/apiserver/internal/services"
	"github.com/tenantcart/apiserver/internal/storage"
	"github.com/tenantcart/apiserver/internal/store"
)

const catalogRefreshJob = "catalog-refresh"

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	scheduler  *jobs.Scheduler
	closers    []func() error
}

// New wires the record store, the optional infrastructure selected by cfg and
// the HTTP routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{}
	if err := s.build(ctx, cfg); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, cfg config.Config) error {
	accountStore, closeStore, err := OpenAccountStore(ctx, cfg)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, closeStore)

	guard, err := s.openGuard(ctx, cfg)
	if err != nil {
		return err
	}

	orderOpts := []services.OrderServiceOption{services.WithIdempotencyGuard(guard)}
	events, err := mq.Open(ctx, cfg)
	if err != nil {
		return err
	}
	if events != nil {
		s.closers = append(s.closers, events.Close)
		orderOpts = append(orderOpts, services.WithEventPublisher(events, cfg.OrderEvents))
	}

	catalog, err := s.openCatalog(ctx, cfg)
	if err != nil {
		return err
	}

	accounts := services.NewAccountService(accountStore, cfg.StoreTimeout)
	orders := services.NewOrderService(accountStore, cfg.StoreTimeout, orderOpts...)
	auth := handlers.NewAuthenticator(cfg.Auth)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(corsOptions(cfg.CORSOrigins)),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		handlers.APIRouter(r, accounts, orders, catalog, auth)
	})
	if cfg.StaticDir != "" {
		router.Handle("/*", handlers.SPA(cfg.StaticDir))
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 4000
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// OpenAccountStore builds the record store selected by cfg.StoreBackend. The
// returned close func is never nil.
func OpenAccountStore(ctx context.Context, cfg config.Config) (store.AccountStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreBackend {
	case config.StoreBackendDynamoDB, "":
		client, err := db.OpenDynamoDB(ctx, cfg.DynamoDB, cfg.StoreTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("dynamodb: %w", err)
		}
		return store.NewDynamoAccountStore(client, cfg.DynamoDB.TableName), noop, nil
	case config.StoreBackendPostgres:
		conn, err := db.OpenPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return store.NewPostgresAccountStore(conn), conn.Close, nil
	case config.StoreBackendMemory:
		log.Printf("using in-memory account store; data is lost on restart")
		return store.NewMemoryAccountStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (s *Server) openGuard(ctx context.Context, cfg config.Config) (services.IdempotencyGuard, error) {
	if cfg.Redis.Addr == "" {
		return idempotency.NewMemoryGuard(cfg.IdempotencyTTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	s.closers = append(s.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return idempotency.NewRedisGuard(client, cfg.IdempotencyTTL)
}

func (s *Server) openCatalog(ctx context.Context, cfg config.Config) (*services.CatalogService, error) {
	objects, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if objects == nil {
		return services.NewCatalogService(nil, cfg.Catalog.ObjectKey)
	}

	catalog, err := services.NewCatalogService(objects, cfg.Catalog.ObjectKey)
	if err != nil {
		return nil, err
	}
	if cfg.Catalog.Refresh <= 0 {
		if err := catalog.Refresh(ctx); err != nil {
			log.Printf("catalog load from %s/%s failed, serving built-in catalog: %v", objects.Bucket(), cfg.Catalog.ObjectKey, err)
		}
		return catalog, nil
	}

	scheduler, err := jobs.NewScheduler(cfg.StoreTimeout)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if err := scheduler.AddRefresh(catalogRefreshJob, cfg.Catalog.Refresh, catalog); err != nil {
		_ = scheduler.Stop()
		return nil, err
	}
	s.scheduler = scheduler
	return catalog, nil
}

// corsOptions allows the configured origins. An entry of the form
// "*.example.com" matches any origin whose host ends in ".example.com".
func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(origins, origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, entry := range allowed {
		if entry == "*" || strings.EqualFold(entry, origin) {
			return true
		}
		if suffix, ok := strings.CutPrefix(entry, "*."); ok {
			u, err := url.Parse(origin)
			if err != nil {
				continue
			}
			host := strings.ToLower(u.Hostname())
			if strings.HasSuffix(host, "."+strings.ToLower(suffix)) {
				return true
			}
		}
	}
	return false
}

// Handler returns the root HTTP handler, for use outside ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the background jobs and then the HTTP server.
func (s *Server) Start() error {
	s.StartJobs()
	return s.httpServer.ListenAndServe()
}

// StartJobs starts the background jobs without serving HTTP.
func (s *Server) StartJobs() {
	if s.scheduler != nil {
		s.scheduler.Start()
	}
}

// Shutdown stops background jobs, drains in-flight requests and releases
// backend connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.close()
	return err
}

func (s *Server) close() {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			log.Printf("stop scheduler: %v", err)
		}
		s.scheduler = nil
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Printf("close backend: %v", err)
		}
	}
	s.closers = nil
}
