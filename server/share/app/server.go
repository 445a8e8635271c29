package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"share_server/server/common/auth"
	"share_server/server/common/infra/cache"
	"share_server/server/common/infra/db"
	"share_server/server/common/infra/mq"
	"share_server/server/common/infra/object"
	"share_server/server/common/metrics"
	"share_server/server/common/middleware"
	shareapi "share_server/server/share/api"
	"share_server/server/share/repository"
	shareservice "share_server/server/share/service"
)

type Server struct {
	HTTPServer *http.Server

	log       *zap.Logger
	db        *db.DB
	hub       *shareservice.Hub
	redis     *redis.Client
	publisher *mq.Publisher
}

// NewServer connects every backing service named in cfg and builds the HTTP
// server. Redis, LavinMQ and MinIO are optional; Postgres is not.
func NewServer(ctx context.Context, cfg Config, log *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{log: log}
	if err := s.init(ctx, cfg); err != nil {
		_ = s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context, cfg Config) error {
	if cfg.MigrateOnStart {
		if err := db.MigrateUp(ctx, cfg.PostgresDSN); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	s.db = &db.DB{Pool: pool}

	tokens, err := auth.NewService(auth.Options{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Duration(cfg.JWTTTLMinutes) * time.Minute,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	s.hub = shareservice.NewHub(s.log)
	var counts shareservice.CountCache = shareservice.NoopCountCache{}
	if cfg.RedisAddr != "" {
		s.redis = cache.NewClient(cache.ClientOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := cache.Ping(ctx, s.redis); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		counts = cache.NewInboxCounts(s.redis, cfg.InboxCountTTL)
		s.hub.UseRedis(s.redis)
		if err := s.hub.StartRedisSubscriber(context.Background()); err != nil {
			return fmt.Errorf("subscribe share events: %w", err)
		}
	}

	var events shareservice.EventPublisher = shareservice.NoopPublisher{}
	if cfg.LavinMQURL != "" {
		conn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			return fmt.Errorf("connect lavinmq: %w", err)
		}
		s.publisher, err = mq.NewPublisher(conn)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("open lavinmq channel: %w", err)
		}
		events = s.publisher
	}

	mailboxOpts := shareservice.MailboxOptions{
		Cache:      counts,
		SpillBytes: cfg.SpillBytes,
		Events:     events,
		Notifier:   s.hub,
		Metrics:    m,
		Log:        s.log,
	}
	if cfg.MinIOEndpoint != "" {
		client, err := object.NewClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
		if err != nil {
			return fmt.Errorf("minio client: %w", err)
		}
		if err := object.EnsureBucket(ctx, client, cfg.MinIOBucket); err != nil {
			return fmt.Errorf("minio bucket: %w", err)
		}
		mailboxOpts.Content = object.NewContentStore(client, cfg.MinIOBucket)
	}

	users := repository.NewUserRepository(s.db)
	contacts := repository.NewContactRepository(s.db)
	shares := repository.NewShareRepository(s.db)

	h := shareapi.NewHandler(shareapi.Deps{
		Identity: shareservice.NewIdentityService(users, events, s.log, cfg.InviteBaseURL),
		Contacts: shareservice.NewContactService(contacts, events, s.log),
		Mailbox:  shareservice.NewMailboxService(shares, mailboxOpts),
		Tokens:   tokens,
		Hub:      s.hub,
		DB:       s.db,
		Metrics:  m,
		Gatherer: reg,
		Log:      s.log,
	})

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(s.log),
		middleware.Recovery(s.log),
		middleware.Metrics(m),
	)
	h.RegisterRoutes(r)

	s.HTTPServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.HTTPServer != nil {
		err = s.HTTPServer.Shutdown(ctx)
	}
	return errors.Join(err, s.close())
}

func (s *Server) close() error {
	var errList []error
	if s.hub != nil {
		s.hub.StopRedisSubscriber()
	}
	if s.publisher != nil {
		errList = append(errList, s.publisher.Close())
	}
	if s.redis != nil {
		errList = append(errList, s.redis.Close())
	}
	if s.db != nil {
		s.db.Close()
	}
	return errors.Join(errList...)
}
