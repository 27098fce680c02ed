package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	commonauth "hospital_locker/server/common/auth"
	"hospital_locker/server/common/infra/cache"
	"hospital_locker/server/common/infra/db"
	"hospital_locker/server/common/infra/mq"
	"hospital_locker/server/common/infra/object"
	commonlog "hospital_locker/server/common/log"
	lockerapi "hospital_locker/server/locker/api"
	"hospital_locker/server/locker/doccache"
	lockerservice "hospital_locker/server/locker/service"
)

type Server struct {
	HTTPServer *http.Server
	Service    *lockerservice.LockerService

	closers []func()
}

func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	s := &Server{}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = store.Close() })

	docCache := doccache.New(store)
	if cfg.CachePassphrase != "" {
		docCache, err = doccache.NewSealed(store, cfg.CachePassphrase, cfg.CacheSalt)
		if err != nil {
			s.close()
			return nil, err
		}
	}

	tokens := commonauth.NewService(cfg.TokenSecret, 0)
	identity := lockerservice.NewIdentityClient(cfg.IdentityURL, cfg.IdentityAPIKey, cfg.HTTPTimeout, tokens)
	api := lockerservice.NewHTTPLockerAPI(cfg.HTTPTimeout, cfg.APIBaseURLs...)
	hub := lockerservice.NewStatusHub()

	svc := lockerservice.NewLockerService(lockerservice.NewSession(), identity, api, docCache)
	svc.UseStatus(hub)

	if cfg.UseMQ {
		conn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connect lavinmq: %w", err)
		}
		publisher, err := lockerservice.NewAMQPPublisher(conn)
		if err != nil {
			_ = conn.Close()
			s.close()
			return nil, fmt.Errorf("declare %s exchange: %w", lockerservice.EventsExchange, err)
		}
		svc.UseEvents(publisher)
		s.closers = append(s.closers, publisher.Close)
	}

	h := lockerapi.NewHandler(svc, hub, cfg.UIOrigins)

	if strings.EqualFold(cfg.Env, "prod") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.UIOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(corsConfig))
	h.RegisterRoutes(r)

	s.Service = svc
	s.HTTPServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	commonlog.Infof("locker gateway ready cache_backend=%s sealed=%t mq=%t api=%s api_endpoints=%s", cfg.CacheBackend, cfg.CachePassphrase != "", cfg.UseMQ, api.Endpoint(), strings.Join(cfg.APIBaseURLs, ","))
	return s, nil
}

func openStore(ctx context.Context, cfg Config) (doccache.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.CacheBackend)) {
	case "", CacheMemory:
		return doccache.NewMemoryStore(), nil
	case CacheRedis:
		client := cache.NewClient(cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := cache.Ping(ctx, client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return doccache.NewRedisStore(client), nil
	case CachePostgres:
		pool, err := db.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store, err := doccache.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case CacheMinIO:
		client, err := object.NewClient(object.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio: %w", err)
		}
		if err := object.EnsureBucket(ctx, client, cfg.MinIOBucket); err != nil {
			return nil, fmt.Errorf("ensure minio bucket: %w", err)
		}
		return doccache.NewMinIOStore(client, cfg.MinIOBucket), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.close()
	return err
}
