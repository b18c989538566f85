package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/victornm/lifequiz/internal/api"
	"github.com/victornm/lifequiz/internal/event"
	"github.com/victornm/lifequiz/internal/gateway"
	"github.com/victornm/lifequiz/internal/lives"
	"github.com/victornm/lifequiz/internal/progress"
	"github.com/victornm/lifequiz/internal/quiz"
	"github.com/victornm/lifequiz/internal/streak"
	"github.com/victornm/lifequiz/internal/telemetry"
)

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	Learner struct {
		ID       string
		TimeZone string
	}

	HTTP struct {
		Port int32
	}

	// Admin serves metrics and pprof.
	Admin struct {
		Port int32
	}

	Gateway struct {
		Addr    string
		Timeout time.Duration
	}

	// Store selects where progress is kept: redis or postgres.
	Store struct {
		Driver string
	}

	Redis struct {
		Lives  RedisConfig
		Store  RedisConfig
		Pubsub RedisConfig
	}

	Postgres struct {
		Progress struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *prometheus.Registry

	infra struct {
		redis struct {
			lives  redis.UniversalClient
			store  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres struct {
			progress *pgxpool.Pool
		}

		gateway *grpc.ClientConn
	}

	service struct {
		progress   *progress.Service
		streak     *streak.Accountant
		controller *quiz.Controller
	}

	api   *api.API
	http  *http.Server
	admin *http.Server
}

func Init(c Config) (*Server, error) {
	if c.Learner.ID == "" {
		return nil, fmt.Errorf("server: learner id is required")
	}

	s := &Server{c: c}

	s.eb = event.NewBus()
	s.metrics = telemetry.NewRegistry()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if s.c.Store.Driver == StorePostgres {
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	if err := s.initGateway(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, rc RedisConfig) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    rc.Addrs,
			Password: rc.Pass,
		})

		if err := telemetry.MonitorRedis(name, r); err != nil {
			return nil, err
		}

		ping := func() error { return r.Ping(ctx).Err() }
		if err := backoff.Retry(ping, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.lives, err = connect("lives", s.c.Redis.Lives)
	if err != nil {
		return fmt.Errorf("lives: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	if s.c.Store.Driver == StoreRedis || s.c.Store.Driver == "" {
		s.infra.redis.store, err = connect("store", s.c.Redis.Store)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(addr, user, pass, name string) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	p := s.c.Postgres.Progress
	s.infra.postgres.progress, err = connect(p.Addr, p.User, p.Pass, p.Name)
	if err != nil {
		return fmt.Errorf("progress: %w", err)
	}

	return nil
}

func (s *Server) initGateway() (err error) {
	s.infra.gateway, err = grpc.NewClient(s.c.Gateway.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		telemetry.GRPCClientInterceptor(),
	)
	return err
}

func (s *Server) initService() error {
	loc := time.Local
	if s.c.Learner.TimeZone != "" {
		var err error
		if loc, err = time.LoadLocation(s.c.Learner.TimeZone); err != nil {
			return fmt.Errorf("time zone %q: %w", s.c.Learner.TimeZone, err)
		}
	}

	var store progress.Store
	switch s.c.Store.Driver {
	case StorePostgres:
		ps := progress.NewPostgresStore(s.infra.postgres.progress)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ps.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate progress: %w", err)
		}
		store = ps
	case StoreRedis, "":
		store = progress.NewRedisStore(s.infra.redis.store, s.c.Redis.Store.Prefix)
	default:
		return fmt.Errorf("unknown store driver %q", s.c.Store.Driver)
	}

	s.service.progress = progress.NewService(progress.Config{Store: store})
	s.service.streak = streak.NewAccountant(streak.Config{Store: store, Location: loc})

	s.service.controller = quiz.NewController(quiz.Config{
		LearnerID: s.c.Learner.ID,
		Gateway: gateway.NewClient(gateway.Config{
			Conn:      s.infra.gateway,
			LearnerID: s.c.Learner.ID,
			Timeout:   s.c.Gateway.Timeout,
		}),
		Progress: s.service.progress,
		Streaks:  s.service.streak,
		Lives:    lives.NewRedisSource(s.infra.redis.lives, s.c.Redis.Lives.Prefix),
		Events:   s.eb,
		Metrics:  telemetry.NewMetrics(s.metrics),
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())

	s.api = api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Controller:   s.service.controller,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		LearnerID:    s.c.Learner.ID,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}

	admin := gin.New()
	admin.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	pprof.Register(admin, "/debug/pprof")
	admin.Use(gin.Recovery())

	s.admin = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.Admin.Port),
		Handler:           admin,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	serve := func(name string, srv *http.Server) func() error {
		return func() error {
			slog.InfoContext(ctx, fmt.Sprintf("server: %s listening on %s", name, srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		}
	}

	var eg errgroup.Group
	eg.Go(serve("HTTP", s.http))
	eg.Go(serve("admin", s.admin))

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.service.controller.Close()
	s.api.Close()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}
	if err := s.admin.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown admin failed", "error", err)
	}

	s.eb.Stop()

	if err := s.infra.gateway.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close gateway connection failed", "error", err)
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.lives, s.infra.redis.store, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}
	if s.infra.postgres.progress != nil {
		s.infra.postgres.progress.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
