package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pallavi191/codecraft-sub001/internal/api"
	"github.com/pallavi191/codecraft-sub001/internal/archive"
	"github.com/pallavi191/codecraft-sub001/internal/event"
	"github.com/pallavi191/codecraft-sub001/internal/match"
	"github.com/pallavi191/codecraft-sub001/internal/question"
	"github.com/pallavi191/codecraft-sub001/internal/rating"
	"github.com/pallavi191/codecraft-sub001/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Auth struct {
		Secret string
	}

	Redis struct {
		Rating struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		// Question and Archive may be left unconfigured (empty Addr):
		// the server then deals from the compiled-in bank and skips
		// match archiving. Meant for local runs and tests only.
		Question struct {
			Addr string
			User string
			Pass string
			Name string
		}

		Archive struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			rating redis.UniversalClient
		}

		postgres struct {
			question *pgxpool.Pool
			archive  *pgxpool.Pool
		}
	}

	service struct {
		match   *match.Service
		rating  *rating.Service
		archive *archive.Service
	}

	hub  *api.Hub
	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	telemetry.ObserveEngine(s.eb)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Rating.Addrs,
		Password: s.c.Redis.Rating.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("rating: %w", err)
	}

	s.infra.redis.rating = r
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

	if q := s.c.Postgres.Question; q.Addr != "" {
		s.infra.postgres.question, err = connect(q.Addr, q.User, q.Pass, q.Name)
		if err != nil {
			return fmt.Errorf("question: %w", err)
		}
	}

	if a := s.c.Postgres.Archive; a.Addr != "" {
		s.infra.postgres.archive, err = connect(a.Addr, a.User, a.Pass, a.Name)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	return nil
}

func (s *Server) initService() {
	s.service.rating = rating.NewService(rating.Config{
		Redis:  s.infra.redis.rating,
		Prefix: s.c.Redis.Rating.Prefix,
	})

	var bank question.Bank
	if s.infra.postgres.question != nil {
		bank = question.NewRepository(s.infra.postgres.question)
	} else {
		slog.Warn("server: question db not configured, using compiled-in bank")
		bank = question.NewStaticBank(nil, time.Now().UnixNano())
	}

	s.hub = api.NewHub(api.DefaultHubConfig())

	s.service.match = match.NewService(match.Config{
		Bank:     bank,
		Rating:   s.service.rating,
		EventBus: s.eb,
		Notifier: s.hub,
	})
	s.hub.SetEngine(s.service.match)

	if s.infra.postgres.archive != nil {
		s.service.archive = archive.NewService(archive.Config{
			DB:       s.infra.postgres.archive,
			EventBus: s.eb,
		})
	} else {
		slog.Warn("server: archive db not configured, finished matches are not persisted")
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine: s.service.match,
		Rating: s.service.rating,
		Auth:   api.NewHMACAuthenticator(s.c.Auth.Secret),
		Hub:    s.hub,
	}).Register(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
