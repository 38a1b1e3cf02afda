package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-validation-svc/src/clients"
	"expense-validation-svc/src/internal/config"
	"expense-validation-svc/src/internal/dependency"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

type Server struct {
	cfg        *config.Configuration
	deps       *dependency.Manager
	httpServer *http.Server
}

func New(cfg *config.Configuration) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	mongodb, err := clients.NewMongoDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}

	redisClient, err := clients.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}

	rabbitMQ, err := clients.NewRabbitMQ(&cfg.Queue)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}

	if err := rabbitMQ.SetupExchange(); err != nil {
		log.WithError(err).Fatal("Failed to declare RabbitMQ exchange")
	}

	deps := dependency.NewDependencyManager(router, mongodb, redisClient, rabbitMQ, cfg)
	SetupRoutes(deps)

	return &Server{
		cfg:  cfg,
		deps: deps,
		httpServer: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		},
	}
}

// Start runs the HTTP server and the session sweeper until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Start() error {
	sweeperStop := make(chan struct{})
	go s.runSweeper(sweeperStop)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		close(sweeperStop)
		return err
	case sig := <-quit:
		log.Infof("Received signal %s, shutting down", sig)
	}

	close(sweeperStop)

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.App.Timeout)*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}

	s.closeClients()
	log.Info("Server stopped")
	return nil
}

// runSweeper drops expired sessions on a fixed interval. Sessions that were
// never cleaned up explicitly stop being joinable the moment they pass their
// deadline; the sweeper only reclaims the memory.
func (s *Server) runSweeper(stop <-chan struct{}) {
	interval := time.Duration(s.cfg.Session.CleanupIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.deps.Store.SweepExpired(time.Now()); removed > 0 {
				log.WithField("removed", removed).Info("Swept expired sessions")
			}
		case <-stop:
			return
		}
	}
}

func (s *Server) closeClients() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.deps.Mongodb.Close(ctx); err != nil {
		log.WithError(err).Error("Failed to close MongoDB connection")
	}
	if err := s.deps.Redis.Close(); err != nil {
		log.WithError(err).Error("Failed to close Redis connection")
	}
	if err := s.deps.RabbitMQ.Close(); err != nil {
		log.WithError(err).Error("Failed to close RabbitMQ connection")
	}
}
