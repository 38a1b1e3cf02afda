package dependency

import (
	"time"

	"expense-validation-svc/src/clients"
	"expense-validation-svc/src/internal/analyzer"
	"expense-validation-svc/src/internal/cache"
	"expense-validation-svc/src/internal/config"
	"expense-validation-svc/src/internal/events"
	"expense-validation-svc/src/internal/qr"
	"expense-validation-svc/src/internal/validation"
	"expense-validation-svc/src/internal/ws"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router            *gin.Engine
	Config            *config.Configuration
	Mongodb           *clients.MongoDB
	Redis             *clients.RedisClient
	RabbitMQ          *clients.RabbitMQ
	Store             *validation.Store
	Hub               *validation.Hub
	WsServer          *ws.Server
	ValidationService validation.Service
	ValidationHandler validation.Handler
	AuditRepository   validation.AuditRepository
}

func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	cfg *config.Configuration) *Manager {
	store := validation.NewStore(time.Duration(cfg.Session.ExpirationMinutes) * time.Minute)

	// The websocket server and the hub reference each other: the server
	// dispatches inbound actions to the hub, the hub pushes events back
	// through the server.
	wsServer := ws.NewServer(cfg)
	hub := validation.NewHub(store, wsServer)
	wsServer.SetHub(hub)

	claudeAnalyzer := analyzer.NewClaudeAnalyzer(cfg)
	verdictCache := cache.NewVerdictCache(redisClient.Client, cfg)
	publisher := events.NewPublisher(rabbitMQ.Channel, cfg)
	auditRepo := validation.NewAuditRepository(mongodb, cfg.Database.ValidationCollection)

	validationService := validation.NewValidationService(store, hub, claudeAnalyzer,
		verdictCache, publisher, auditRepo)
	validationHandler := validation.NewHandler(cfg, validationService, store, qr.NewRenderer(cfg))

	return &Manager{
		Router:            router,
		Config:            cfg,
		Mongodb:           mongodb,
		Redis:             redisClient,
		RabbitMQ:          rabbitMQ,
		Store:             store,
		Hub:               hub,
		WsServer:          wsServer,
		ValidationService: validationService,
		ValidationHandler: validationHandler,
		AuditRepository:   auditRepo,
	}
}
