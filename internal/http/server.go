package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/config"
	"github.com/Eiffelllll/Activiti/internal/event"
	"github.com/Eiffelllll/Activiti/internal/http/middleware"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/metrics"
	"github.com/Eiffelllll/Activiti/internal/repository"
	"github.com/Eiffelllll/Activiti/internal/service/correlation"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct{ e *echo.Echo }

// Deps are the collaborators behind the routes.
type Deps struct {
	CatchPoints   CatchPoints
	Reports       repository.CHWaitingRepository
	Notifications NotificationSwitch
	Redis         *redis.Client
}

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, behaviors correlation.Behaviors) *Server {
	// repos (MySQL)
	subscriptionsRepo := repository.NewSubscriptionsRepository(mysqlDB)
	executionsRepo := repository.NewExecutionsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (ClickHouse)
	chWaitingRepo := repository.NewCHWaitingRepository(clickhouseDB)

	// services
	notifications := event.NewOutboxDispatcher(outboxRepo, cfg.Kafka.WaitingTopic, cfg.Notifications.Enabled)
	executor := command.NewExecutor(mysqlDB, subscriptionsRepo, executionsRepo, notifications)
	svc := correlation.New(executor, executionsRepo, subscriptionsRepo, behaviors)

	return newServer(cfg, Deps{
		CatchPoints:   svc,
		Reports:       chWaitingRepo,
		Notifications: notifications,
		Redis:         rds,
	})
}

func newServer(cfg config.Config, d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(echoLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.HTTP.APIKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:client:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/executions/:id/enter", enterHandler(d.CatchPoints))
	v1.POST("/executions/:id/messages/:name", deliverHandler(d.CatchPoints))
	v1.POST("/executions/:id/gateway-cancel", gatewayCancelHandler(d.CatchPoints))
	v1.GET("/executions/:id/subscriptions", subscriptionsHandler(d.CatchPoints))
	v1.POST("/messages/:name", correlateHandler(d.CatchPoints))
	if d.Reports != nil {
		v1.GET("/reports/waiting", listWaitingHandler(d.Reports))
	}
	if d.Notifications != nil {
		v1.GET("/admin/notifications", getNotificationsHandler(d.Notifications))
		v1.PUT("/admin/notifications", putNotificationsHandler(d.Notifications))
	}

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func echoLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
