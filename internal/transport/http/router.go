// Package httptransport wires the HTTP surface: the send endpoint, the
// provider webhook, inbox queries and the replay controls.
package httptransport

import (
	"context"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/config"
	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
	"github.com/mailgoatai/mailgoat-inbox/internal/health"
	"github.com/mailgoatai/mailgoat-inbox/internal/middleware"
	"github.com/mailgoatai/mailgoat-inbox/internal/monitoring"
	"github.com/mailgoatai/mailgoat-inbox/internal/security"
	"github.com/mailgoatai/mailgoat-inbox/internal/service"
	"github.com/mailgoatai/mailgoat-inbox/internal/websocket"
)

// Sender is the slice of the delivery client the send endpoint needs.
type Sender interface {
	Submit(ctx context.Context, req *domain.OutboundRequest) (*domain.SendAccepted, error)
	Lookup(ctx context.Context, messageID string) (*domain.ProviderMessage, error)
}

// Handler aggregates the HTTP handlers.
type Handler struct {
	sender       Sender
	ingest       *service.IngestService
	inbox        *service.InboxService
	replay       *service.ReplayService
	attachments  *security.AttachmentPolicy
	sendDeadline time.Duration
	logger       *zap.Logger
}

// RouterDependencies collects everything NewRouter needs.
type RouterDependencies struct {
	Config        *config.Config
	Sender        Sender
	IngestService *service.IngestService
	InboxService  *service.InboxService
	ReplayService *service.ReplayService
	WebSocketHub  *websocket.Hub
	Health        *health.HealthChecker
	Metrics       *monitoring.Metrics
	Logger        *zap.Logger
}

// NewRouter builds the gin engine with all routes and middleware attached.
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	mon := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(mon.PanicRecovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(mon.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			// Wildcard origins cannot carry credentials.
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		sender:       deps.Sender,
		ingest:       deps.IngestService,
		inbox:        deps.InboxService,
		replay:       deps.ReplayService,
		attachments:  security.NewAttachmentPolicy(),
		sendDeadline: deps.Config.Provider.SendDeadline,
		logger:       deps.Logger,
	}

	apiAuth := middleware.APITokenAuth(deps.Config.Auth.APIToken)

	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	v1 := router.Group("/v1")
	{
		// The webhook authenticates by HMAC, not by API token.
		v1.POST("/webhooks/provider", handler.receiveWebhook)

		authed := v1.Group("", apiAuth)
		{
			authed.POST("/send", handler.send)
			authed.GET("/messages/:id", handler.lookupProviderMessage)

			authed.GET("/inbox", handler.listInbox)
			authed.GET("/inbox/unprocessed", handler.listUnprocessed)
			authed.GET("/inbox/:id", handler.getMessage)
			authed.POST("/inbox/:id/read", handler.markRead)

			authed.POST("/replay", handler.runReplay)
		}

		if deps.WebSocketHub != nil {
			v1.GET("/inbox/watch", deps.WebSocketHub.HandleConnection)
		}
	}

	return router
}
