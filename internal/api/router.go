package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceauth/internal/api/handlers"
	"github.com/your-org/faceauth/internal/api/ws"
	"github.com/your-org/faceauth/internal/auth"
	"github.com/your-org/faceauth/internal/enroll"
	"github.com/your-org/faceauth/internal/queue"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/internal/verify"
	"github.com/your-org/faceauth/internal/vision"
)

type RouterConfig struct {
	DB       *storage.PostgresStore
	Images   *storage.ImageStore
	Producer *queue.Producer
	Hub      *ws.Hub
	Tokens   *auth.TokenService
	Enroller *enroll.Service
	Verifier *verify.Service
	Provider vision.Provider
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Images, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Account registration and login issue the tokens everything else
	// requires.
	authH := handlers.NewAuthHandler(cfg.DB, cfg.Tokens)
	r.POST("/v1/auth/register", authH.Register)
	r.POST("/v1/auth/login", authH.Login)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.Middleware(cfg.Tokens))

	v1.GET("/auth/me", authH.Me)

	// WebSocket event feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Identities & templates
	identityH := handlers.NewIdentityHandler(cfg.DB, cfg.Images, cfg.Enroller, cfg.Provider)
	v1.POST("/identities", identityH.Enroll)
	v1.GET("/identities", identityH.List)
	v1.GET("/identities/:id", identityH.Get)
	v1.DELETE("/identities/:id", identityH.Delete)
	v1.POST("/identities/:id/templates", identityH.AddTemplate)
	v1.GET("/identities/:id/templates", identityH.ListTemplates)

	// Verification
	verifyH := handlers.NewVerifyHandler(cfg.Verifier)
	v1.POST("/verify", verifyH.Verify)
	v1.POST("/verify/sessions", verifyH.StartSession)
	v1.POST("/verify/sessions/:id/frames", verifyH.SubmitFrame)
	v1.DELETE("/verify/sessions/:id", verifyH.CancelSession)

	// Audit events
	eventH := handlers.NewEventHandler(cfg.DB)
	v1.GET("/events", eventH.List)
	v1.GET("/stats", eventH.Stats)

	return r
}
