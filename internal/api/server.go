package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"nexus-backend/internal/automod"
	"nexus-backend/internal/broadcast"
	"nexus-backend/internal/chat"
	"nexus-backend/internal/config"
	"nexus-backend/internal/db"
	"nexus-backend/internal/identity"
	"nexus-backend/internal/ledger"
	"nexus-backend/internal/moderation"
	"nexus-backend/internal/profile"
	"nexus-backend/internal/redis"
	"nexus-backend/internal/security"
	"nexus-backend/internal/session"
	"nexus-backend/internal/store"
)

type Server struct {
	log      *slog.Logger
	db       *db.DB
	redis    *redis.Client
	cfg      config.Config
	router   *gin.Engine
	sessions *session.Manager
	resolver *identity.Resolver
	ledger   *ledger.Service
	profiles *profile.Manager
	storeSvc *store.Service
	mods     *moderation.Service
	automod  *automod.Engine
	pipeline *chat.Pipeline
	hub      *broadcast.Hub

	bridgeLimiter *security.LimiterStore
}

type Deps struct {
	Sessions *session.Manager
	Resolver *identity.Resolver
	Ledger   *ledger.Service
	Profiles *profile.Manager
	Store    *store.Service
	Mods     *moderation.Service
	Automod  *automod.Engine
	Pipeline *chat.Pipeline
	Hub      *broadcast.Hub
}

func NewServer(log *slog.Logger, dbConn *db.DB, redisClient *redis.Client, cfg config.Config, deps Deps) *Server {
	s := &Server{
		log:           log,
		db:            dbConn,
		redis:         redisClient,
		cfg:           cfg,
		router:        gin.New(),
		sessions:      deps.Sessions,
		resolver:      deps.Resolver,
		ledger:        deps.Ledger,
		profiles:      deps.Profiles,
		storeSvc:      deps.Store,
		mods:          deps.Mods,
		automod:       deps.Automod,
		pipeline:      deps.Pipeline,
		hub:           deps.Hub,
		bridgeLimiter: security.NewLimiterStore(rate.Limit(50), 100, 10*time.Minute),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.inputValidationMiddleware())
	r.Use(s.rateLimitMiddleware())

	if s.hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			s.hub.ServeWS(c.Writer, c.Request)
		})
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		v1.GET("/session", s.getSession)
		v1.POST("/session/link", s.linkIdentity)
		v1.POST("/session/logout", s.logout)

		v1.GET("/points", s.getPoints)
		v1.GET("/points/events", s.getPointEvents)

		v1.GET("/store/items", s.listStoreItems)
		v1.POST("/store/purchase", s.purchaseItem)
		v1.POST("/store/equip", s.equipItem)

		v1.POST("/chat/inbound", s.chatInbound)

		// moderator actions, session-authorized
		mod := v1.Group("/mod")
		{
			mod.POST("/timeout", s.modTimeout)
			mod.POST("/ban", s.modBan)
			mod.POST("/unban", s.modUnban)
		}

		// operator surface, shared-secret authorized
		admin := v1.Group("/admin")
		admin.Use(s.adminAuthMiddleware())
		{
			admin.GET("/moderation/bans", s.listBans)
			admin.GET("/moderation/mods", s.listMods)
			admin.POST("/moderation/mods", s.addMod)
			admin.DELETE("/moderation/mods/:user_id", s.removeMod)

			admin.GET("/automod/words/:list", s.getWordList)
			admin.PUT("/automod/words/:list", s.putWordList)

			admin.PUT("/store/items", s.upsertStoreItem)
			admin.POST("/points/adjust", s.adjustPoints)
		}
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
