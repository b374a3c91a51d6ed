package routes

import (
	"net/http"
	"strings"
	"time"

	"finsite/handlers"
	"finsite/middleware"
	"finsite/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	AllowedOrigins []string
	JWTSecret      string
	AuthLimiter    *middleware.IPRateLimiter
}

func SetupRouter(h *handlers.Handler, hub *websocket.Manager, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.Health)
	router.GET("/api/health", handlers.Health)

	if hub != nil {
		// browsers cannot set headers on the upgrade, so the token may come as ?token=
		router.GET("/ws", middleware.JWTAuth(opts.JWTSecret), gin.WrapF(websocket.WebSocketHandler(hub)))
	}

	public := router.Group("/api")

	public.GET("/publications", h.ListPublications)
	public.GET("/publications/search", h.SearchPublications)
	public.GET("/publications/slug/:slug", h.GetPublicationBySlug)
	public.GET("/publications/:id", h.GetPublication)
	public.GET("/publications/:id/media", h.ListPublicationMedia)
	public.GET("/media", h.ListMediaByType)
	public.GET("/categories", h.ListCategories)
	public.GET("/categories/slug/:slug", h.GetCategoryBySlug)

	signIn := public.Group("/auth")
	if opts.AuthLimiter != nil {
		signIn.Use(middleware.RateLimit(opts.AuthLimiter))
	}
	signIn.POST("/signup", h.Signup)
	signIn.POST("/login", h.Login)
	signIn.GET("/google/url", h.GetGoogleAuthURL)
	signIn.GET("/google/callback", h.GoogleOAuthCallback)
	signIn.POST("/google/credential", h.GoogleAuthWithCredential)

	protected := router.Group("/api")
	protected.Use(middleware.JWTAuth(opts.JWTSecret))

	protected.GET("/me", h.GetMe)
	protected.POST("/me/profile", h.EnsureMyProfile)

	protected.POST("/publications", h.CreatePublication)
	protected.PATCH("/publications/:id", h.UpdatePublication)
	protected.DELETE("/publications/:id", h.DeletePublication)
	protected.POST("/publications/:id/media", h.LinkMedia)
	protected.PUT("/publications/:id/media/order", h.ReorderMedia)

	protected.PATCH("/media/:id", h.UpdateMedia)
	protected.DELETE("/media/:id", h.DeleteMedia)
	protected.POST("/media/reconcile", h.ReconcileMedia)

	protected.POST("/categories", h.CreateCategory)
	protected.PUT("/categories/order", h.ReorderCategories)
	protected.PATCH("/categories/:id", h.UpdateCategory)
	protected.DELETE("/categories/:id", h.DeleteCategory)

	protected.GET("/users", h.ListUsers)
	protected.POST("/users", h.CreateUser)
	protected.GET("/users/:id", h.GetUser)
	protected.PATCH("/users/:id", h.UpdateUser)
	protected.DELETE("/users/:id", h.DeleteUser)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return router
}
