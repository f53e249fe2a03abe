package routes

import (
	"net/http"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"marketplace/handlers"
	"marketplace/metrics"
	"marketplace/middleware"
	"marketplace/models"
	"marketplace/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Options carries the optional router collaborators. Nil fields are skipped.
type Options struct {
	CORSOrigins []string
	StaticDir   string
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	Realtime    *websocket.Manager
}

// SetupRouter wires every route onto a fresh engine.
func SetupRouter(d *handlers.Deps, opts Options) (*gin.Engine, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(d.Log), middleware.Recovery(d.Log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	if opts.StaticDir == "" {
		router.GET("/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "Marketplace API running", "service": "healthy"})
		})
	}

	api := router.Group("/api")
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Middleware())
	}
	jwt := middleware.JWTAuth(d.Tokens, middleware.WithAccountCheck(d.CheckAccount))
	admin := middleware.RequireAdmin()
	customer := middleware.RequireRoles(models.RoleUser, models.RoleAdmin)

	authH := handlers.NewAuthHandler(d)
	google := handlers.NewGoogleHandler(d)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authH.Register)
		authGroup.POST("/login", authH.Login)
		authGroup.GET("/me", jwt, authH.Me)
		authGroup.POST("/freelancer/register", authH.FreelancerRegister)
		authGroup.POST("/freelancer/login", authH.FreelancerLogin)
		authGroup.GET("/google/url", google.AuthURL)
		authGroup.GET("/google/callback", google.Callback)
	}

	services := handlers.NewServiceHandler(d)
	api.GET("/services", services.List)
	api.GET("/services/:id", services.Get)
	api.POST("/services", jwt, admin, services.Create)
	api.PUT("/services/:id", jwt, admin, services.Update)
	api.DELETE("/services/:id", jwt, admin, services.Delete)

	protected := api.Group("")
	protected.Use(jwt)

	regs := handlers.NewRegisteredServiceHandler(d)
	protected.GET("/registered-services", regs.List)
	protected.POST("/registered-services", customer, regs.Create)
	protected.GET("/registered-services/:id", regs.Get)
	protected.PATCH("/registered-services/:id", regs.Update)

	messages := handlers.NewMessageHandler(d)
	protected.GET("/messages/conversations", messages.Conversations)
	protected.GET("/messages/service/:serviceId", messages.List)
	protected.POST("/messages/service/:serviceId", messages.Send)
	protected.PATCH("/messages/service/:serviceId/read", messages.MarkRead)

	payments := handlers.NewPaymentHandler(d)
	protected.POST("/payments/initiate", payments.Initiate)
	protected.POST("/payments/verify", payments.Verify)
	protected.PATCH("/payments/:id/status", payments.UpdateStatus)
	protected.GET("/payments/stats", admin, payments.Stats)
	protected.GET("/payments/user", payments.ForUser)
	protected.GET("/payments/service/:id", payments.ForService)

	freelancers := handlers.NewFreelancerHandler(d)
	self := middleware.RequireRoles(models.RoleFreelancer)
	protected.GET("/freelancers/profile/me", self, freelancers.Profile)
	protected.PUT("/freelancers/profile/me", self, freelancers.UpdateProfile)
	protected.POST("/freelancers/profile/me/avatar", self, freelancers.UploadAvatar)
	protected.GET("/freelancers", freelancers.List)
	protected.GET("/freelancers/:id", freelancers.Get)
	protected.POST("/freelancers", admin, freelancers.Create)
	protected.PUT("/freelancers/:id", admin, freelancers.Update)
	protected.DELETE("/freelancers/:id", admin, freelancers.Delete)

	push := handlers.NewPushHandler(d)
	protected.GET("/push/vapid-key", push.VapidPublicKey)
	protected.POST("/push/subscribe", push.Subscribe)

	adminGroup := protected.Group("")
	adminGroup.Use(admin)

	reports := handlers.NewReportHandler(d)
	adminGroup.GET("/reports", reports.List)
	adminGroup.POST("/reports", reports.Create)
	adminGroup.GET("/reports/:id", reports.Get)
	adminGroup.PUT("/reports/:id", reports.Update)
	adminGroup.DELETE("/reports/:id", reports.Delete)
	adminGroup.POST("/reports/:id/generate", reports.Generate)

	integrations := handlers.NewIntegrationHandler(d)
	adminGroup.GET("/integrations", integrations.List)
	adminGroup.POST("/integrations", integrations.Create)
	adminGroup.GET("/integrations/:id", integrations.Get)
	adminGroup.PUT("/integrations/:id", integrations.Update)
	adminGroup.DELETE("/integrations/:id", integrations.Delete)
	adminGroup.POST("/integrations/:id/toggle", integrations.Toggle)

	jobs := handlers.NewJobHandler(d)
	adminGroup.GET("/jobs/:id", jobs.Get)
	adminGroup.DELETE("/jobs/:id", jobs.Cancel)

	users := handlers.NewUserHandler(d)
	adminGroup.GET("/users", users.List)
	adminGroup.PATCH("/users/:id/status", users.UpdateStatus)
	adminGroup.DELETE("/users/:id", users.Delete)

	if opts.Realtime != nil {
		adminGroup.GET("/ws", handlers.NewRealtimeHandler(opts.Realtime).Connect)
	}

	router.NoRoute(notFound(opts.StaticDir))
	return router, nil
}

// notFound answers unknown API paths with JSON and everything else with the SPA shell.
func notFound(staticDir string) gin.HandlerFunc {
	var files http.FileSystem
	if staticDir != "" {
		files = http.Dir(staticDir)
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/api" || strings.HasPrefix(path, "/api/") || files == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Endpoint not found",
				"path":  path,
			})
			return
		}
		if f, err := files.Open(path); err == nil {
			info, statErr := f.Stat()
			f.Close()
			if statErr == nil && !info.IsDir() {
				c.FileFromFS(path, files)
				return
			}
		}
		c.File(filepath.Join(staticDir, "index.html"))
	}
}

// registerValidators installs the custom tags on gin's validator and reports
// field errors by their JSON names.
func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return models.RegisterValidators(v)
}
