package main

import (
	"log/slog"
	"sync"

	"sosmed/pkg/imagehost"
	"sosmed/pkg/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	jsonBodyLimit  = 16 << 10
	imageBodyLimit = 10 << 20
)

// App holds everything a request handler needs. It is built once and only
// read afterwards.
type App struct {
	cfg       *Config
	db        *gorm.DB
	issuer    *session.Issuer
	carrier   session.Carrier
	images    imagehost.Host
	logger    *slog.Logger
	metrics   *metrics
	gatherer  prometheus.Gatherer
	dummyHash func() []byte
}

func newApp(cfg *Config, db *gorm.DB, images imagehost.Host, logger *slog.Logger, reg *prometheus.Registry) *App {
	return &App{
		cfg:      cfg,
		db:       db,
		issuer:   session.NewIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL),
		carrier:  session.NewCarrier(cfg.LocalDev(), cfg.AccessTTL, cfg.RefreshTTL),
		images:   images,
		logger:   logger,
		metrics:  newMetrics(reg),
		gatherer: reg,
		// compared against when the handle is unknown so both login
		// failures cost one bcrypt comparison
		dummyHash: sync.OnceValue(func() []byte {
			h, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
			return h
		}),
	}
}

func (a *App) corsConfig() cors.Config {
	origins := []string{"http://localhost:5173", "http://localhost:5000"}
	if a.cfg.CORSOrigin != "" {
		origins = append([]string{a.cfg.CORSOrigin}, origins...)
	}
	cc := cors.DefaultConfig()
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	cc.AllowHeaders = append(cc.AllowHeaders, "Authorization")
	return cc
}

func (a *App) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), tracing(), a.metrics.middleware(), requestLogger(a.logger), cors.New(a.corsConfig()))

	if local, ok := a.images.(*imagehost.LocalHost); ok {
		r.Static("/uploads", local.Dir())
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	small := limitBody(jsonBodyLimit)
	large := limitBody(imageBodyLimit)
	gate := a.authGate()

	api := r.Group("/api/v1")

	auth := api.Group("/auth", small)
	auth.POST("/signup", a.signupHandler)
	auth.POST("/login", a.loginHandler)
	auth.POST("/refresh", a.refreshHandler)
	auth.POST("/logout", gate, a.logoutHandler)
	auth.POST("/profile", gate, a.getMeHandler)

	users := api.Group("/users")
	users.GET("/userProfile/:userName", gate, a.userProfileHandler)
	users.GET("/suggested", gate, a.suggestedUsersHandler)
	users.POST("/follow/:id", small, gate, a.followUnfollowHandler)
	users.POST("/update", large, gate, a.updateProfileHandler)

	posts := api.Group("/post")
	posts.GET("/getAllPosts", gate, a.getAllPostsHandler)
	posts.POST("/createPost", large, gate, a.createPostHandler)
	posts.DELETE("/deletePost/:postId", gate, a.deletePostHandler)
	posts.POST("/commentOnPost/:postId", small, gate, a.commentOnPostHandler)
	posts.POST("/likeUnlikePost/:postId", small, gate, a.likeUnlikePostHandler)
	posts.GET("/likes/:id", gate, a.likedPostsHandler)
	posts.GET("/followingPosts", gate, a.followingPostsHandler)
	posts.GET("/getCurrentUserPosts", gate, a.userPostsHandler)

	notifications := api.Group("/notifications", small, gate)
	notifications.GET("", a.getNotificationsHandler)
	notifications.DELETE("", a.deleteNotificationsHandler)
	notifications.POST("/markNotificationRead", a.markNotificationsReadHandler)
	notifications.POST("/:id", a.deleteNotificationHandler)
	notifications.DELETE("/:id", a.deleteNotificationHandler)

	return r
}
