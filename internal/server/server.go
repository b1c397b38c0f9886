package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/updootapp/backend/internal/database"
	"github.com/updootapp/backend/internal/handlers"
	"github.com/updootapp/backend/internal/middleware"
	"github.com/updootapp/backend/internal/notify"
)

type Server struct {
	db      database.Service
	handler *handlers.Handler
}

// NewServer creates and configures a new server
func NewServer() *http.Server {
	// Apply the schema constraints before gorm takes over
	rawDB, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := rawDB.Initialize(); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	rawDB.Close()

	dbService := database.New()

	// Create unified handler
	handler := handlers.NewHandler(dbService.GetDB(), notify.NewTwilioNotifier())

	// Create server instance
	newServer := &Server{
		db:      dbService,
		handler: handler,
	}

	// Configure Gin router
	router := newServer.RegisterRoutes()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // local dev fallback
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("🚀 Server starting on port %s\n", port)
	fmt.Println("📝 Press Ctrl+C to stop the server")

	return server
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.db.Health())
	})

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)
		api.POST("/forgot-password", s.handler.Auth.ForgotPassword)
		api.POST("/change-password", s.handler.Auth.ChangePassword)

		// Post routes (public reads; the feed personalizes vote_status
		// when a token is present)
		api.GET("/posts", middleware.OptionalAuthMiddleware(), s.handler.Post.GetPosts)
		api.GET("/posts/:id", s.handler.Post.GetPost)

		// User routes (public reads)
		api.GET("/users/:id", middleware.OptionalAuthMiddleware(), s.handler.User.GetUserProfile)

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// Auth protected routes
			protected.GET("/me", s.handler.Auth.GetMe)

			// Post protected routes
			protected.POST("/posts", s.handler.Post.CreatePost)
			protected.PUT("/posts/:id", s.handler.Post.UpdatePost)
			protected.DELETE("/posts/:id", s.handler.Post.DeletePost)
			protected.POST("/posts/:id/vote", s.handler.Post.VotePost)
		}
	}

	return r
}
