package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/tradedesk/backoffice/internal/application/services"
	"github.com/tradedesk/backoffice/internal/bootstrap"
	"github.com/tradedesk/backoffice/internal/infrastructure/database"
	"github.com/tradedesk/backoffice/internal/interfaces/middleware"
	"github.com/tradedesk/backoffice/internal/interfaces/rest"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3002"
	}

	// Initialize database connection
	db, err := database.GetInstance()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	ctx := context.Background()
	if err := bootstrap.EnsureSchema(ctx, db.DB()); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Initialize service manager
	svcMgr, err := services.NewServiceManager(db)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	log.Println("🔧 Service manager initialized")

	if err := bootstrap.SeedAdminUser(ctx, svcMgr.Users); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	// Create Gin router
	router := gin.Default()
	router.Use(middleware.Cors())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "golang",
		})
	})

	// Initialize handlers
	authHandler := rest.NewAuthHandler(svcMgr.Auth)
	templateHandler := rest.NewTemplateHandler(svcMgr.Template)
	engagementHandler := rest.NewEngagementHandler(svcMgr.Engagement, svcMgr.Executor, svcMgr.Document)
	historyHandler := rest.NewHistoryHandler(svcMgr.History)

	requireAuth := middleware.RequireAuth()

	api := router.Group("/api")
	{
		authHandler.RegisterRoutes(api.Group("/auth"))

		templates := api.Group("/templates")
		templates.Use(requireAuth, middleware.RequireAnyRole("admin"))
		templateHandler.RegisterRoutes(templates)

		engagements := api.Group("/engagements")
		engagements.Use(requireAuth)
		engagementHandler.RegisterRoutes(engagements)
		historyHandler.RegisterRoutes(engagements)
	}

	// Start background workers
	svcMgr.StartWorkers()
	log.Println("📤 Trigger outbox worker started")
	log.Println("⏰ Reminder scheduler started")

	log.Println("\n═══════════════════════════════════════════════════════════")
	log.Println("🚀 Trade Finance Back-Office Started Successfully")
	log.Println("═══════════════════════════════════════════════════════════")
	log.Printf("\n📍 Server:          http://localhost:%s", port)
	log.Printf("🔐 Auth API:        http://localhost:%s/api/auth", port)
	log.Printf("📋 Templates API:   http://localhost:%s/api/templates", port)
	log.Printf("📦 Engagements API: http://localhost:%s/api/engagements", port)
	log.Printf("💚 Health check:    http://localhost:%s/health\n", port)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	svcMgr.StopWorkers()
	log.Println("🛑 Background workers stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
