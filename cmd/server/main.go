package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuslib/backend/internal/audit"
	"github.com/campuslib/backend/internal/config"
	"github.com/campuslib/backend/internal/database"
	"github.com/campuslib/backend/internal/handlers"
	mW "github.com/campuslib/backend/internal/middleware"
	"github.com/campuslib/backend/internal/models"
	"github.com/campuslib/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Campus Library Backend API
// @version 1.0
// @description Circulation, fines and fine payments for the university library
// @BasePath /api

func main() {
	if err := config.Init(".env"); err != nil {
		log.Printf("Config file not found, using environment and defaults: %v", err)
	}

	circulationCfg := config.LoadCirculationConfig()
	paymentCfg := config.LoadPaymentConfig()
	authCfg := config.LoadAuthConfig()
	if authCfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET_KEY must be set")
	}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores
	borrowStore := services.NewPostgresBorrowStore(db)
	catalog := services.NewPostgresCatalog(db)
	userStore := services.NewPostgresUserStore(db)
	paymentStore := services.NewPostgresPaymentStore(db)
	newsStore := services.NewPostgresNewsStore(db)

	lendingService := services.NewLendingService(borrowStore, catalog, userStore, paymentStore,
		services.NewSQLTxRunner(db), audit.NewLogger(), circulationCfg)
	chapa := services.NewChapaClient(paymentCfg.ChapaBaseURL, paymentCfg.ChapaSecretKey, paymentCfg.HTTPTimeout)
	paymentService := services.NewPaymentService(lendingService, chapa, redisClient, paymentCfg)

	authService := services.NewAuthService(userStore, redisClient, authCfg)
	userService := services.NewUserService(userStore, authCfg, circulationCfg)
	bookService := services.NewBookService(catalog, circulationCfg)
	newsService := services.NewNewsService(newsStore, circulationCfg)
	reportService := services.NewReportService(userStore, catalog, newsStore)

	borrowHandler := handlers.NewBorrowHandler(lendingService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	authenticator := mW.NewAuthenticator(authCfg.JWTSecret, redisClient)
	staffOnly := mW.RequireRoles(models.RoleAdmin, models.RoleLibrarian)
	adminOnly := mW.RequireRoles(models.RoleAdmin)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{paymentCfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/openapi.yaml", mW.StaticFile("./api/openapi.yaml", "application/yaml").ServeHTTP)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/first-login", authService.FirstLogin)
		r.Post("/auth/change-password", authService.ChangePassword)
		r.Post("/auth/login", authService.Login)
		r.Post("/payments/callback", paymentHandler.Callback)

		r.Group(func(r chi.Router) {
			r.Use(authenticator.AuthenticateAny)
			r.Post("/auth/logout", authService.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticator.Authenticate)

			r.Post("/auth/change-password-after-login", authService.ChangePasswordAfterLogin)

			// Borrow lifecycle
			r.Post("/borrows/request", borrowHandler.RequestBook)
			r.Post("/borrows/borrow", borrowHandler.BorrowBook)
			r.Post("/borrows/return", borrowHandler.ReturnBook)
			r.Post("/borrows/my", borrowHandler.MyBorrow)
			r.With(staffOnly).Post("/borrows/approve", borrowHandler.ApproveRequest)
			r.With(staffOnly).Get("/borrows", borrowHandler.ListBorrows)

			// Fine payments
			r.Post("/payments/fine", paymentHandler.Fine)
			r.Post("/payments/init", paymentHandler.InitPayment)
			r.Post("/payments/init-telebirr", paymentHandler.InitTelebirr)

			// Catalog
			r.Get("/books", bookService.ListBooks)
			r.With(staffOnly).Post("/books", bookService.CreateBook)
			r.With(staffOnly).Put("/books/{id}", bookService.UpdateBook)
			r.With(staffOnly).Delete("/books/{id}", bookService.DeleteBook)

			// Members
			r.Get("/users/me", userService.GetMe)
			r.With(adminOnly).Get("/users", userService.ListUsers)
			r.With(adminOnly).Post("/users", userService.CreateUser)
			r.With(adminOnly).Put("/users/{id}", userService.UpdateUser)
			r.With(adminOnly).Delete("/users/{id}", userService.DeleteUser)

			// News
			r.Get("/news", newsService.ListNews)
			r.Get("/news/unread", newsService.UnreadCount)
			r.Post("/news/read", newsService.MarkRead)
			r.With(adminOnly).Post("/news", newsService.CreateNews)

			r.With(adminOnly).Get("/reports/weekly", reportService.Weekly)
		})
	})

	viper.SetDefault("PORT", "8080")
	port := viper.GetString("PORT")

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
