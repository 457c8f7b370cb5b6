package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"parkhere/internal/api"
	"parkhere/internal/auth"
	"parkhere/internal/repository"
	"parkhere/internal/service"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
)

func main() {
	godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logrus.Fatal("DATABASE_URL not set")
	}
	database, err := sql.Open("postgres", dbURL)
	if err != nil {
		logrus.Fatalf("Failed to open DB: %v", err)
	}
	if err := database.Ping(); err != nil {
		logrus.Fatalf("Failed to connect to DB: %v", err)
	}

	tokenService, err := auth.NewService()
	if err != nil {
		logrus.Fatalf("Failed to init token service: %v", err)
	}

	sessionRepo := repository.NewSessionRepository(database)
	locationRepo := repository.NewLocationRepository(database)
	vehicleRepo := repository.NewVehicleRepository(database)
	userRepo := repository.NewUserRepository(database)
	jobRepo := repository.NewJobRepository(database)

	var checkout service.CheckoutClient
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		stripe.Key = key
		checkout = service.NewStripeService()
	} else {
		logrus.Warn("STRIPE_SECRET_KEY not set, payments disabled")
	}

	sender := service.NewSenderService()
	sessionSvc := service.NewSessionService(sessionRepo, locationRepo, userRepo, checkout, sender)
	vehicleSvc := service.NewVehicleService(vehicleRepo)
	locationSvc := service.NewLocationService(locationRepo)
	authSvc := service.NewAuthService(userRepo, tokenService)

	staleAfter := 24 * time.Hour
	if v := os.Getenv("STALE_SESSION_AFTER"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			staleAfter = parsed
		} else {
			logrus.Warnf("Invalid STALE_SESSION_AFTER %q, using default", v)
		}
	}
	jobSvc := service.NewJobService(jobRepo, staleAfter)

	sessionHandler := api.NewSessionHandler(sessionSvc)
	vehicleHandler := api.NewVehicleHandler(vehicleSvc)
	locationHandler := api.NewLocationHandler(locationSvc)
	authHandler := api.NewAuthHandler(authSvc)
	adminHandler := api.NewAdminHandler(locationSvc)
	stripeHandler := api.NewStripeWebhookHandler(os.Getenv("STRIPE_WEBHOOK_SECRET"), sessionSvc)

	r := mux.NewRouter()

	// Public endpoints
	r.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/locations", locationHandler.ListLocations).Methods("GET")
	r.HandleFunc("/api/locations/{id}", locationHandler.GetLocation).Methods("GET")
	r.HandleFunc("/api/locations/{id}/availability", sessionHandler.GetAvailability).Methods("GET")
	r.HandleFunc("/api/stripe/webhook", stripeHandler.HandleWebhook).Methods("POST")

	// Authenticated endpoints
	user := r.PathPrefix("/api").Subrouter()
	user.Use(tokenService.RequireUser)
	user.HandleFunc("/vehicles", vehicleHandler.ListVehicles).Methods("GET")
	user.HandleFunc("/vehicles", vehicleHandler.AddVehicle).Methods("POST")
	user.HandleFunc("/vehicles/{id}/activate", vehicleHandler.ActivateVehicle).Methods("PUT")
	user.HandleFunc("/vehicles/{id}", vehicleHandler.DeleteVehicle).Methods("DELETE")
	user.HandleFunc("/sessions", sessionHandler.StartSession).Methods("POST")
	user.HandleFunc("/sessions", sessionHandler.ListSessions).Methods("GET")
	user.HandleFunc("/sessions/active", sessionHandler.GetActiveSession).Methods("GET")
	user.HandleFunc("/sessions/{id}/end", sessionHandler.EndSession).Methods("POST")

	// Admin endpoints (protected)
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(tokenService.RequireAdmin)
	admin.HandleFunc("/locations", adminHandler.CreateLocation).Methods("POST")
	admin.HandleFunc("/locations/{id}/capacity/{category}", adminHandler.UpdateCapacity).Methods("PUT")

	c := cron.New()
	c.AddFunc("@every 15m", func() {
		if err := jobSvc.ReportStaleSessions(context.Background()); err != nil {
			logrus.WithError(err).Error("stale session watchdog failed")
		}
	})
	c.Start()

	handler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(handlers.LoggingHandler(os.Stdout, r))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logrus.Infof("Server running on port %s", port)
	logrus.Fatal(http.ListenAndServe(":"+port, handler))
}
