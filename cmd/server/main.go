package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/debtbook/backend/docs"
	"github.com/debtbook/backend/internal/auth"
	"github.com/debtbook/backend/internal/config"
	"github.com/debtbook/backend/internal/database"
	"github.com/debtbook/backend/internal/handlers"
	"github.com/debtbook/backend/internal/kvstore"
	"github.com/debtbook/backend/internal/mailer"
	mW "github.com/debtbook/backend/internal/middleware"
	"github.com/debtbook/backend/internal/reporting"
	"github.com/debtbook/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
)

// @title Debtbook API
// @version 1.0
// @description API for tracking personal debts between a user and their contacts
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT.

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	db := database.InitDatabase()
	defer db.Close()

	if cfg.MigrationsOn {
		if err := database.RunMigrations(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var store kvstore.Store
	if redisClient := database.InitRedis(); redisClient != nil {
		defer redisClient.Close()
		store = kvstore.NewRedisStore(redisClient)
	} else {
		log.Println("[STORE] Redis unavailable, using in-memory store")
		mem := kvstore.NewMemoryStore()
		g.Go(func() error { return mem.RunSweeper(gctx, cfg.SweepInterval) })
		store = mem
	}

	var mail mailer.Mailer = mailer.LogMailer{}
	if cfg.SMTP.Host != "" {
		smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			log.Fatalf("Invalid SMTP configuration: %v", err)
		}
		mail = smtpMailer
	} else {
		log.Println("[MAIL] SMTP_HOST not set, verification codes will be logged")
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	classifier := reporting.NewClassifier(cfg.DayPolicy)

	authService := services.NewAuthService(db, store, mail, tokens, cfg.Argon2, cfg.OTP)
	contactService := services.NewContactService(db, classifier)
	debtService := services.NewDebtService(db, classifier)
	paymentService := services.NewPaymentService(db)
	qrHandler := handlers.NewQRHandler(services.NewQRService(db, store, classifier))

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
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

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/verify-email", authService.VerifyEmail)
		r.Post("/auth/resend", authService.Resend)
		r.Post("/auth/login", authService.Login)
		r.Post("/qr/resolve", qrHandler.ResolveReminder)

		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(tokens, store))

			r.Post("/auth/logout", authService.Logout)
			r.Get("/auth/me", authService.Me)

			r.Get("/contacts", contactService.ListContacts)
			r.Post("/contacts", contactService.CreateContact)
			r.Put("/contacts/{id:[0-9]+}", contactService.UpdateContact)
			r.Delete("/contacts/{id:[0-9]+}", contactService.DeleteContact)
			r.Get("/contacts/{id:[0-9]+}/debts", contactService.ContactDebts)

			r.Get("/debts", debtService.ListDebts)
			r.Post("/debts", debtService.CreateDebt)
			r.Get("/debts/summary", debtService.Summary)
			r.Get("/debts/overdue", debtService.Overdue)
			r.Post("/debts/overdue", debtService.Overdue)
			r.Get("/debts/{id:[0-9]+}", debtService.GetDebt)
			r.Post("/debts/{id:[0-9]+}/pay", debtService.MarkPaid)
			r.Get("/debts/{id:[0-9]+}/qr", qrHandler.DebtReminder)
			r.Get("/my-debts", debtService.MyDebts)

			r.Get("/payments", paymentService.Payments)
			r.Get("/payments/their-payments", paymentService.TheirPayments)
			r.Get("/payments/amount", paymentService.PaymentsAmount)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
		return
	}
	log.Println("Server stopped")
}
