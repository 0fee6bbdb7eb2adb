package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	attendancehandler "github.com/attendly/attendly-backend/internal/attendance/handler"
	attendancerepo "github.com/attendly/attendly-backend/internal/attendance/repository"
	attendancesvc "github.com/attendly/attendly-backend/internal/attendance/service"
	authhandler "github.com/attendly/attendly-backend/internal/auth/handler"
	authmiddleware "github.com/attendly/attendly-backend/internal/auth/middleware"
	authrepo "github.com/attendly/attendly-backend/internal/auth/repository"
	authsvc "github.com/attendly/attendly-backend/internal/auth/service"
	companyhandler "github.com/attendly/attendly-backend/internal/company/handler"
	companyrepo "github.com/attendly/attendly-backend/internal/company/repository"
	companysvc "github.com/attendly/attendly-backend/internal/company/service"
	payrollhandler "github.com/attendly/attendly-backend/internal/payroll/handler"
	payrollrepo "github.com/attendly/attendly-backend/internal/payroll/repository"
	payrollsvc "github.com/attendly/attendly-backend/internal/payroll/service"

	"github.com/attendly/attendly-backend/internal/auth/jwt"
	"github.com/attendly/attendly-backend/pkg/config"
	"github.com/attendly/attendly-backend/pkg/database"
	"github.com/attendly/attendly-backend/pkg/httputil"
	"github.com/attendly/attendly-backend/pkg/logger"
	"github.com/attendly/attendly-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("attendance-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("attendance-service", cfg.Server.Environment)
	log.Info().Msg("starting Attendance Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Event publishers
	attendancePublisher, err := messaging.NewPublisher(rmq, messaging.ExchangeAttendanceEvents, "attendance-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create attendance event publisher")
	}
	companyPublisher, err := messaging.NewPublisher(rmq, messaging.ExchangeCompanyEvents, "attendance-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create company event publisher")
	}

	// Repositories
	companyRepo := companyrepo.NewCompanyRepository(db)
	settingsRepo := companyrepo.NewSettingsRepository(db)
	branchRepo := companyrepo.NewBranchRepository(db)
	shiftRepo := companyrepo.NewShiftRepository(db)
	employeeRepo := companyrepo.NewEmployeeRepository(db)
	directory := companyrepo.NewDirectory(db)
	sessionRepo := authrepo.NewSessionRepository(db)
	ledgerRepo := attendancerepo.NewLedgerRepository(db)
	pendingRepo := attendancerepo.NewPendingRepository(db)
	heartbeatRepo := attendancerepo.NewHeartbeatRepository(db)
	payrollInputsRepo := payrollrepo.NewInputsRepository(db)

	// Services
	jwtManager := jwt.NewManager(&cfg.JWT)
	authService := authsvc.NewAuthService(sessionRepo, directory, jwtManager, log)
	companyService := companysvc.NewCompanyService(db, companyRepo, settingsRepo, companyPublisher, log)
	settingsService := companysvc.NewSettingsService(settingsRepo, companyPublisher, log)
	admissionService := attendancesvc.NewAdmissionService(
		db, ledgerRepo, pendingRepo, heartbeatRepo,
		companyRepo, branchRepo, shiftRepo, employeeRepo,
		settingsService, attendancePublisher, log,
	)
	pendingService := attendancesvc.NewPendingService(db, ledgerRepo, pendingRepo, settingsService, attendancePublisher, log)
	heartbeatService := attendancesvc.NewHeartbeatService(ledgerRepo, heartbeatRepo, log)
	reconciler := attendancesvc.NewReconciler(db, ledgerRepo, pendingRepo, heartbeatRepo, attendancePublisher, &cfg.Reconciler, log)
	projectorService := payrollsvc.NewProjectorService(ledgerRepo, payrollInputsRepo, employeeRepo, companyRepo, settingsService, log)

	// Handlers and auth gatekeeper
	gatekeeper := authmiddleware.NewGatekeeper(authService, cfg.System.CredentialHash)
	authHandler := authhandler.NewAuthHandler(authService, log)
	companyHandler := companyhandler.NewCompanyHandler(companyService, settingsService, log)
	attendanceHandler := attendancehandler.NewAttendanceHandler(admissionService, pendingService, heartbeatService, log)
	internalHandler := attendancehandler.NewInternalHandler(reconciler, log)
	payrollHandler := payrollhandler.NewPayrollHandler(projectorService, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scheduled reconciliation
	go reconciler.Start(ctx)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "attendance-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes())

		r.With(gatekeeper.RequireSystem).Post("/companies", companyHandler.Provision)

		r.Route("/company/settings", func(r chi.Router) {
			r.Use(gatekeeper.RequireAdmin)
			r.Get("/", companyHandler.GetSettings)
			r.Put("/", companyHandler.UpdateSettings)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Use(gatekeeper.RequireEmployee)
			r.Mount("/", attendanceHandler.Routes())
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Use(gatekeeper.RequireAdmin)
			r.Mount("/", payrollHandler.Routes())
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(gatekeeper.RequireSystem)
		r.Mount("/", internalHandler.Routes())
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the reconciler loop
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
