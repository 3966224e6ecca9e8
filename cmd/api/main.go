package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/libops/library-api/api/swagger"
	"github.com/libops/library-api/internal/handler"
	"github.com/libops/library-api/internal/lifecycle"
	appmiddleware "github.com/libops/library-api/internal/middleware"
	"github.com/libops/library-api/internal/models"
	"github.com/libops/library-api/internal/repository"
	"github.com/libops/library-api/internal/service"
	"github.com/libops/library-api/pkg/cache"
	"github.com/libops/library-api/pkg/config"
	"github.com/libops/library-api/pkg/database"
	"github.com/libops/library-api/pkg/logger"
	corsmiddleware "github.com/libops/library-api/pkg/middleware/cors"
	reqidmiddleware "github.com/libops/library-api/pkg/middleware/requestid"
	"github.com/libops/library-api/pkg/storage"
)

// @title Library API
// @version 1.0.0
// @description Book catalog, circulation workflows and donation management
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("postgres connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	}

	periods := lifecycle.Periods{
		Loan:             cfg.Loans.Period,
		RenewalExtension: cfg.Loans.RenewalExtension,
		DueSoonDays:      cfg.Loans.DueSoonWindow,
	}

	bookRepo := repository.NewBookRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetrics()
	authSvc := service.NewAuthService(userRepo, cfg.JWT, logr)
	loanSvc := service.NewLoanService(bookRepo, txRepo, userRepo, periods, logr).WithMetrics(metrics)
	donationSvc := service.NewDonationService(bookRepo, txRepo, logr).WithMetrics(metrics).WithListingCache(cacheRepo)
	catalogSvc := service.NewCatalogService(bookRepo, cacheRepo, cfg.Catalog.CacheTTL, periods, logr)
	ledgerSvc := service.NewLedgerService(txRepo)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("exports storage init failed", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(
			txRepo, exportStore, signer,
			cfg.Reports.SignedURLTTL,
			cfg.Reports.WorkerConcurrency,
			cfg.Reports.WorkerRetries,
			logr,
		).WithMetrics(metrics)
		reportSvc.Start(rootCtx)
		defer reportSvc.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(appmiddleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, logr, authSvc, loanSvc, donationSvc, catalogSvc, ledgerSvc, reportSvc, userRepo)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	logr *zap.Logger,
	authSvc *service.AuthService,
	loanSvc *service.LoanService,
	donationSvc *service.DonationService,
	catalogSvc *service.CatalogService,
	ledgerSvc *service.LedgerService,
	reportSvc *service.ReportService,
	userRepo *repository.UserRepository,
) {
	authHandler := handler.NewAuthHandler(authSvc)
	bookHandler := handler.NewBookHandler(catalogSvc, loanSvc)
	loanHandler := handler.NewLoanHandler(loanSvc)
	donationHandler := handler.NewDonationHandler(donationSvc, loanSvc)
	ledgerHandler := handler.NewLedgerHandler(ledgerSvc)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(appmiddleware.Authenticate(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)

	authed.GET("/books", bookHandler.List)
	authed.GET("/books/:id", bookHandler.Get)
	authed.GET("/books/:id/transactions", ledgerHandler.ForBook)
	authed.GET("/transactions", ledgerHandler.List)

	authed.GET("/me/books", bookHandler.ListMine)
	authed.GET("/me/donations", bookHandler.ListMyDonations)
	authed.GET("/me/transactions", ledgerHandler.Mine)

	authed.POST("/donations", donationHandler.Donate)
	authed.POST("/books/:id/issue-request", loanHandler.RequestIssue)
	authed.POST("/books/:id/renew", loanHandler.Renew)
	authed.POST("/books/:id/return-request", loanHandler.RequestReturn)

	admin := authed.Group("")
	admin.Use(appmiddleware.RequireAdmin())

	admin.POST("/books",
		appmiddleware.Audit(userRepo, logr, models.AuditActionBookCreate, "books"), bookHandler.Create)
	admin.PUT("/books/:id",
		appmiddleware.Audit(userRepo, logr, models.AuditActionBookUpdate, "books"), bookHandler.Update)
	admin.PATCH("/books/:id/status",
		appmiddleware.Audit(userRepo, logr, models.AuditActionBookUpdate, "books"), bookHandler.MarkStatus)
	admin.DELETE("/books/:id",
		appmiddleware.Audit(userRepo, logr, models.AuditActionBookDelete, "books"), bookHandler.Delete)

	admin.GET("/books/overdue", bookHandler.ListOverdue)
	admin.GET("/books/due-soon", bookHandler.ListDueSoon)

	admin.POST("/books/:id/issue-approve", loanHandler.ApproveIssue)
	admin.POST("/books/:id/issue-reject", loanHandler.RejectIssue)
	admin.POST("/books/:id/return-approve", loanHandler.ApproveReturn)
	admin.POST("/books/:id/return-reject", loanHandler.RejectReturn)
	admin.POST("/books/:id/issue", loanHandler.AdminIssue)
	admin.POST("/books/:id/return", loanHandler.AdminReturn)
	admin.POST("/books/:id/fine", loanHandler.RecordFine)

	admin.POST("/books/:id/donation-approve", donationHandler.Approve)
	admin.POST("/books/:id/donation-reject", donationHandler.Reject)

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		api.GET("/reports/download", reportHandler.Download)
		admin.POST("/reports",
			appmiddleware.Audit(userRepo, logr, models.AuditActionReportRequest, "reports"), reportHandler.Request)
		admin.GET("/reports/:id", reportHandler.Get)
	}
}
