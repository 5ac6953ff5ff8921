// Package server is the gin HTTP surface: routing, auth, error mapping and
// per-request observability.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smartreceipt/smartreceipt/internal/config"
	paymentdomain "github.com/smartreceipt/smartreceipt/internal/payment/domain"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	"github.com/smartreceipt/smartreceipt/internal/quota"
	"github.com/smartreceipt/smartreceipt/internal/ratelimit"
	receiptdomain "github.com/smartreceipt/smartreceipt/internal/receipt/domain"
	"github.com/smartreceipt/smartreceipt/internal/storage"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	usagedomain "github.com/smartreceipt/smartreceipt/internal/usage/domain"
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(TracingMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static("/uploads", cfg.UploadDir)

	return r
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	plansvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	usagesvc        usagedomain.Service
	quotaSvc        quota.Service
	receiptSvc      receiptdomain.Service
	paymentSvc      paymentdomain.Service
	webhookSvc      paymentdomain.WebhookService

	store      storage.Store
	scanBucket *ratelimit.TokenBucket
}

type ServerParams struct {
	fx.In

	Gin *gin.Engine
	Cfg config.Config
	Log *zap.Logger

	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
	QuotaSvc        quota.Service
	ReceiptSvc      receiptdomain.Service
	PaymentSvc      paymentdomain.Service
	WebhookSvc      paymentdomain.WebhookService

	Store      storage.Store
	ScanBucket *ratelimit.TokenBucket `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		log:    p.Log.Named("server"),

		plansvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usagesvc:        p.UsageSvc,
		quotaSvc:        p.QuotaSvc,
		receiptSvc:      p.ReceiptSvc,
		paymentSvc:      p.PaymentSvc,
		webhookSvc:      p.WebhookSvc,

		store:      p.Store,
		scanBucket: p.ScanBucket,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(AuthRequired(s.cfg.AuthJWTSecret))

	api.GET("/plans", s.ListPlans)

	api.POST("/subscriptions", s.CreateSubscription)
	api.GET("/subscriptions", s.ListSubscriptions)
	api.GET("/subscriptions/current", s.GetCurrentSubscription)
	api.DELETE("/subscriptions", s.CancelSubscription)

	api.GET("/usage", s.GetUsage)

	scanLimited := api.Group("")
	if s.cfg.RateLimit.Enabled {
		scanLimited.Use(ScanRateLimit(s.scanBucket, s.cfg.RateLimit.ScanRate, s.cfg.RateLimit.ScanBurst, s.log))
	}
	scanLimited.POST("/receipts", s.CreateReceipt)

	api.GET("/receipts", s.ListReceipts)
	api.GET("/receipts/:id", s.GetReceipt)

	api.POST("/payments/charge", s.ChargePayment)
}

func (s *Server) registerWebhookRoutes() {
	// Webhooks authenticate with provider signatures, not user tokens.
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)
