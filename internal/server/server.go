// Package server exposes the HTTP surface: invoice and client resources,
// lifecycle webhooks, and operational endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	"github.com/smallbiznis/billora/internal/config"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"github.com/smallbiznis/billora/internal/providers/pdf"
	"github.com/smallbiznis/billora/internal/recurring"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	cfg        config.Config
	invoiceSvc invoicedomain.Service
	clientSvc  clientdomain.Service
	scheduler  *recurring.Scheduler
	pdf        pdf.Provider
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ErrorHandlingMiddleware())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}

type ServerParam struct {
	fx.In

	Engine     *gin.Engine
	Log        *zap.Logger
	Cfg        config.Config
	InvoiceSvc invoicedomain.Service
	ClientSvc  clientdomain.Service
	Scheduler  *recurring.Scheduler
	PDF        pdf.Provider
}

func NewServer(p ServerParam) *Server {
	s := &Server{
		engine:     p.Engine,
		log:        p.Log.Named("server"),
		cfg:        p.Cfg,
		invoiceSvc: p.InvoiceSvc,
		clientSvc:  p.ClientSvc,
		scheduler:  p.Scheduler,
		pdf:        p.PDF,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	clients := v1.Group("/clients")
	clients.GET("", s.ListClients)
	clients.POST("", s.CreateClient)
	clients.GET("/:id", s.GetClientByID)
	clients.GET("/:id/financials", s.GetClientFinancials)
	clients.POST("/:id/recompute", s.RecomputeClient)

	invoices := v1.Group("/invoices")
	invoices.GET("", s.ListInvoices)
	invoices.POST("", s.CreateInvoice)
	invoices.GET("/:id", s.GetInvoiceByID)
	invoices.PUT("/:id/line_items", s.ApplyLineItems)
	invoices.POST("/:id/send", s.SendInvoice)
	invoices.POST("/:id/cancel", s.CancelInvoice)
	invoices.GET("/:id/pdf", s.InvoicePDF)

	recurrences := v1.Group("/recurrences")
	recurrences.GET("", s.ListRecurrences)
	recurrences.POST("", s.CreateRecurrence)

	webhooks := v1.Group("/webhooks")
	webhooks.POST("/payments", s.PaymentWebhook)
	webhooks.POST("/read_receipts", s.ReadReceiptWebhook)
	webhooks.POST("/email_delivery", s.EmailDeliveryWebhook)
}

func run(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
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
