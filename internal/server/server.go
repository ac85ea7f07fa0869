package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atolpos/atolpos/internal/config"
	"github.com/atolpos/atolpos/internal/liveevents"
	loyaltydomain "github.com/atolpos/atolpos/internal/loyalty/domain"
	"github.com/atolpos/atolpos/internal/observability/metrics"
	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	paymentdomain "github.com/atolpos/atolpos/internal/payment/domain"
	printingdomain "github.com/atolpos/atolpos/internal/printing/domain"
	promodomain "github.com/atolpos/atolpos/internal/promotion/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	genID      *snowflake.Node
	orderSvc   orderdomain.Service
	promoSvc   promodomain.Service
	loyaltySvc loyaltydomain.Service
	paymentSvc paymentdomain.Service
	ingestor   paymentdomain.Ingestor
	printSvc   printingdomain.Service
	hub        *liveevents.Hub
	metrics    *metrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	GenID      *snowflake.Node
	OrderSvc   orderdomain.Service
	PromoSvc   promodomain.Service
	LoyaltySvc loyaltydomain.Service
	PaymentSvc paymentdomain.Service
	Ingestor   paymentdomain.Ingestor
	PrintSvc   printingdomain.Service
	Hub        *liveevents.Hub  `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		genID:      p.GenID,
		orderSvc:   p.OrderSvc,
		promoSvc:   p.PromoSvc,
		loyaltySvc: p.LoyaltySvc,
		paymentSvc: p.PaymentSvc,
		ingestor:   p.Ingestor,
		printSvc:   p.PrintSvc,
		hub:        p.Hub,
		metrics:    p.Metrics,
	}

	svc.registerOrderRoutes()
	svc.registerPaymentRoutes()
	svc.registerPromotionRoutes()
	svc.registerLoyaltyRoutes()
	svc.registerPrintingRoutes()
	svc.registerStreamRoutes()

	return svc
}

func (s *Server) registerOrderRoutes() {
	orders := s.engine.Group("/api/v1/orders")
	orders.POST("", s.CreateOrder)
	orders.GET("", s.ListActiveOrders)
	orders.GET("/:id", s.GetOrder)
	orders.POST("/:id/items", s.AddOrderItems)
	orders.POST("/:id/discount", s.SetManualDiscount)
	orders.POST("/:id/hold", s.HoldOrder)
	orders.POST("/:id/resume", s.ResumeOrder)
	orders.POST("/:id/start", s.StartOrder)
	orders.POST("/:id/complete", s.CompleteOrder)
	orders.POST("/:id/recall", s.RecallOrder)
	orders.POST("/:id/cancel", s.CancelOrder)
	orders.POST("/:id/refund", s.RefundOrder)
	orders.POST("/:id/merge", s.MergeOrder)
	orders.POST("/:id/split", s.SplitOrder)
	orders.POST("/:id/payments", s.RecordOrderPayments)
	orders.GET("/:id/payments", s.ListOrderPayments)
	orders.POST("/:id/promotions", s.ApplyPromotion)
	orders.DELETE("/:id/promotions/:promotionId", s.RemovePromotion)
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/v1/payments")
	payments.POST("/online/initiate", s.InitiateOnlinePayment)
	payments.POST("/online/initiate-partial", s.InitiatePartialOnlinePayment)
	payments.GET("/online/return", s.OnlinePaymentReturn)

	s.engine.POST("/webhooks/gateway", s.IngestGatewayWebhook)
}

func (s *Server) registerPromotionRoutes() {
	promos := s.engine.Group("/api/v1/promotions")
	promos.POST("", s.CreatePromotion)
	promos.POST("/validate", s.ValidatePromotion)
}

func (s *Server) registerLoyaltyRoutes() {
	loyalty := s.engine.Group("/api/v1/loyalty")
	loyalty.POST("/hold", s.CreateLoyaltyHold)
	loyalty.DELETE("/hold/:orderId", s.ReleaseLoyaltyHold)
	loyalty.GET("/me", s.GetLoyaltyAccount)
	loyalty.POST("/adjust", s.AdjustLoyaltyPoints)
}

func (s *Server) registerPrintingRoutes() {
	printing := s.engine.Group("/api/v1/printing")
	printing.POST("/printers", s.CreatePrinter)
	printing.GET("/printers", s.ListPrinters)
	printing.GET("/orders/:id/jobs", s.ListPrintJobs)
	printing.POST("/jobs/:id/retry", s.RetryPrintJob)
}

func (s *Server) registerStreamRoutes() {
	s.engine.GET("/api/v1/stream/orders", s.StreamOrderEvents)
}
