package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/cookiejar/internal/audit"
	auditdomain "github.com/smallbiznis/cookiejar/internal/audit/domain"
	"github.com/smallbiznis/cookiejar/internal/auth"
	authdomain "github.com/smallbiznis/cookiejar/internal/auth/domain"
	"github.com/smallbiznis/cookiejar/internal/authorization"
	"github.com/smallbiznis/cookiejar/internal/billing"
	"github.com/smallbiznis/cookiejar/internal/billingsync"
	billingsyncdomain "github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	"github.com/smallbiznis/cookiejar/internal/catalog"
	catalogdomain "github.com/smallbiznis/cookiejar/internal/catalog/domain"
	"github.com/smallbiznis/cookiejar/internal/checkout"
	checkoutdomain "github.com/smallbiznis/cookiejar/internal/checkout/domain"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/customer"
	customerdomain "github.com/smallbiznis/cookiejar/internal/customer/domain"
	"github.com/smallbiznis/cookiejar/internal/media"
	mediadomain "github.com/smallbiznis/cookiejar/internal/media/domain"
	"github.com/smallbiznis/cookiejar/internal/observability"
	obslogger "github.com/smallbiznis/cookiejar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cookiejar/internal/observability/metrics"
	obstracing "github.com/smallbiznis/cookiejar/internal/observability/tracing"
	"github.com/smallbiznis/cookiejar/internal/order"
	orderdomain "github.com/smallbiznis/cookiejar/internal/order/domain"
	"github.com/smallbiznis/cookiejar/internal/product"
	"github.com/smallbiznis/cookiejar/internal/productunit"
	unitdomain "github.com/smallbiznis/cookiejar/internal/productunit/domain"
	"github.com/smallbiznis/cookiejar/internal/providers"
	"github.com/smallbiznis/cookiejar/internal/ratelimit"
	"github.com/smallbiznis/cookiejar/internal/reconcile"
	reconciledomain "github.com/smallbiznis/cookiejar/internal/reconcile/domain"
	"github.com/smallbiznis/cookiejar/internal/reporting"
	reportingdomain "github.com/smallbiznis/cookiejar/internal/reporting/domain"
	"github.com/smallbiznis/cookiejar/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/cookiejar/internal/subscription/domain"
	"github.com/smallbiznis/cookiejar/internal/syncmetrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	providers.Module,
	billing.Module,
	ratelimit.Module,
	syncmetrics.Module,
	authorization.Module,
	auth.Module,
	product.Module,
	productunit.Module,
	billingsync.Module,
	catalog.Module,
	customer.Module,
	checkout.Module,
	order.Module,
	subscription.Module,
	reconcile.Module,
	reporting.Module,
	media.Module,
	audit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietPaths:      obsCfg.UntracedPaths,
	}))
	r.Use(obstracing.GinMiddleware(obsCfg.UntracedPaths...))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authSvc         authdomain.Service
	authzSvc        authorization.Service
	catalogSvc      catalogdomain.Service
	unitSvc         unitdomain.Service
	billingSyncSvc  billingsyncdomain.Service
	checkoutSvc     checkoutdomain.Service
	customerSvc     customerdomain.Service
	orderSvc        orderdomain.Service
	subscriptionSvc subscriptiondomain.Service
	reconcileSvc    reconciledomain.Service
	reportingSvc    reportingdomain.Service
	mediaSvc        mediadomain.Service
	auditSvc        auditdomain.Service
	checkoutLimiter *ratelimit.CheckoutLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuthSvc         authdomain.Service
	AuthzSvc        authorization.Service
	CatalogSvc      catalogdomain.Service
	UnitSvc         unitdomain.Service
	BillingSyncSvc  billingsyncdomain.Service
	CheckoutSvc     checkoutdomain.Service
	CustomerSvc     customerdomain.Service
	OrderSvc        orderdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ReconcileSvc    reconciledomain.Service
	ReportingSvc    reportingdomain.Service
	MediaSvc        mediadomain.Service
	AuditSvc        auditdomain.Service
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authSvc:         p.AuthSvc,
		authzSvc:        p.AuthzSvc,
		catalogSvc:      p.CatalogSvc,
		unitSvc:         p.UnitSvc,
		billingSyncSvc:  p.BillingSyncSvc,
		checkoutSvc:     p.CheckoutSvc,
		customerSvc:     p.CustomerSvc,
		orderSvc:        p.OrderSvc,
		subscriptionSvc: p.SubscriptionSvc,
		reconcileSvc:    p.ReconcileSvc,
		reportingSvc:    p.ReportingSvc,
		mediaSvc:        p.MediaSvc,
		auditSvc:        p.AuditSvc,
		checkoutLimiter: p.CheckoutLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Catalog --------
	api.GET("/products", s.ListStoreProducts)
	api.GET("/products/featured", s.ListFeaturedProducts)
	api.GET("/products/:id", s.GetStoreProduct)

	// -------- Checkout --------
	api.POST("/checkout", s.CheckoutRateLimit(), s.CreateCheckoutSession)
	api.POST("/payment-intents", s.CheckoutRateLimit(), s.CreatePaymentIntent)
	api.GET("/checkout/sessions/:id", s.VerifyCheckoutSession)

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.CheckoutRateLimit(), s.CreateSubscription)
	api.GET("/subscriptions", s.ListSubscriptions)
	api.DELETE("/subscriptions/:id", s.CancelSubscription)

	// -------- Billing Webhooks --------
	api.POST("/webhooks/billing", s.HandleBillingWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminAuthRequired())

	// -------- Products --------
	admin.GET("/products", s.authorize(authorization.ObjectProduct, authorization.ActionView), s.ListProducts)
	admin.POST("/products", s.authorize(authorization.ObjectProduct, authorization.ActionCreate), s.audited("product.create", authorization.ObjectProduct), s.CreateProduct)
	admin.GET("/products/:id", s.authorize(authorization.ObjectProduct, authorization.ActionView), s.GetProductByID)
	admin.PATCH("/products/:id", s.authorize(authorization.ObjectProduct, authorization.ActionUpdate), s.audited("product.update", authorization.ObjectProduct), s.UpdateProduct)
	admin.POST("/products/:id/archive", s.authorize(authorization.ObjectProduct, authorization.ActionDelete), s.audited("product.archive", authorization.ObjectProduct), s.ArchiveProduct)
	admin.POST("/products/:id/sync", s.authorize(authorization.ObjectProduct, authorization.ActionProductSync), s.audited(authorization.ActionProductSync, authorization.ObjectProduct), s.SyncProduct)
	admin.GET("/products/:id/units", s.authorize(authorization.ObjectProduct, authorization.ActionView), s.ListProductUnits)
	admin.POST("/products/:id/units", s.authorize(authorization.ObjectProduct, authorization.ActionUpdate), s.audited("product_unit.create", authorization.ObjectProduct), s.CreateProductUnit)
	admin.PATCH("/products/:id/units/:unit_id", s.authorize(authorization.ObjectProduct, authorization.ActionUpdate), s.audited("product_unit.update", authorization.ObjectProduct), s.UpdateProductUnit)
	admin.DELETE("/products/:id/units/:unit_id", s.authorize(authorization.ObjectProduct, authorization.ActionUpdate), s.audited("product_unit.delete", authorization.ObjectProduct), s.DeleteProductUnit)

	// -------- Billing Sync --------
	admin.POST("/billing/sync", s.authorize(authorization.ObjectBillingSync, authorization.ActionBillingSyncRun), s.audited(authorization.ActionBillingSyncRun, authorization.ObjectBillingSync), s.SyncBilling)

	// -------- Inventory --------
	admin.GET("/inventory/sales", s.authorize(authorization.ObjectInventory, authorization.ActionView), s.GetInventorySales)
	admin.POST("/inventory/availability", s.authorize(authorization.ObjectInventory, authorization.ActionInventoryUpdate), s.audited("inventory.availability", authorization.ObjectInventory), s.SetAvailability)
	admin.POST("/inventory/bulk-availability", s.authorize(authorization.ObjectInventory, authorization.ActionInventoryUpdate), s.audited("inventory.bulk_availability", authorization.ObjectInventory), s.BulkSetAvailability)

	// -------- Orders --------
	admin.GET("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionView), s.ListOrders)
	admin.GET("/orders/:id", s.authorize(authorization.ObjectOrder, authorization.ActionView), s.GetOrderByID)
	admin.POST("/orders/:id/ship", s.authorize(authorization.ObjectOrder, authorization.ActionOrderFulfill), s.audited("order.ship", authorization.ObjectOrder), s.ShipOrder)
	admin.POST("/orders/:id/deliver", s.authorize(authorization.ObjectOrder, authorization.ActionOrderFulfill), s.audited("order.deliver", authorization.ObjectOrder), s.DeliverOrder)
	admin.POST("/orders/:id/cancel", s.authorize(authorization.ObjectOrder, authorization.ActionOrderCancel), s.audited(authorization.ActionOrderCancel, authorization.ObjectOrder), s.CancelOrder)
	admin.POST("/orders/:id/refund", s.authorize(authorization.ObjectOrder, authorization.ActionOrderRefund), s.audited(authorization.ActionOrderRefund, authorization.ObjectOrder), s.RefundOrder)
	admin.GET("/orders/:id/receipt", s.authorize(authorization.ObjectOrder, authorization.ActionReceiptDownload), s.DownloadReceipt)

	// -------- Disputes --------
	admin.POST("/disputes/:id/evidence", s.authorize(authorization.ObjectDispute, authorization.ActionDisputeEvidence), s.audited(authorization.ActionDisputeEvidence, authorization.ObjectDispute), s.SubmitDisputeEvidence)

	// -------- Customers --------
	admin.GET("/customers", s.authorize(authorization.ObjectCustomer, authorization.ActionView), s.ListCustomers)
	admin.GET("/customers/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionView), s.GetCustomerByID)

	// -------- Reporting --------
	admin.GET("/stats", s.authorize(authorization.ObjectReport, authorization.ActionView), s.GetStats)
	admin.GET("/reports/revenue", s.authorize(authorization.ObjectReport, authorization.ActionView), s.GetRevenueReport)
	admin.GET("/reports/top-sellers", s.authorize(authorization.ObjectReport, authorization.ActionView), s.GetTopSellers)

	// -------- Audit --------
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionView), s.ListAuditLogs)

	// -------- Uploads --------
	admin.POST("/uploads/images", s.authorize(authorization.ObjectUpload, authorization.ActionUploadImage), s.audited(authorization.ActionUploadImage, authorization.ObjectUpload), s.UploadImage)
}
