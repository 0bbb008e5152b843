package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"towbid/adapters/auth"
	"towbid/adapters/eventbus"
	"towbid/adapters/s3"
	"towbid/adapters/store"
	"towbid/auction"
)

// Dependencies 是伺服器需要的外部協作者，由組裝端建好後注入
type Dependencies struct {
	Store    *store.Store
	Auth     *auth.Provider
	Uploader *s3.Uploader
	Bus      *eventbus.Channel
}

type serverOptions struct {
	logger *slog.Logger
}

type ServerOption func(*serverOptions)

// WithServerLogger 設置日誌記錄器
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// Server 對外提供拍賣平台的HTTP介面，包含SSE事件串流
type Server struct {
	config    ServerConfig
	deps      Dependencies
	svc       *auction.Service
	lifecycle *auction.Lifecycle
	router    *gin.Engine
	httpSrv   *http.Server
	logger    *slog.Logger
}

// NewServer 建立伺服器，Uploader 與 Bus 允許為 nil，
// 缺少時對應的端點會回覆 503 或不發佈事件
func NewServer(config ServerConfig, deps Dependencies, opts ...ServerOption) (*Server, error) {
	const op = "NewServer"
	if deps.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if deps.Auth == nil {
		return nil, errors.New("auth provider cannot be nil")
	}

	options := serverOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	var publisher auction.Publisher
	if deps.Bus != nil {
		publisher = deps.Bus
	}
	svc, err := auction.NewService(deps.Store, publisher,
		auction.WithServiceLogger(options.logger))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create auction service, err=%w", op, err)
	}
	lifecycle, err := auction.NewLifecycle(deps.Store,
		auction.WithLifecycleLogger(options.logger))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create auction lifecycle, err=%w", op, err)
	}

	srv := &Server{
		config:    config,
		deps:      deps,
		svc:       svc,
		lifecycle: lifecycle,
		logger:    options.logger.With(slog.String("caller", "Server")),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

func (srv *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")

	// 認證
	api.POST("/auth/signup", srv.postSignUp)
	api.POST("/auth/signin", srv.postSignIn)
	api.GET("/auth/me", srv.authRequired(), srv.getMe)
	api.POST("/auth/password", srv.authRequired(), srv.postChangePassword)

	// 拍賣
	api.GET("/auctions", srv.getAuctions)
	api.GET("/auctions/:id", srv.getAuction)
	api.GET("/auctions/:id/bids", srv.getAuctionBids)
	api.POST("/auctions", srv.authRequired(), srv.postAuction)
	api.PATCH("/auctions/:id", srv.authRequired(), srv.patchAuction)
	api.PATCH("/auctions/:id/status", srv.authRequired(), srv.adminOnly(), srv.patchAuctionStatus)
	api.POST("/auctions/:id/bids", srv.authRequired(), srv.postBid)
	api.POST("/auctions/:id/checkout", srv.authRequired(), srv.postCheckout)

	// 追蹤與通知
	api.POST("/auctions/:id/watch", srv.authRequired(), srv.postWatch)
	api.DELETE("/auctions/:id/watch", srv.authRequired(), srv.deleteWatch)
	api.GET("/me/watched", srv.authRequired(), srv.getWatched)
	api.GET("/me/payments", srv.authRequired(), srv.getPayments)
	api.GET("/me/notifications", srv.authRequired(), srv.getNotifications)
	api.POST("/me/notifications/:id/read", srv.authRequired(), srv.postNotificationRead)
	api.POST("/me/notifications/read-all", srv.authRequired(), srv.postNotificationsReadAll)

	// 車輛與圖片
	api.POST("/vehicles", srv.authRequired(), srv.postVehicle)
	api.GET("/vehicles/:id", srv.getVehicle)
	api.POST("/images", srv.authRequired(), srv.postImage)

	// 身分驗證文件
	api.POST("/verifications", srv.authRequired(), srv.postVerification)
	api.GET("/admin/verifications", srv.authRequired(), srv.adminOnly(), srv.getPendingVerifications)
	api.POST("/admin/verifications/:id/review", srv.authRequired(), srv.adminOnly(), srv.postVerificationReview)

	// 事件串流
	api.GET("/events", srv.getEvents)

	return router
}

// Router 回傳底層的HTTP handler，測試時直接掛進httptest使用
func (srv *Server) Router() http.Handler {
	return srv.router
}

// Start 啟動事件頻道、排程器與HTTP伺服器，會阻塞直到伺服器關閉
func (srv *Server) Start() error {
	const op = "Server.Start"
	if srv.deps.Bus != nil {
		srv.deps.Bus.Connect()
	}
	if err := srv.lifecycle.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start auction lifecycle, err=%w", op, err)
	}

	srv.httpSrv = &http.Server{
		Addr:    srv.config.Addr,
		Handler: srv.router,
	}
	srv.logger.Info("Server listening", slog.String("addr", srv.config.Addr))
	if err := srv.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("[%s] Fail to serve, err=%w", op, err)
	}
	return nil
}

// Close 關閉HTTP伺服器、排程器與事件頻道
func (srv *Server) Close() {
	if srv.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.httpSrv.Shutdown(ctx); err != nil {
			srv.logger.Error("Fail to shutdown http server", slog.Any("error", err))
		}
	}
	if err := srv.lifecycle.Stop(); err != nil {
		srv.logger.Error("Fail to stop auction lifecycle", slog.Any("error", err))
	}
	if srv.deps.Bus != nil {
		srv.deps.Bus.Disconnect()
	}
}
