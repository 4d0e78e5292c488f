package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"shashin/internal/camera"
	"shashin/internal/capture"
	"shashin/internal/catalog"
	"shashin/internal/metrics"
)

const (
	// shutdownTimeout はグレースフルシャットダウンの待ち時間
	shutdownTimeout = 5 * time.Second
	// defaultMaxVideoDuration はリクエストで指定できる録画時間の上限
	defaultMaxVideoDuration = 5 * time.Minute
)

// Shooter はカメラで撮影する
type Shooter interface {
	Info() camera.Info
	Photo(ctx context.Context, req capture.PhotoRequest) (capture.Result, error)
	Video(ctx context.Context, req capture.VideoRequest) (capture.Result, error)
}

// History は撮影履歴を参照する
type History interface {
	List(ctx context.Context, limit int) ([]catalog.Entry, error)
	Thumbnail(ctx context.Context, id int64) ([]byte, error)
}

// Options はHTTPサーバーの設定
type Options struct {
	Addr             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	SnapshotCache    time.Duration // 同じ写真を返す時間 (0 でキャッシュしない)
	MaxVideoDuration time.Duration

	// リクエストごとの撮影設定の初期値
	Photo capture.PhotoRequest
	Video capture.VideoRequest
}

// Server はリモートシャッターのHTTPサーバー
type Server struct {
	opts       Options
	shooter    Shooter
	history    History
	logger     zerolog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	snapshots  *cache.Cache
	started    time.Time

	// カメラは1台なので撮影は1件ずつ受け付ける
	busy sync.Mutex
}

// New は新しいServerを作成する
// history が nil の場合は撮影履歴のエンドポイントが 503 を返す
func New(shooter Shooter, history History, opts Options, logger zerolog.Logger) *Server {
	if opts.MaxVideoDuration <= 0 {
		opts.MaxVideoDuration = defaultMaxVideoDuration
	}

	s := &Server{
		opts:    opts,
		shooter: shooter,
		history: history,
		logger:  logger.With().Str("component", "server").Logger(),
		started: time.Now(),
	}
	if opts.SnapshotCache > 0 {
		s.snapshots = cache.New(opts.SnapshotCache, opts.SnapshotCache)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.engine,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/photo", s.handlePhoto)
	api.POST("/video", s.handleVideo)
	api.GET("/captures", s.handleCaptures)
	api.GET("/captures/:id/thumbnail", s.handleThumbnail)
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// accessLog はリクエストをログとメトリクスに記録する
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, fmt.Sprint(status)).Inc()

		s.logger.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).
			Int("status", status).Dur("latency", time.Since(start)).Msg("リクエストを処理しました")
	}
}

// Start はサーバーを起動し、ctx がキャンセルされるとシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("停止要求を受信しました")
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info().Msg("サーバーが正常にシャットダウンされました")
	return nil
}
