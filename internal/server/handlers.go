package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"shashin/internal/camera"
	"shashin/internal/capture"
	"shashin/internal/catalog"
	"shashin/internal/metrics"
)

// snapshotKey は写真のキャッシュのキー
const snapshotKey = "photo"

// HealthResponse はヘルスチェックの応答
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はシステム状態の応答
type StatusResponse struct {
	Status    string      `json:"status"`
	Camera    camera.Info `json:"camera"`
	Busy      bool        `json:"busy"`
	Uptime    string      `json:"uptime"`
	Timestamp time.Time   `json:"timestamp"`
}

// CaptureResponse は撮影の応答
type CaptureResponse struct {
	capture.Result
	Cached bool `json:"cached"`
}

// CapturesResponse は撮影履歴の応答
type CapturesResponse struct {
	Captures []catalog.Entry `json:"captures"`
}

// ErrorResponse はエラーの応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	busy := !s.busy.TryLock()
	if !busy {
		s.busy.Unlock()
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status:    "running",
		Camera:    s.shooter.Info(),
		Busy:      busy,
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		Timestamp: time.Now(),
	})
}

// handlePhoto は写真を撮影する
// キャッシュの有効期間内は直前の写真を返す
func (s *Server) handlePhoto(c *gin.Context) {
	if s.snapshots != nil {
		if cached, found := s.snapshots.Get(snapshotKey); found {
			metrics.SnapshotCacheHits.Inc()
			s.logger.Debug().Msg("キャッシュした写真を返します")
			c.JSON(http.StatusOK, CaptureResponse{Result: cached.(capture.Result), Cached: true})
			return
		}
	}

	if !s.busy.TryLock() {
		respondError(c, http.StatusConflict, "camera_busy", "カメラは撮影中です", nil)
		return
	}
	defer s.busy.Unlock()

	result, err := s.shooter.Photo(c.Request.Context(), s.opts.Photo)
	if err != nil {
		s.logger.Error().Err(err).Msg("写真の撮影に失敗しました")
		respondError(c, statusFor(err), "capture_failed", "写真の撮影に失敗しました", err)
		return
	}

	if s.snapshots != nil {
		s.snapshots.Set(snapshotKey, result, cache.DefaultExpiration)
	}
	c.JSON(http.StatusOK, CaptureResponse{Result: result})
}

// handleVideo は duration 秒の動画を録画する
func (s *Server) handleVideo(c *gin.Context) {
	req := s.opts.Video
	if d := c.Query("duration"); d != "" {
		seconds, err := strconv.ParseFloat(d, 64)
		if err != nil || seconds <= 0 {
			respondError(c, http.StatusBadRequest, "invalid_duration", "duration は正の秒数で指定してください", nil)
			return
		}
		req.Duration = time.Duration(seconds * float64(time.Second))
	}
	if req.Duration <= 0 || req.Duration > s.opts.MaxVideoDuration {
		respondError(c, http.StatusBadRequest, "invalid_duration",
			"録画時間は "+s.opts.MaxVideoDuration.String()+" 以内で指定してください", nil)
		return
	}

	if !s.busy.TryLock() {
		respondError(c, http.StatusConflict, "camera_busy", "カメラは撮影中です", nil)
		return
	}
	defer s.busy.Unlock()

	result, err := s.shooter.Video(c.Request.Context(), req)
	if err != nil {
		s.logger.Error().Err(err).Msg("録画に失敗しました")
		if errors.Is(err, capture.ErrTranscode) {
			// H.264 は保存されている
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "transcode_failed",
				"message":   err.Error(),
				"path":      result.Path,
				"timestamp": time.Now(),
			})
			return
		}
		respondError(c, statusFor(err), "capture_failed", "録画に失敗しました", err)
		return
	}
	c.JSON(http.StatusOK, CaptureResponse{Result: result})
}

// handleCaptures は撮影履歴を新しい順に返す
func (s *Server) handleCaptures(c *gin.Context) {
	if s.history == nil {
		respondError(c, http.StatusServiceUnavailable, "catalog_disabled", "撮影履歴は無効です", nil)
		return
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "invalid_limit", "limit は正の整数で指定してください", nil)
			return
		}
		limit = n
	}

	entries, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "catalog_error", "撮影履歴の取得に失敗しました", err)
		return
	}
	c.JSON(http.StatusOK, CapturesResponse{Captures: entries})
}

// handleThumbnail は写真のサムネイルを返す
func (s *Server) handleThumbnail(c *gin.Context) {
	if s.history == nil {
		respondError(c, http.StatusServiceUnavailable, "catalog_disabled", "撮影履歴は無効です", nil)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_id", "ID は整数で指定してください", nil)
		return
	}

	data, err := s.history.Thumbnail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "サムネイルが見つかりません", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "catalog_error", "サムネイルの取得に失敗しました", err)
		return
	}

	c.Header("Cache-Control", "max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// statusFor は撮影エラーをHTTPステータスに変換する
func statusFor(err error) int {
	switch {
	case errors.Is(err, camera.ErrNoCamera):
		return http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrUnsupportedFormat),
		errors.Is(err, camera.ErrInvalidRotation),
		errors.Is(err, camera.ErrUnsupportedRotation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, code, message string, err error) {
	resp := ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(status, resp)
}
