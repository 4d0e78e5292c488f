package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shashin/internal/camera"
	"shashin/internal/capture"
	"shashin/internal/catalog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeShooter は撮影回数を数えるテスト用の撮影機
type fakeShooter struct {
	mu        sync.Mutex
	photos    int
	videos    int
	err       error
	lastVideo capture.VideoRequest
	block     chan struct{} // nil でなければ閉じられるまで撮影を終えない
}

func (f *fakeShooter) Info() camera.Info {
	return camera.Info{Backend: camera.BackendPicamera, Model: "imx708"}
}

func (f *fakeShooter) Photo(context.Context, capture.PhotoRequest) (capture.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos++
	if f.err != nil {
		return capture.Result{}, f.err
	}
	return capture.Result{ID: fmt.Sprintf("photo-%d", f.photos), Kind: catalog.KindPhoto, Path: "/tmp/photo.jpg"}, nil
}

func (f *fakeShooter) Video(_ context.Context, req capture.VideoRequest) (capture.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos++
	f.lastVideo = req
	if f.err != nil {
		return capture.Result{Path: "/tmp/video.h264"}, f.err
	}
	return capture.Result{ID: "video-1", Kind: catalog.KindVideo, Path: "/tmp/video.mp4"}, nil
}

// fakeHistory は固定の撮影履歴を返す
type fakeHistory struct {
	entries []catalog.Entry
	thumbs  map[int64][]byte
	limit   int
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]catalog.Entry, error) {
	f.limit = limit
	return f.entries, nil
}

func (f *fakeHistory) Thumbnail(_ context.Context, id int64) ([]byte, error) {
	if data, ok := f.thumbs[id]; ok {
		return data, nil
	}
	return nil, catalog.ErrNotFound
}

func newTestServer(shooter Shooter, history History, opts Options) *Server {
	opts.Video.FPS = 30
	return New(shooter, history, opts, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(&fakeShooter{}, nil, Options{})

	w := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, w).Status)

	w = do(t, s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[StatusResponse](t, w)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "imx708", status.Camera.Model)
	assert.False(t, status.Busy)
}

func TestPhoto_SnapshotCache(t *testing.T) {
	shooter := &fakeShooter{}
	s := newTestServer(shooter, nil, Options{SnapshotCache: time.Minute})

	first := do(t, s, http.MethodPost, "/api/photo")
	require.Equal(t, http.StatusOK, first.Code)
	assert.False(t, decode[CaptureResponse](t, first).Cached)

	second := do(t, s, http.MethodPost, "/api/photo")
	require.Equal(t, http.StatusOK, second.Code)
	resp := decode[CaptureResponse](t, second)
	assert.True(t, resp.Cached)
	assert.Equal(t, "photo-1", resp.ID, "キャッシュした写真と異なります")
	assert.Equal(t, 1, shooter.photos, "キャッシュ期間内に再撮影しています")
}

func TestPhoto_NoCache(t *testing.T) {
	shooter := &fakeShooter{}
	s := newTestServer(shooter, nil, Options{})

	do(t, s, http.MethodPost, "/api/photo")
	do(t, s, http.MethodPost, "/api/photo")
	assert.Equal(t, 2, shooter.photos)
}

func TestPhoto_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"カメラなし", camera.ErrNoCamera, http.StatusServiceUnavailable},
		{"回転非対応", camera.ErrUnsupportedRotation, http.StatusBadRequest},
		{"その他", errors.New("rpicam-still failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeShooter{err: tt.err}, nil, Options{SnapshotCache: time.Minute})
			w := do(t, s, http.MethodPost, "/api/photo")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "capture_failed", decode[ErrorResponse](t, w).Error)

			// 失敗はキャッシュしない
			_, found := s.snapshots.Get(snapshotKey)
			assert.False(t, found)
		})
	}
}

func TestPhoto_Busy(t *testing.T) {
	shooter := &fakeShooter{block: make(chan struct{})}
	s := newTestServer(shooter, nil, Options{})

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- do(t, s, http.MethodPost, "/api/photo")
	}()

	// 1件目が撮影を始めるまで待つ
	require.Eventually(t, func() bool {
		return decode[StatusResponse](t, do(t, s, http.MethodGet, "/api/status")).Busy
	}, time.Second, 5*time.Millisecond)

	w := do(t, s, http.MethodPost, "/api/video?duration=1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "camera_busy", decode[ErrorResponse](t, w).Error)

	close(shooter.block)
	assert.Equal(t, http.StatusOK, (<-done).Code)
}

func TestVideo(t *testing.T) {
	t.Run("録画時間の指定", func(t *testing.T) {
		shooter := &fakeShooter{}
		s := newTestServer(shooter, nil, Options{})
		w := do(t, s, http.MethodPost, "/api/video?duration=2.5")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2500*time.Millisecond, shooter.lastVideo.Duration)
		assert.Equal(t, 30, shooter.lastVideo.FPS)
	})

	t.Run("不正な録画時間", func(t *testing.T) {
		for _, q := range []string{"", "?duration=0", "?duration=-1", "?duration=abc", "?duration=3600"} {
			shooter := &fakeShooter{}
			s := newTestServer(shooter, nil, Options{})
			w := do(t, s, http.MethodPost, "/api/video"+q)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
			assert.Zero(t, shooter.videos, q)
		}
	})

	t.Run("変換失敗はH.264のパスを返す", func(t *testing.T) {
		s := newTestServer(&fakeShooter{err: fmt.Errorf("%w: boom", capture.ErrTranscode)}, nil, Options{})
		w := do(t, s, http.MethodPost, "/api/video?duration=1")
		require.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode[map[string]any](t, w)
		assert.Equal(t, "transcode_failed", body["error"])
		assert.Equal(t, "/tmp/video.h264", body["path"])
	})
}

func TestCaptures(t *testing.T) {
	history := &fakeHistory{
		entries: []catalog.Entry{{ID: 2, Kind: catalog.KindVideo}, {ID: 1, Kind: catalog.KindPhoto}},
		thumbs:  map[int64][]byte{1: []byte("\xff\xd8thumb\xff\xd9")},
	}
	s := newTestServer(&fakeShooter{}, history, Options{})

	w := do(t, s, http.MethodGet, "/api/captures?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[CapturesResponse](t, w).Captures, 2)
	assert.Equal(t, 5, history.limit)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/captures?limit=x").Code)

	w = do(t, s, http.MethodGet, "/api/captures/1/thumbnail")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, history.thumbs[1], w.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/captures/2/thumbnail").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/captures/abc/thumbnail").Code)
}

func TestCaptures_Disabled(t *testing.T) {
	s := newTestServer(&fakeShooter{}, nil, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/captures").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/captures/1/thumbnail").Code)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(&fakeShooter{}, nil, Options{})
	do(t, s, http.MethodGet, "/health")

	w := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `shashin_http_requests_total{method="GET",path="/health",status="200"}`)
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	// 空いているポートを探す
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := newTestServer(&fakeShooter{}, nil, Options{Addr: addr, ReadTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond, "サーバーが起動しません")

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}
