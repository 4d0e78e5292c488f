package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shashin/internal/camera"
	"shashin/internal/catalog"
	"shashin/internal/metrics"
)

var (
	// ErrUnsupportedFormat は静止画のフォーマットが jpg/png 以外の場合のエラー
	ErrUnsupportedFormat = errors.New("サポートされていない画像フォーマット")
	// ErrTranscode は MP4 への変換に失敗した場合のエラー (生の H.264 は残る)
	ErrTranscode = errors.New("MP4への変換に失敗しました。ffmpegがインストールされているか確認してください (sudo apt install ffmpeg)")
)

// transcodeTimeout は録画中断後の変換に使う時間
const transcodeTimeout = 10 * time.Minute

// Transcoder は H.264 の生ストリームを MP4 に変換する
type Transcoder interface {
	ToMP4(ctx context.Context, src, dst string, fps int, keepSource bool) error
}

// Catalog は撮影記録を保存する
type Catalog interface {
	Add(ctx context.Context, e catalog.Entry) (int64, error)
}

// PhotoRequest は静止画撮影の要求
type PhotoRequest struct {
	OutputDir string
	Width     int
	Height    int
	Format    string // jpg または png
	Quality   int
	Warmup    time.Duration
	Preview   bool
	// Name が空でなければ自動のファイル名の代わりに使う
	Name string
}

// VideoRequest は動画撮影の要求
type VideoRequest struct {
	OutputDir string
	Width     int
	Height    int
	FPS       int
	Duration  time.Duration // 0 で停止されるまで録画
	Bitrate   int
	KeepRaw   bool
	Preview   bool
}

// Result は撮影の結果
type Result struct {
	ID          string         `json:"id"`
	CatalogID   int64          `json:"catalog_id,omitempty"`
	Kind        catalog.Kind   `json:"kind"`
	Path        string         `json:"path"`
	Backend     camera.Backend `json:"backend"`
	Model       string         `json:"model"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Size        int64          `json:"size"`
	Frames      int            `json:"frames,omitempty"`
	Elapsed     time.Duration  `json:"elapsed"`
	Interrupted bool           `json:"interrupted,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Service はカメラで撮影してファイルに保存する
// カメラは1台なので撮影は1件ずつ実行する
type Service struct {
	driver      camera.Driver
	transcoder  Transcoder
	catalog     Catalog
	orientation camera.Settings
	logger      zerolog.Logger
	now         func() time.Time

	mu sync.Mutex
}

// NewService は新しいServiceを作成する
// catalog が nil の場合は撮影記録を保存しない
func NewService(driver camera.Driver, transcoder Transcoder, cat Catalog, orientation camera.Settings, logger zerolog.Logger) *Service {
	return &Service{
		driver:      driver,
		transcoder:  transcoder,
		catalog:     cat,
		orientation: orientation,
		logger:      logger.With().Str("component", "capture").Logger(),
		now:         time.Now,
	}
}

// Info は使用中のカメラの情報を返す
func (s *Service) Info() camera.Info {
	return s.driver.Info()
}

// Photo は静止画を1枚撮影して保存する
func (s *Service) Photo(ctx context.Context, req PhotoRequest) (Result, error) {
	switch req.Format {
	case "jpg", "png":
	default:
		return Result{}, fmt.Errorf("%w: %q (jpg または png)", ErrUnsupportedFormat, req.Format)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.driver.Info()
	started := s.now()
	name := req.Name
	if name == "" {
		name = FileName("photo", req.Format, started)
	}
	path, err := prepareOutput(req.OutputDir, name)
	if err != nil {
		return Result{}, err
	}

	id := uuid.NewString()
	log := s.logger.With().Str("id", id).Logger()
	log.Info().Str("backend", string(info.Backend)).Str("model", info.Model).
		Int("width", req.Width).Int("height", req.Height).Msg("写真を撮影します")

	opts := camera.StillOptions{
		Settings: s.settings(req.Width, req.Height, 0),
		Format:   req.Format,
		Quality:  req.Quality,
		Warmup:   req.Warmup,
		Preview:  req.Preview,
	}
	if err := s.driver.Photo(ctx, path, opts); err != nil {
		s.observe(catalog.KindPhoto, info.Backend, started, err)
		return Result{}, fmt.Errorf("写真の撮影に失敗: %w", err)
	}

	result := s.newResult(id, catalog.KindPhoto, path, info, req.Width, req.Height, started)
	s.observe(catalog.KindPhoto, info.Backend, started, nil)
	s.record(ctx, &result, 0)

	log.Info().Str("path", result.Path).Int64("size", result.Size).Msg("写真を保存しました")
	return result, nil
}

// Video は動画を録画して MP4 で保存する
// ctx がキャンセルされた場合もそこまでの録画を保存して Interrupted を true で返す
// 生の H.264 の変換に失敗した場合は H.264 のパスを持つ Result と ErrTranscode を返す
func (s *Service) Video(ctx context.Context, req VideoRequest) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.driver.Info()
	started := s.now()
	path, err := prepareOutput(req.OutputDir, FileName("video", "mp4", started))
	if err != nil {
		return Result{}, err
	}

	id := uuid.NewString()
	log := s.logger.With().Str("id", id).Logger()
	event := log.Info().Str("backend", string(info.Backend)).Str("model", info.Model).
		Int("width", req.Width).Int("height", req.Height).Int("fps", req.FPS)
	if req.Duration > 0 {
		event.Dur("duration", req.Duration).Msg("録画を開始します")
	} else {
		event.Msg("録画を開始します (停止するまで録画)")
	}

	opts := camera.VideoOptions{
		Settings: s.settings(req.Width, req.Height, req.FPS),
		Bitrate:  req.Bitrate,
		Duration: req.Duration,
		Preview:  req.Preview,
	}
	rec, err := s.driver.Video(ctx, path, opts)
	if err != nil {
		s.observe(catalog.KindVideo, info.Backend, started, err)
		return Result{}, fmt.Errorf("録画に失敗: %w", err)
	}
	recorded := s.now().Sub(started)
	if rec.Interrupted {
		log.Info().Msg("録画を停止しました")
	}

	var transcodeErr error
	if rec.Raw {
		transcodeErr = s.transcode(ctx, rec.Path, path, req, log)
		if transcodeErr == nil {
			rec.Path = path
		}
	}

	result := s.newResult(id, catalog.KindVideo, rec.Path, info, rec.Width, rec.Height, started)
	result.Frames = rec.Frames
	result.Interrupted = rec.Interrupted
	s.observe(catalog.KindVideo, info.Backend, started, nil)
	s.record(ctx, &result, recorded.Seconds())

	if transcodeErr != nil {
		log.Warn().Str("path", result.Path).Msg("H.264ファイルを残しました")
		return result, transcodeErr
	}

	log.Info().Str("path", result.Path).Int64("size", result.Size).Msg("動画を保存しました")
	return result, nil
}

// transcode は生の H.264 を MP4 に変換する
// 録画が中断された場合でも変換できるよう、呼び出し元のキャンセルは引き継がない
func (s *Service) transcode(ctx context.Context, raw, dst string, req VideoRequest, log zerolog.Logger) error {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcodeTimeout)
	defer cancel()

	log.Info().Str("src", raw).Msg("MP4に変換しています")
	if err := s.transcoder.ToMP4(tctx, raw, dst, req.FPS, req.KeepRaw); err != nil {
		metrics.TranscodeTotal.WithLabelValues(metrics.StatusError).Inc()
		log.Error().Err(err).Msg("MP4への変換に失敗しました")
		return fmt.Errorf("%w: %s: %w", ErrTranscode, raw, err)
	}
	metrics.TranscodeTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	return nil
}

// settings は撮影設定に反転と回転を合わせる
func (s *Service) settings(width, height, fps int) camera.Settings {
	return camera.Settings{
		Width:    width,
		Height:   height,
		FPS:      fps,
		HFlip:    s.orientation.HFlip,
		VFlip:    s.orientation.VFlip,
		Rotation: s.orientation.Rotation,
	}
}

// newResult は保存したファイルから Result を作る
func (s *Service) newResult(id string, kind catalog.Kind, path string, info camera.Info, width, height int, started time.Time) Result {
	result := Result{
		ID:        id,
		Kind:      kind,
		Path:      path,
		Backend:   info.Backend,
		Model:     info.Model,
		Width:     width,
		Height:    height,
		Elapsed:   s.now().Sub(started),
		CreatedAt: started,
	}
	if fi, err := os.Stat(path); err == nil {
		result.Size = fi.Size()
	}
	metrics.CaptureBytes.WithLabelValues(string(kind)).Add(float64(result.Size))
	return result
}

// record は撮影記録を保存する。失敗しても撮影は成功として扱う
func (s *Service) record(ctx context.Context, result *Result, seconds float64) {
	if s.catalog == nil {
		return
	}
	id, err := s.catalog.Add(context.WithoutCancel(ctx), catalog.Entry{
		Kind:      result.Kind,
		Path:      result.Path,
		Backend:   string(result.Backend),
		Model:     result.Model,
		Width:     result.Width,
		Height:    result.Height,
		Size:      result.Size,
		Duration:  seconds,
		CreatedAt: result.CreatedAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("撮影記録の保存に失敗しました")
		return
	}
	result.CatalogID = id
}

// observe は撮影のメトリクスを記録する
func (s *Service) observe(kind catalog.Kind, backend camera.Backend, started time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.CapturesTotal.WithLabelValues(string(kind), string(backend), status).Inc()
	metrics.CaptureDuration.WithLabelValues(string(kind), string(backend)).Observe(s.now().Sub(started).Seconds())
}

// FileName は撮影日時からファイル名を作る (例: photo_20250101_120000.jpg)
func FileName(prefix, ext string, t time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, t.Format("20060102_150405"), ext)
}

// prepareOutput は出力ディレクトリを作成し、既存ファイルと重ならないパスを返す
func prepareOutput(dir, name string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("出力ディレクトリの作成に失敗: %w", err)
	}

	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	for i := 1; exists(path) || exists(rawSibling(path)); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return path, nil
}

// rawSibling は同じ名前の .h264 のパスを返す
func rawSibling(path string) string {
	return path[:len(path)-len(filepath.Ext(path))] + ".h264"
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
