package vision

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"shashin/internal/camera"
)

// OpenCVDriver は USB カメラで撮影する camera.Driver
// 撮影ごとにデバイスを開き、終わったら解放する
type OpenCVDriver struct {
	info   camera.Info
	warmup time.Duration
	logger zerolog.Logger

	newSource func(s camera.Settings, warmup time.Duration) FrameSource
}

// NewOpenCVDriver は新しいOpenCVDriverを作成する
func NewOpenCVDriver(info camera.Info, warmup time.Duration, logger zerolog.Logger) *OpenCVDriver {
	d := &OpenCVDriver{
		info:   info,
		warmup: warmup,
		logger: logger,
	}
	d.newSource = func(s camera.Settings, warmup time.Duration) FrameSource {
		return NewOpenCVSource(d.info, s, warmup, d.logger)
	}
	return d
}

// Info はカメラの情報を返す
func (d *OpenCVDriver) Info() camera.Info {
	return d.info
}

// Photo はフレームを1枚取得して保存する
func (d *OpenCVDriver) Photo(ctx context.Context, path string, opts camera.StillOptions) error {
	warmup := opts.Warmup
	if warmup <= 0 {
		warmup = d.warmup
	}

	src := d.newSource(opts.Settings, warmup)
	if err := src.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("カメラの解放に失敗しました")
		}
	}()

	photo := DefaultPhotoOptions()
	photo.Format = opts.Format
	if opts.Quality > 0 {
		photo.Quality = opts.Quality
	}

	return NewRecorder(opts.Settings, d.logger).Photo(ctx, src, path, photo)
}

// Video は mp4v で path に直接録画する
func (d *OpenCVDriver) Video(ctx context.Context, path string, opts camera.VideoOptions) (camera.Recording, error) {
	src := d.newSource(opts.Settings, d.warmup)
	if err := src.Open(ctx); err != nil {
		return camera.Recording{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("カメラの解放に失敗しました")
		}
	}()

	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}

	stats, err := NewRecorder(opts.Settings, d.logger).Video(ctx, src, path, fps, opts.Duration)
	rec := camera.Recording{
		Path:        path,
		Frames:      stats.Frames,
		Width:       stats.Width,
		Height:      stats.Height,
		Interrupted: stats.Interrupted,
	}
	if err != nil && stats.Frames == 0 {
		return camera.Recording{}, err
	}
	if err != nil {
		// 途中で読めなくなった場合もそこまでの録画は使う
		d.logger.Warn().Err(err).Int("frames", stats.Frames).Msg("録画が途中で終了しました")
		rec.Interrupted = true
	}
	return rec, nil
}

var _ camera.Driver = (*OpenCVDriver)(nil)
