package preview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"shashin/internal/camera"
	"shashin/internal/vision"
)

// WindowTitle はプレビューウィンドウのタイトル
const WindowTitle = "Camera Preview - Press Q to quit"

// StopReason はプレビューが終了した理由
type StopReason string

const (
	StopKey       StopReason = "key"        // q キー
	StopWindow    StopReason = "window"     // ウィンドウが閉じられた
	StopSignal    StopReason = "signal"     // シグナル (コンテキストのキャンセル)
	StopReadError StopReason = "read_error" // フレームを取得できない
)

// Options はプレビューの設定
type Options struct {
	WindowWidth  int
	WindowHeight int
	FPSInterval  int // FPSを再計算するフレーム数
	ShowFPS      bool
	ShowClock    bool
	Orientation  camera.Settings // 反転と回転
}

// Window はプレビューの表示先
type Window interface {
	Show(img gocv.Mat)
	WaitKey(delay int) int
	Visible() bool
	Resize(width, height int)
	Close()
}

// cvWindow は gocv.Window を Window として使う
type cvWindow struct {
	w *gocv.Window
}

func (c *cvWindow) Show(img gocv.Mat)        { c.w.IMShow(img) }
func (c *cvWindow) WaitKey(delay int) int    { return c.w.WaitKey(delay) }
func (c *cvWindow) Resize(width, height int) { c.w.ResizeWindow(width, height) }
func (c *cvWindow) Close()                   { c.w.Close() }

// Visible はウィンドウが閉じられていなければ true を返す
func (c *cvWindow) Visible() bool {
	return c.w.GetWindowProperty(gocv.WindowPropertyVisible) >= 1
}

// Preview はカメラ映像をウィンドウに表示する
type Preview struct {
	source vision.FrameSource
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	newWindow func(title string) Window
}

// New は新しいPreviewを作成する
func New(source vision.FrameSource, opts Options, logger zerolog.Logger) *Preview {
	return &Preview{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "preview").Logger(),
		now:    time.Now,
		newWindow: func(title string) Window {
			return &cvWindow{w: gocv.NewWindow(title)}
		},
	}
}

// Run は停止条件が満たされるまでフレームを表示し、終了理由を返す
// 終了時は必ずカメラを解放してウィンドウを閉じる
func (p *Preview) Run(ctx context.Context) (StopReason, error) {
	if err := p.opts.Orientation.Validate(); err != nil {
		return "", err
	}
	if err := p.source.Open(ctx); err != nil {
		return "", fmt.Errorf("カメラを開けません: %w", err)
	}
	defer func() {
		if err := p.source.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("カメラの解放に失敗しました")
		}
	}()

	window := p.newWindow(WindowTitle)
	defer window.Close()
	if p.opts.WindowWidth > 0 && p.opts.WindowHeight > 0 {
		window.Resize(p.opts.WindowWidth, p.opts.WindowHeight)
	}

	info := p.source.Info()
	p.logger.Info().Str("backend", string(info.Backend)).Str("model", info.Model).
		Msg("プレビューを開始しました。qキーまたはウィンドウを閉じると終了します")

	frame := gocv.NewMat()
	defer frame.Close()

	meter := vision.NewFPSMeter(p.opts.FPSInterval)
	frames := 0

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Int("frames", frames).Msg("シグナルを受信したためプレビューを終了します")
			return StopSignal, nil
		default:
		}

		if err := p.source.Read(&frame); err != nil {
			p.logger.Error().Err(err).Msg("フレーム取得エラー")
			if errors.Is(err, vision.ErrFrameRead) {
				return StopReadError, err
			}
			return StopReadError, fmt.Errorf("%w: %v", vision.ErrFrameRead, err)
		}
		frames++

		if err := vision.Transform(&frame, p.opts.Orientation); err != nil {
			return "", err
		}

		fps := meter.Tick()
		if p.opts.ShowFPS && fps > 0 {
			vision.DrawFPS(&frame, fps)
		}
		if p.opts.ShowClock {
			vision.DrawTimestamp(&frame, p.now())
		}

		window.Show(frame)

		if key := window.WaitKey(1); isQuitKey(key) {
			p.logger.Info().Int("frames", frames).Msg("qキーが押されたためプレビューを終了します")
			return StopKey, nil
		}

		if !window.Visible() {
			p.logger.Info().Int("frames", frames).Msg("ウィンドウが閉じられたためプレビューを終了します")
			return StopWindow, nil
		}
	}
}

// isQuitKey は q または Q かを判定する
func isQuitKey(key int) bool {
	if key < 0 {
		return false
	}
	key &= 0xFF
	return key == 'q' || key == 'Q'
}
