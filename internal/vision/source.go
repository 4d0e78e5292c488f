package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"shashin/internal/camera"
)

var (
	// ErrFrameRead はフレームを取得できなかった場合のエラー
	ErrFrameRead = errors.New("フレームの取得に失敗")
	// ErrNotOpen は開かれていないソースから読もうとした場合のエラー
	ErrNotOpen = errors.New("カメラが開かれていません")
)

// piFrameTimeout は Raspberry Pi カメラから次のフレームを待つ時間
const piFrameTimeout = 5 * time.Second

// FrameSource はフレームを1枚ずつ読み出すカメラを表す
type FrameSource interface {
	// Open はカメラを開く
	Open(ctx context.Context) error
	// Read は次のフレームを dst に読み込む
	Read(dst *gocv.Mat) error
	// Close はカメラを解放する
	Close() error
	// Info はカメラの情報を返す
	Info() camera.Info
}

// OpenCVSource は OpenCV の VideoCapture で USB カメラを読む
type OpenCVSource struct {
	info     camera.Info
	settings camera.Settings
	warmup   time.Duration
	capture  *gocv.VideoCapture
	logger   zerolog.Logger
}

// NewOpenCVSource は新しいOpenCVSourceを作成する
func NewOpenCVSource(info camera.Info, s camera.Settings, warmup time.Duration, logger zerolog.Logger) *OpenCVSource {
	return &OpenCVSource{
		info:     info,
		settings: s,
		warmup:   warmup,
		logger:   logger.With().Str("component", "opencv").Int("device", info.Index).Logger(),
	}
}

// Open はデバイスを開いて解像度とフレームレートを設定する
func (s *OpenCVSource) Open(ctx context.Context) error {
	capture, err := gocv.OpenVideoCapture(s.info.Index)
	if err != nil {
		return fmt.Errorf("カメラ %d を開けません: %w", s.info.Index, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return fmt.Errorf("%w: デバイス %d", camera.ErrNoCamera, s.info.Index)
	}

	// カメラの起動を待ってから解像度を設定する
	if err := sleepContext(ctx, s.warmup); err != nil {
		_ = capture.Close()
		return err
	}

	if s.settings.Width > 0 && s.settings.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(s.settings.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(s.settings.Height))
	}
	if s.settings.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(s.settings.FPS))
	}

	s.capture = capture
	s.logger.Info().
		Float64("width", capture.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", capture.Get(gocv.VideoCaptureFrameHeight)).
		Msg("USBカメラを開きました")
	return nil
}

// Read は次のフレームを読み込む
func (s *OpenCVSource) Read(dst *gocv.Mat) error {
	if s.capture == nil {
		return ErrNotOpen
	}
	if ok := s.capture.Read(dst); !ok || dst.Empty() {
		return ErrFrameRead
	}
	return nil
}

// Close はデバイスを解放する
func (s *OpenCVSource) Close() error {
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}

// Info はカメラの情報を返す
func (s *OpenCVSource) Info() camera.Info {
	return s.info
}

// PiSource は rpicam-vid の MJPEG 出力をデコードして Raspberry Pi カメラを読む
type PiSource struct {
	info     camera.Info
	settings camera.Settings
	cam      *camera.PiCamera
	logger   zerolog.Logger

	mu     sync.Mutex
	frames chan []byte
	errs   chan error
	stop   func() error
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPiSource は新しいPiSourceを作成する
func NewPiSource(info camera.Info, s camera.Settings, cam *camera.PiCamera, logger zerolog.Logger) *PiSource {
	return &PiSource{
		info:     info,
		settings: s,
		cam:      cam,
		logger:   logger.With().Str("component", "picamera").Logger(),
	}
}

// Open は rpicam-vid を起動してフレームの分割を始める
func (s *PiSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, stop, err := s.cam.StreamMJPEG(s.settings)
	if err != nil {
		return err
	}

	splitCtx, cancel := context.WithCancel(ctx)
	s.frames = make(chan []byte, 2)
	s.errs = make(chan error, 1)
	s.stop = stop
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.frames)
		if err := camera.SplitJPEG(splitCtx, stream, s.frames); err != nil && !errors.Is(err, context.Canceled) {
			s.errs <- err
		}
	}()

	s.logger.Info().Int("width", s.settings.Width).Int("height", s.settings.Height).Msg("Raspberry Piカメラを開きました")
	return nil
}

// Read は次の JPEG フレームをデコードして dst に読み込む
func (s *PiSource) Read(dst *gocv.Mat) error {
	if s.frames == nil {
		return ErrNotOpen
	}

	var data []byte
	select {
	case frame, ok := <-s.frames:
		if !ok {
			select {
			case err := <-s.errs:
				return fmt.Errorf("%w: %v", ErrFrameRead, err)
			default:
				return fmt.Errorf("%w: ストリームが終了しました", ErrFrameRead)
			}
		}
		data = frame
	case <-time.After(piFrameTimeout):
		return fmt.Errorf("%w: タイムアウト", ErrFrameRead)
	}

	decoded, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("%w: JPEGのデコードに失敗: %v", ErrFrameRead, err)
	}
	defer decoded.Close()
	if decoded.Empty() {
		return fmt.Errorf("%w: 空のフレーム", ErrFrameRead)
	}

	decoded.CopyTo(dst)
	return nil
}

// Close は rpicam-vid を停止する
func (s *PiSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return nil
	}

	s.cancel()
	err := s.stop()
	// 分割処理がフレーム送信で止まっている場合に備えて読み捨てる
	go func() {
		for range s.frames {
		}
	}()
	s.wg.Wait()

	s.stop = nil
	return err
}

// Info はカメラの情報を返す
func (s *PiSource) Info() camera.Info {
	return s.info
}

// sleepContext は d だけ待つ。ctx がキャンセルされた場合はその時点で戻る
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	_ FrameSource = (*OpenCVSource)(nil)
	_ FrameSource = (*PiSource)(nil)
)
