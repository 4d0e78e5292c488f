package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// stopTimeout は SIGINT 送信後に rpicam の終了を待つ時間
const stopTimeout = 5 * time.Second

// StillOptions は rpicam-still の撮影オプション
type StillOptions struct {
	Settings
	Format  string        // jpg または png
	Quality int           // JPEG品質
	Warmup  time.Duration // 撮影までのプレビュー時間
	Preview bool          // プレビューウィンドウを表示する
}

// VideoOptions は rpicam-vid の録画オプション
type VideoOptions struct {
	Settings
	Bitrate  int           // H.264 のビットレート (bps)
	Duration time.Duration // 0 で停止されるまで録画
	Preview  bool
}

// PiCamera は rpicam-apps を子プロセスとして実行して Raspberry Pi カメラを操作する
type PiCamera struct {
	StillBin string
	VidBin   string
	logger   zerolog.Logger
}

// NewPiCamera は新しいPiCameraを作成する
func NewPiCamera(logger zerolog.Logger) *PiCamera {
	return &PiCamera{
		StillBin: lookupBin("rpicam-still", "libcamera-still"),
		VidBin:   lookupBin("rpicam-vid", "libcamera-vid"),
		logger:   logger.With().Str("component", "picamera").Logger(),
	}
}

// lookupBin は見つかった最初の実行ファイル名を返す
func lookupBin(names ...string) string {
	for _, name := range names {
		if _, err := exec.LookPath(name); err == nil {
			return name
		}
	}
	return names[0]
}

// Still は静止画を1枚撮影して path に保存する
func (c *PiCamera) Still(ctx context.Context, path string, opts StillOptions) error {
	args, err := StillArgs(path, opts)
	if err != nil {
		return err
	}

	c.logger.Debug().Strs("args", args).Msg("rpicam-still を実行します")
	output, err := exec.CommandContext(ctx, c.StillBin, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("静止画の撮影に失敗: %w (output: %s)", err, lastLines(output, 5))
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("撮影した画像が見つかりません: %w", err)
	}
	return nil
}

// Record は H.264 の生ストリームを path に録画する
// ctx がキャンセルされた場合は rpicam-vid に SIGINT を送って録画を終わらせ、interrupted を true で返す
func (c *PiCamera) Record(ctx context.Context, path string, opts VideoOptions) (interrupted bool, err error) {
	args, err := VideoArgs(path, opts)
	if err != nil {
		return false, err
	}

	c.logger.Debug().Strs("args", args).Msg("rpicam-vid を実行します")
	cmd := exec.Command(c.VidBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	interrupted, err = RunInterruptible(ctx, cmd)
	if err != nil {
		return interrupted, fmt.Errorf("録画に失敗: %w (output: %s)", err, lastLines(stderr.Bytes(), 5))
	}
	return interrupted, nil
}

// StreamMJPEG はプレビュー用に MJPEG を標準出力へ流す rpicam-vid を起動する
// 呼び出し側は返された ReadCloser を読み終えたら stop を呼ぶ
func (c *PiCamera) StreamMJPEG(s Settings) (stream io.ReadCloser, stop func() error, err error) {
	cmd := exec.Command(c.VidBin, PreviewArgs(s)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("%s の起動に失敗: %w", c.VidBin, err)
	}

	stop = func() error {
		return stopProcess(cmd)
	}
	return stdout, stop, nil
}

// RunInterruptible は cmd を実行し、ctx のキャンセル時には SIGINT で穏やかに停止させる
func RunInterruptible(ctx context.Context, cmd *exec.Cmd) (interrupted bool, err error) {
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("プロセスの起動に失敗: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return false, err
	case <-ctx.Done():
	}

	_ = cmd.Process.Signal(syscall.SIGINT)
	select {
	case <-done:
		// SIGINT での終了コードは問わない
		return true, nil
	case <-time.After(stopTimeout):
		_ = cmd.Process.Kill()
		<-done
		return true, errors.New("プロセスが停止しないため強制終了しました")
	}
}

// stopProcess は SIGINT を送り、終了しなければ強制終了する
func stopProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGINT)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout):
		_ = cmd.Process.Kill()
		<-done
		return errors.New("プロセスが停止しないため強制終了しました")
	}
}

// StillArgs は rpicam-still の引数を作る
func StillArgs(path string, opts StillOptions) ([]string, error) {
	switch opts.Format {
	case "jpg", "png":
	default:
		return nil, fmt.Errorf("サポートされていない画像フォーマット: %q", opts.Format)
	}

	args := []string{
		"-o", path,
		"--width", strconv.Itoa(opts.Width),
		"--height", strconv.Itoa(opts.Height),
		"--encoding", opts.Format,
	}
	// rpicam-still の -t 0 はプレビューを止めないため、待ち時間が無ければすぐ撮影する
	if opts.Warmup > 0 {
		args = append(args, "-t", strconv.FormatInt(opts.Warmup.Milliseconds(), 10))
	} else {
		args = append(args, "--immediate")
	}
	if opts.Format == "jpg" && opts.Quality > 0 {
		args = append(args, "-q", strconv.Itoa(opts.Quality))
	}

	orient, err := orientationArgs(opts.Settings)
	if err != nil {
		return nil, err
	}
	args = append(args, orient...)

	if !opts.Preview {
		args = append(args, "-n")
	}
	return args, nil
}

// VideoArgs は rpicam-vid の録画引数を作る
func VideoArgs(path string, opts VideoOptions) ([]string, error) {
	args := []string{
		"-o", path,
		"--codec", "h264",
		"--width", strconv.Itoa(opts.Width),
		"--height", strconv.Itoa(opts.Height),
		"--bitrate", strconv.Itoa(opts.Bitrate),
		"-t", strconv.FormatInt(opts.Duration.Milliseconds(), 10),
	}
	if opts.FPS > 0 {
		args = append(args, "--framerate", strconv.Itoa(opts.FPS))
	}

	orient, err := orientationArgs(opts.Settings)
	if err != nil {
		return nil, err
	}
	args = append(args, orient...)

	if !opts.Preview {
		args = append(args, "-n")
	}
	return args, nil
}

// PreviewArgs は MJPEG を標準出力へ流す rpicam-vid の引数を作る
// 反転と回転はプレビュー側で行う
func PreviewArgs(s Settings) []string {
	args := []string{
		"-t", "0",
		"-n",
		"--codec", "mjpeg",
		"--width", strconv.Itoa(s.Width),
		"--height", strconv.Itoa(s.Height),
	}
	if s.FPS > 0 {
		args = append(args, "--framerate", strconv.Itoa(s.FPS))
	}
	return append(args, "-o", "-")
}

// orientationArgs は反転と回転の引数を作る
func orientationArgs(s Settings) ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var args []string
	if s.HFlip {
		args = append(args, "--hflip")
	}
	if s.VFlip {
		args = append(args, "--vflip")
	}

	switch s.Rotation {
	case 0:
	case 180:
		args = append(args, "--rotation", "180")
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedRotation, s.Rotation)
	}
	return args, nil
}

// lastLines は出力の末尾 n 行を返す
func lastLines(output []byte, n int) string {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return string(bytes.Join(lines, []byte("\n")))
}
