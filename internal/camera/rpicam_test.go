package camera

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript はテスト用の実行可能なシェルスクリプトを作成する
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestStillArgs(t *testing.T) {
	opts := StillOptions{
		Settings: Settings{Width: 1920, Height: 1080},
		Format:   "jpg",
		Quality:  90,
		Warmup:   2 * time.Second,
	}

	args, err := StillArgs("/tmp/photo.jpg", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-o", "/tmp/photo.jpg",
		"--width", "1920",
		"--height", "1080",
		"--encoding", "jpg",
		"-t", "2000",
		"-q", "90",
		"-n",
	}, args)
}

func TestStillArgs_Orientation(t *testing.T) {
	opts := StillOptions{
		Settings: Settings{Width: 640, Height: 480, HFlip: true, VFlip: true, Rotation: 180},
		Format:   "png",
		Preview:  true,
	}

	args, err := StillArgs("out.png", opts)
	require.NoError(t, err)
	assert.Contains(t, args, "--hflip")
	assert.Contains(t, args, "--vflip")
	assert.Contains(t, args, "--rotation")
	assert.NotContains(t, args, "-n", "プレビュー有効時に -n が付いています")
	assert.NotContains(t, args, "-q", "PNGに品質指定が付いています")
	// 待ち時間が無ければすぐ撮影する
	assert.Contains(t, args, "--immediate")
	assert.NotContains(t, args, "-t")
}

func TestStillArgs_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		opts    StillOptions
		wantErr error
	}{
		{"90度回転", StillOptions{Settings: Settings{Rotation: 90}, Format: "jpg"}, ErrUnsupportedRotation},
		{"270度回転", StillOptions{Settings: Settings{Rotation: 270}, Format: "jpg"}, ErrUnsupportedRotation},
		{"無効な回転", StillOptions{Settings: Settings{Rotation: 45}, Format: "jpg"}, ErrInvalidRotation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := StillArgs("x.jpg", tc.opts)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err := StillArgs("x.bmp", StillOptions{Format: "bmp"})
	assert.Error(t, err, "未対応フォーマットでエラーになりません")
}

func TestVideoArgs(t *testing.T) {
	opts := VideoOptions{
		Settings: Settings{Width: 1280, Height: 720, FPS: 30},
		Bitrate:  10000000,
		Duration: 10 * time.Second,
	}

	args, err := VideoArgs("/tmp/video.h264", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-o", "/tmp/video.h264",
		"--codec", "h264",
		"--width", "1280",
		"--height", "720",
		"--bitrate", "10000000",
		"-t", "10000",
		"--framerate", "30",
		"-n",
	}, args)

	// 録画時間 0 は停止されるまで録画
	opts.Duration = 0
	args, err = VideoArgs("v.h264", opts)
	require.NoError(t, err)
	assert.Contains(t, args, "0")
}

func TestPreviewArgs(t *testing.T) {
	args := PreviewArgs(Settings{Width: 1920, Height: 1080, HFlip: true})
	assert.Equal(t, []string{
		"-t", "0",
		"-n",
		"--codec", "mjpeg",
		"--width", "1920",
		"--height", "1080",
		"-o", "-",
	}, args)
}

func TestRunInterruptible(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep コマンドがありません")
	}

	t.Run("正常終了", func(t *testing.T) {
		interrupted, err := RunInterruptible(context.Background(), exec.Command("sleep", "0"))
		require.NoError(t, err)
		assert.False(t, interrupted)
	})

	t.Run("キャンセルで中断", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		interrupted, err := RunInterruptible(ctx, exec.Command("sleep", "30"))
		require.NoError(t, err)
		assert.True(t, interrupted)
		assert.Less(t, time.Since(start), 5*time.Second, "SIGINTで停止していません")
	})

	t.Run("異常終了", func(t *testing.T) {
		_, err := RunInterruptible(context.Background(), exec.Command("sh", "-c", "exit 3"))
		assert.Error(t, err)
	})
}

func TestPiCamera_Still(t *testing.T) {
	// -o の次の引数にファイルを作る偽の rpicam-still
	bin := writeScript(t, "rpicam-still", `while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then shift; echo fake > "$1"; fi
  shift
done`)

	cam := NewPiCamera(zerolog.Nop())
	cam.StillBin = bin

	out := filepath.Join(t.TempDir(), "photo.jpg")
	err := cam.Still(context.Background(), out, StillOptions{
		Settings: Settings{Width: 1920, Height: 1080},
		Format:   "jpg",
	})
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestPiCamera_StillFailure(t *testing.T) {
	bin := writeScript(t, "rpicam-still", `echo "ERROR: no cameras available" >&2; exit 1`)

	cam := NewPiCamera(zerolog.Nop())
	cam.StillBin = bin

	err := cam.Still(context.Background(), filepath.Join(t.TempDir(), "p.jpg"), StillOptions{Format: "jpg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cameras available")
}

func TestPiCamera_Record(t *testing.T) {
	bin := writeScript(t, "rpicam-vid", `while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then shift; printf '\000\000\000\001' > "$1"; fi
  shift
done`)

	cam := NewPiCamera(zerolog.Nop())
	cam.VidBin = bin

	out := filepath.Join(t.TempDir(), "video.h264")
	interrupted, err := cam.Record(context.Background(), out, VideoOptions{
		Settings: Settings{Width: 1280, Height: 720, FPS: 30},
		Bitrate:  10000000,
		Duration: time.Second,
	})
	require.NoError(t, err)
	assert.False(t, interrupted)
	assert.FileExists(t, out)
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c\nd", lastLines([]byte("a\nb\nc\nd\n"), 2))
	assert.Equal(t, "a", lastLines([]byte("a"), 5))
}

func TestPiDriver_Video(t *testing.T) {
	bin := writeScript(t, "rpicam-vid", `while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then shift; printf 'h264' > "$1"; fi
  shift
done`)

	cam := NewPiCamera(zerolog.Nop())
	cam.VidBin = bin
	d := NewPiDriver(cam, Info{Backend: BackendPicamera, Model: "imx708"})

	target := filepath.Join(t.TempDir(), "video_20250101_120000.mp4")
	rec, err := d.Video(context.Background(), target, VideoOptions{
		Settings: Settings{Width: 1280, Height: 720, FPS: 30},
		Bitrate:  10000000,
		Duration: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, rec.Raw)
	assert.Equal(t, filepath.Join(filepath.Dir(target), "video_20250101_120000.h264"), rec.Path)
	assert.FileExists(t, rec.Path)
	assert.Equal(t, "imx708", d.Info().Model)
}

func TestPiDriver_VideoUnsupportedRotation(t *testing.T) {
	d := NewPiDriver(NewPiCamera(zerolog.Nop()), Info{Backend: BackendPicamera})

	_, err := d.Video(context.Background(), filepath.Join(t.TempDir(), "v.mp4"), VideoOptions{
		Settings: Settings{Width: 1280, Height: 720, Rotation: 90},
	})
	assert.ErrorIs(t, err, ErrUnsupportedRotation)
}
