package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg は引数を記録し、最後の引数にファイルを作る偽の ffmpeg を作成する
func fakeFFmpeg(t *testing.T, exitCode int) (bin, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	bin = filepath.Join(dir, "ffmpeg")

	script := `#!/bin/sh
echo "$@" > "` + argsFile + `"
if [ "$1" = "-version" ]; then echo "ffmpeg version 6.0"; exit 0; fi
`
	if exitCode != 0 {
		script += "echo 'Invalid data found when processing input' >&2\nexit " + strconv.Itoa(exitCode) + "\n"
	} else {
		script += `for last; do :; done
echo mp4 > "$last"
`
	}
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin, argsFile
}

func readArgs(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func TestToMP4(t *testing.T) {
	bin, argsFile := fakeFFmpeg(t, 0)
	tr := New(bin, time.Minute, zerolog.Nop())

	dir := t.TempDir()
	src := filepath.Join(dir, "video_20250101_120000.h264")
	require.NoError(t, os.WriteFile(src, []byte{0, 0, 0, 1}, 0644))

	err := tr.ToMP4(context.Background(), src, "", 30, false)
	require.NoError(t, err)

	dst := filepath.Join(dir, "video_20250101_120000.mp4")
	assert.FileExists(t, dst)
	assert.NoFileExists(t, src, "変換成功後に変換元が削除されていません")

	args := readArgs(t, argsFile)
	assert.Contains(t, args, "-framerate 30 -i "+src)
	assert.Contains(t, args, "-c:v copy "+dst)
}

func TestToMP4_KeepSource(t *testing.T) {
	bin, _ := fakeFFmpeg(t, 0)
	tr := New(bin, 0, zerolog.Nop())

	dir := t.TempDir()
	src := filepath.Join(dir, "clip.h264")
	dst := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(src, []byte{0}, 0644))

	require.NoError(t, tr.ToMP4(context.Background(), src, dst, 0, true))
	assert.FileExists(t, src)
	assert.FileExists(t, dst)
}

func TestToMP4_Failure(t *testing.T) {
	bin, _ := fakeFFmpeg(t, 1)
	tr := New(bin, time.Minute, zerolog.Nop())

	src := filepath.Join(t.TempDir(), "broken.h264")
	require.NoError(t, os.WriteFile(src, []byte{0}, 0644))

	err := tr.ToMP4(context.Background(), src, "", 30, false)
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "ExitError ではありません: %v", err)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, exitErr.Output, "Invalid data")
	assert.FileExists(t, src, "変換失敗時に変換元が削除されています")
}

func TestToMP4_MissingInput(t *testing.T) {
	tr := New("ffmpeg", 0, zerolog.Nop())
	err := tr.ToMP4(context.Background(), filepath.Join(t.TempDir(), "none.h264"), "", 30, false)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestToMP4_MissingFFmpeg(t *testing.T) {
	tr := New("/nonexistent/ffmpeg", 0, zerolog.Nop())
	src := filepath.Join(t.TempDir(), "a.h264")
	require.NoError(t, os.WriteFile(src, []byte{0}, 0644))

	err := tr.ToMP4(context.Background(), src, "", 30, false)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, -1, exitErr.Code)
	assert.FileExists(t, src)
}

func TestValidate(t *testing.T) {
	bin, _ := fakeFFmpeg(t, 0)
	assert.NoError(t, New(bin, 0, zerolog.Nop()).Validate(context.Background()))
	assert.Error(t, New("/nonexistent/ffmpeg", 0, zerolog.Nop()).Validate(context.Background()))
}

func TestConcat(t *testing.T) {
	bin, argsFile := fakeFFmpeg(t, 0)
	tr := New(bin, time.Minute, zerolog.Nop())

	dir := t.TempDir()
	var images []string
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0644))
		images = append(images, p)
	}

	dst := filepath.Join(dir, "timelapse.mp4")
	require.NoError(t, tr.Concat(context.Background(), images, dst, 10, 5))
	assert.FileExists(t, dst)

	args := readArgs(t, argsFile)
	assert.Contains(t, args, "-f concat")
	assert.Contains(t, args, "-crf 18.0")
	assert.Contains(t, args, "-r 10")

	// 一時リストは削除される
	matches, err := filepath.Glob(filepath.Join(dir, ".concat_*.txt"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestConcat_NoImages(t *testing.T) {
	tr := New("ffmpeg", 0, zerolog.Nop())
	err := tr.Concat(context.Background(), nil, filepath.Join(t.TempDir(), "x.mp4"), 10, 3)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestWriteImageList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	images := []string{filepath.Join(dir, "1.jpg"), filepath.Join(dir, "it's.jpg")}

	require.NoError(t, writeImageList(list, images, 4))

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 2, strings.Count(content, "duration 0.2500"))
	assert.Contains(t, content, `it'\''s.jpg`)
	// 最後の画像は2回書かれる
	assert.Equal(t, 2, strings.Count(content, `it'\''s.jpg`))
}

func TestQualityToCRF(t *testing.T) {
	testCases := map[int]string{
		1: "28.0",
		3: "23.0",
		5: "18.0",
		0: "28.0",
		9: "18.0",
	}
	for quality, want := range testCases {
		if got := QualityToCRF(quality); got != want {
			t.Errorf("CRFが一致しません (品質%d): got %s, want %s", quality, got, want)
		}
	}
}

func TestMP4Path(t *testing.T) {
	assert.Equal(t, "/tmp/video.mp4", MP4Path("/tmp/video.h264"))
	assert.Equal(t, "clip.mp4", MP4Path("clip"))
}
