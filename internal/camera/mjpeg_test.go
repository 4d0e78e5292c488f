package camera

import (
	"bytes"
	"context"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJPEG は SOI/EOI で囲まれたダミーフレームを作る
func fakeJPEG(payload string) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	return append(frame, 0xFF, 0xD9)
}

func collectFrames(t *testing.T, r io.Reader) [][]byte {
	t.Helper()
	frames := make(chan []byte, 16)
	err := SplitJPEG(context.Background(), r, frames)
	require.NoError(t, err)
	close(frames)

	var out [][]byte
	for f := range frames {
		out = append(out, f)
	}
	return out
}

func TestSplitJPEG(t *testing.T) {
	a, b, c := fakeJPEG("first"), fakeJPEG("second"), fakeJPEG("third")

	t.Run("連続したフレーム", func(t *testing.T) {
		stream := bytes.Join([][]byte{a, b, c}, nil)
		frames := collectFrames(t, bytes.NewReader(stream))
		require.Len(t, frames, 3)
		assert.Equal(t, a, frames[0])
		assert.Equal(t, b, frames[1])
		assert.Equal(t, c, frames[2])
	})

	t.Run("1バイトずつ届く", func(t *testing.T) {
		stream := bytes.Join([][]byte{a, b}, nil)
		frames := collectFrames(t, iotest.OneByteReader(bytes.NewReader(stream)))
		require.Len(t, frames, 2)
		assert.Equal(t, a, frames[0])
		assert.Equal(t, b, frames[1])
	})

	t.Run("フレーム間のゴミを無視", func(t *testing.T) {
		stream := bytes.Join([][]byte{[]byte("garbage"), a, []byte{0x00, 0x01}, b}, nil)
		frames := collectFrames(t, bytes.NewReader(stream))
		require.Len(t, frames, 2)
		assert.Equal(t, a, frames[0])
	})

	t.Run("途中で切れたフレームは送らない", func(t *testing.T) {
		stream := append(append([]byte{}, a...), b[:len(b)-2]...)
		frames := collectFrames(t, bytes.NewReader(stream))
		require.Len(t, frames, 1)
		assert.Equal(t, a, frames[0])
	})
}

func TestSplitJPEG_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := make(chan []byte)
	err := SplitJPEG(ctx, bytes.NewReader(fakeJPEG("x")), frames)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitJPEG_ReadError(t *testing.T) {
	frames := make(chan []byte, 1)
	err := SplitJPEG(context.Background(), iotest.ErrReader(io.ErrUnexpectedEOF), frames)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
