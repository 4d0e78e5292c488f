package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameBuffer を超えても EOI が見つからない場合はバッファを捨てる
const maxFrameBuffer = 16 * 1024 * 1024

// SplitJPEG は MJPEG のバイトストリームを JPEG の開始マーカー (FF D8) と終了マーカー (FF D9) で
// 1フレームずつに分割して frames に送る
// r が EOF に達すると nil を返す。frames は閉じない
func SplitJPEG(ctx context.Context, r io.Reader, frames chan<- []byte) error {
	buffer := make([]byte, 256*1024)
	var pending bytes.Buffer

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buffer)
		if n > 0 {
			pending.Write(buffer[:n])
			if sendErr := emitFrames(ctx, &pending, frames); sendErr != nil {
				return sendErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}

// emitFrames は pending 内の完全なフレームを全て送り、未完成の部分だけを残す
func emitFrames(ctx context.Context, pending *bytes.Buffer, frames chan<- []byte) error {
	data := pending.Bytes()
	consumed := 0

	for {
		start := bytes.Index(data[consumed:], jpegSOI)
		if start == -1 {
			// 開始マーカーの片割れだけ残す
			if len(data) > consumed && data[len(data)-1] == 0xFF {
				consumed = len(data) - 1
			} else {
				consumed = len(data)
			}
			break
		}
		start += consumed

		end := bytes.Index(data[start+2:], jpegEOI)
		if end == -1 {
			// 完全なフレームがまだない
			consumed = start
			break
		}
		end += start + 2 + len(jpegEOI)

		frame := make([]byte, end-start)
		copy(frame, data[start:end])

		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
		consumed = end
	}

	remaining := append([]byte(nil), data[consumed:]...)
	pending.Reset()
	if len(remaining) > maxFrameBuffer {
		return nil
	}
	pending.Write(remaining)
	return nil
}
