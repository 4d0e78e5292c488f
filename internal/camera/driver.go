package camera

import (
	"context"
	"path/filepath"
	"strings"
)

// Recording は録画の結果を表す
type Recording struct {
	Path        string // 書き出したファイル
	Raw         bool   // H.264 の生ストリームで、MP4 への変換が必要
	Frames      int    // 書き出したフレーム数 (不明なら 0)
	Width       int
	Height      int
	Interrupted bool // 停止要求で録画を終えた
}

// Driver は静止画と動画の撮影手段を表す
type Driver interface {
	// Info は撮影に使うカメラの情報を返す
	Info() Info
	// Photo は静止画を1枚撮影して path に保存する
	Photo(ctx context.Context, path string, opts StillOptions) error
	// Video は path (.mp4) を目標に録画する。ctx のキャンセルで録画を止める
	Video(ctx context.Context, path string, opts VideoOptions) (Recording, error)
}

// PiDriver は rpicam-apps で撮影する Driver
type PiDriver struct {
	cam  *PiCamera
	info Info
}

// NewPiDriver は新しいPiDriverを作成する
func NewPiDriver(cam *PiCamera, info Info) *PiDriver {
	return &PiDriver{cam: cam, info: info}
}

// Info はカメラの情報を返す
func (d *PiDriver) Info() Info {
	return d.info
}

// Photo は rpicam-still で撮影する
func (d *PiDriver) Photo(ctx context.Context, path string, opts StillOptions) error {
	return d.cam.Still(ctx, path, opts)
}

// Video は rpicam-vid で H.264 の生ストリームを録画する
// path の拡張子を .h264 に置き換えたファイルに書き出す
func (d *PiDriver) Video(ctx context.Context, path string, opts VideoOptions) (Recording, error) {
	raw := strings.TrimSuffix(path, filepath.Ext(path)) + ".h264"

	interrupted, err := d.cam.Record(ctx, raw, opts)
	if err != nil {
		return Recording{}, err
	}

	return Recording{
		Path:        raw,
		Raw:         true,
		Width:       opts.Width,
		Height:      opts.Height,
		Interrupted: interrupted,
	}, nil
}
