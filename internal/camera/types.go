package camera

import (
	"context"
	"errors"
	"os"
)

// Backend はカメラへのアクセス手段を表す
type Backend string

const (
	BackendPicamera Backend = "picamera" // Raspberry Pi カメラモジュール (rpicam-apps)
	BackendOpenCV   Backend = "opencv"   // USBカメラ (OpenCV)
)

var (
	// ErrNoCamera はカメラが見つからない場合のエラー
	ErrNoCamera = errors.New("カメラが見つかりません")
	// ErrInvalidRotation は回転角度が 0/90/180/270 以外の場合のエラー
	ErrInvalidRotation = errors.New("無効な回転角度")
	// ErrUnsupportedRotation は Raspberry Pi カメラが対応しない回転角度のエラー
	ErrUnsupportedRotation = errors.New("Raspberry Piカメラは0度と180度の回転のみ対応しています")
)

// Settings はカメラの設定を表す
type Settings struct {
	Width    int  // 画像幅
	Height   int  // 画像高さ
	FPS      int  // フレームレート
	HFlip    bool // 左右反転
	VFlip    bool // 上下反転
	Rotation int  // 回転角度 (0, 90, 180, 270)
}

// Validate は回転角度を検証する
func (s Settings) Validate() error {
	switch s.Rotation {
	case 0, 90, 180, 270:
		return nil
	default:
		return ErrInvalidRotation
	}
}

// Info は検出されたカメラの情報を表す
type Info struct {
	Backend Backend // 使用するバックエンド
	Model   string  // カメラのモデル名
	Device  string  // デバイスパス（例: /dev/video0）
	Index   int     // OpenCV のデバイス番号
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// Detect は利用可能な最初のカメラを検出する
	Detect(ctx context.Context) (Info, error)
}

// Select は使用するバックエンドを決める
// Raspberry Pi カメラを優先し、指定された場合か利用できない場合は OpenCV を使う
func Select(preferOpenCV, piAvailable bool) Backend {
	if preferOpenCV || !piAvailable {
		return BackendOpenCV
	}
	return BackendPicamera
}

// HasDisplay はプレビューウィンドウを表示できる環境かチェックする
func HasDisplay() bool {
	for _, key := range []string{"DISPLAY", "WAYLAND_DISPLAY", "QT_QPA_PLATFORM"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}
