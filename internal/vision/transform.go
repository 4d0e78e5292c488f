package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"shashin/internal/camera"
)

// flipCode は反転設定を cv::flip のコードに変換する
// 反転しない場合は ok が false
func flipCode(hflip, vflip bool) (code int, ok bool) {
	switch {
	case hflip && vflip:
		return -1, true
	case hflip:
		return 1, true
	case vflip:
		return 0, true
	default:
		return 0, false
	}
}

// rotateFlag は回転角度を cv::rotate のコードに変換する
func rotateFlag(rotation int) (gocv.RotateFlag, bool, error) {
	switch rotation {
	case 0:
		return 0, false, nil
	case 90:
		return gocv.Rotate90Clockwise, true, nil
	case 180:
		return gocv.Rotate180Clockwise, true, nil
	case 270:
		return gocv.Rotate90CounterClockwise, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %d", camera.ErrInvalidRotation, rotation)
	}
}

// Transform はフレームに反転と回転をその場で適用する
// 反転を先に行い、その後に時計回りで回転する
func Transform(img *gocv.Mat, s camera.Settings) error {
	flag, rotate, err := rotateFlag(s.Rotation)
	if err != nil {
		return err
	}
	if img.Empty() {
		return nil
	}

	if code, ok := flipCode(s.HFlip, s.VFlip); ok {
		gocv.Flip(*img, img, code)
	}

	if rotate {
		rotated := gocv.NewMat()
		defer rotated.Close()
		gocv.Rotate(*img, &rotated, flag)
		rotated.CopyTo(img)
	}

	return nil
}
