package vision

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// TimestampLayout はフレームに描画する日時の書式
const TimestampLayout = "2006-01-02 15:04:05"

var (
	fpsColor       = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	timestampColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// FPSMeter は一定フレームごとにフレームレートを再計算する
type FPSMeter struct {
	interval int
	count    int
	start    time.Time
	fps      float64
	now      func() time.Time
}

// NewFPSMeter は interval フレームごとに再計算する FPSMeter を作成する
func NewFPSMeter(interval int) *FPSMeter {
	if interval < 1 {
		interval = 1
	}
	return &FPSMeter{interval: interval, now: time.Now}
}

// Tick は1フレーム処理したことを記録し、現在のFPSを返す
// 最初の interval フレームが経過するまでは 0 を返す
func (m *FPSMeter) Tick() float64 {
	if m.start.IsZero() {
		m.start = m.now()
	}

	m.count++
	if m.count >= m.interval {
		elapsed := m.now().Sub(m.start).Seconds()
		if elapsed > 0 {
			m.fps = float64(m.count) / elapsed
		}
		m.count = 0
		m.start = m.now()
	}
	return m.fps
}

// FPS は最後に計算したFPSを返す
func (m *FPSMeter) FPS() float64 {
	return m.fps
}

// DrawFPS はフレーム左上にFPSを描画する
func DrawFPS(img *gocv.Mat, fps float64) {
	gocv.PutText(img, fmt.Sprintf("FPS: %.1f", fps), image.Pt(10, 30),
		gocv.FontHersheySimplex, 1.0, fpsColor, 2)
}

// DrawTimestamp はフレーム左下に日時を描画する
func DrawTimestamp(img *gocv.Mat, t time.Time) {
	gocv.PutText(img, t.Format(TimestampLayout), image.Pt(10, img.Rows()-10),
		gocv.FontHersheySimplex, 0.7, timestampColor, 2)
}
