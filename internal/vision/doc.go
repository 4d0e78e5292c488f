// Package vision OpenCV (gocv) を使ったフレームの取得と加工を担う
//
// # 責務
// - USB カメラ (VideoCapture) と Raspberry Pi カメラ (rpicam-vid の MJPEG) からのフレーム取得
// - フレームの反転・回転
// - FPS と日時のオーバーレイ描画
// - 静止画 (jpg/png) と動画 (mp4v) の書き出し
//
// # 前提要件
//   - OpenCV 4.x と gocv のビルド環境
//     https://gocv.io/getting-started/linux/
package vision
