// Package camera カメラの検出と Raspberry Pi カメラの操作を担う
//
// # 責務
// - Raspberry Pi カメラモジュールと USB カメラの検出
// - 使用するバックエンド (picamera / opencv) の選択
// - rpicam-still / rpicam-vid の引数組み立てと子プロセスの制御
// - MJPEG ストリームの JPEG フレームへの分割
//
// # 使い分け
// このパッケージは OpenCV に依存しない。
// 画像処理やプレビューウィンドウは vision パッケージを使う。
//
// # 仕様
// - Raspberry Pi カメラを優先し、--use-opencv が指定された場合か利用できない場合は OpenCV を使う
// - USB カメラはデバイス番号 0..9 を順に開いて最初に見つかったものを使う
// - Raspberry Pi カメラの回転は 0 度と 180 度のみ対応
// - 録画の中断は rpicam-vid への SIGINT で行い、書きかけのファイルを正しく閉じさせる
//
// # 前提要件
//   - rpicam-apps: Raspberry Pi カメラの撮影に使用
//     Raspberry Pi OS: sudo apt install rpicam-apps
//   - v4l-utils: USB カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
