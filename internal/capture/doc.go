// Package capture 写真と動画の撮影手順をまとめる
//
// # 責務
// - 出力ディレクトリの作成と撮影日時によるファイル名の決定
// - カメラドライバー (Raspberry Pi / OpenCV) への撮影の委譲
// - Raspberry Pi で録画した H.264 の MP4 への変換
// - 撮影記録の保存とメトリクスの記録
//
// # 仕様
// - ファイル名は photo_YYYYmmdd_HHMMSS.{jpg,png} / video_YYYYmmdd_HHMMSS.mp4
// - 同じ秒に撮影した場合は _1, _2 を付けて上書きしない
// - 録画を中断した場合も、そこまでの録画を保存・変換する
// - MP4 への変換に失敗した場合は H.264 を残し、そのパスを返す
package capture
