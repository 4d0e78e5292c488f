// Package transcode ffmpeg を使った動画の変換を担う
//
// # 責務
// - rpicam-vid が書き出した H.264 の生ストリームを MP4 へ格納する (再エンコードなし)
// - タイムラプスの静止画を H.264 の MP4 にまとめる
//
// # 仕様
// - 変換に成功し出力ファイルが存在する場合のみ変換元を削除する
// - 失敗時は ExitError に終了コードと ffmpeg の出力を入れて返し、変換元は残す
//
// # 前提要件
//   - ffmpeg
//     Ubuntu/Debian/Raspberry Pi OS: sudo apt install ffmpeg
package transcode
