// Package timelapse 一定間隔で静止画を撮影し、動画にまとめる
//
// # 責務
// - cron 形式のスケジュールによる静止画の撮影
// - 撮影枚数の上限の管理
// - 終了時の動画の作成
//
// # 仕様
// - 静止画は <出力先>/timelapse_YYYYmmdd_HHMMSS/frame_00001.jpg の形式で保存する
// - 動画は <出力先>/timelapse_YYYYmmdd_HHMMSS.mp4 に保存する
// - 前の撮影が終わっていない場合、その回の撮影はスキップする
// - 撮影に失敗しても撮影は続ける
// - 停止時は撮影中の1枚を待ってから終了する
package timelapse
