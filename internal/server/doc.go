// Package server リモートシャッターの HTTP サーバー
//
// # 責務
// - HTTP からの写真撮影・録画の受け付け
// - 撮影履歴とサムネイルの配信
// - メトリクス (/metrics) の公開
//
// # 仕様
// - 撮影は1件ずつ受け付け、撮影中の要求には 409 を返す
// - 写真の要求には一定時間同じ写真を返す (カメラの連続起動を避ける)
// - 保存済みのファイルの情報のみ返し、映像のストリーミングは行わない
// - ctx のキャンセルで5秒以内にグレースフルシャットダウンする
package server
