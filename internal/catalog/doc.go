// Package catalog 撮影履歴を SQLite に保存する
//
// 写真は最大 200x200 の JPEG サムネイルと一緒に保存する。
// 件数の上限を超えた古い記録は追加のたびに削除する（撮影したファイル自体は削除しない）。
package catalog
