// Package preview カメラ映像をウィンドウに表示する
//
// # 責務
// - フレームの反転・回転とオーバーレイ (FPS / 日時) の描画
// - ウィンドウへの表示と停止条件の監視
//
// # 仕様
// - q / Q キー、ウィンドウを閉じる、シグナルのいずれかで終了する
// - フレームを取得できなくなった場合はエラーで終了する
// - 終了時は必ずカメラを解放してウィンドウを閉じる
//
// # 前提要件
// - X11 / Wayland などの表示環境 (DISPLAY が設定されていること)
package preview
