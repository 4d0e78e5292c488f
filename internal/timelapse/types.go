package timelapse

import (
	"errors"
	"time"
)

var (
	// ErrAlreadyRunning は撮影中に Start を呼んだ場合のエラー
	ErrAlreadyRunning = errors.New("タイムラプスは既に撮影中です")
	// ErrNotRunning は撮影していない時に Stop を呼んだ場合のエラー
	ErrNotRunning = errors.New("タイムラプスは撮影していません")
)

// Options はタイムラプス撮影の設定
type Options struct {
	Schedule     string // cron 形式 (例: "@every 10s", "*/5 * * * *")
	Count        int    // 撮影枚数 (0 で停止されるまで撮影)
	Assemble     bool   // 終了時に動画へまとめる
	FPS          int    // まとめた動画のフレームレート
	VideoQuality int    // 動画品質 (1-5)
	OutputDir    string

	// 1枚ごとの撮影設定
	Width        int
	Height       int
	Format       string
	PhotoQuality int
	Warmup       time.Duration // 露出とホワイトバランスの安定待ち時間
}

// Status はタイムラプスのステータス
type Status string

const (
	StatusIdle      Status = "idle"      // 停止中
	StatusRecording Status = "recording" // 撮影中
	StatusCompleted Status = "completed" // 完了
	StatusError     Status = "error"     // エラー
)

// Session は1回のタイムラプス撮影の記録
type Session struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`             // 静止画の保存先
	Frames    []string  `json:"frames"`          // 撮影した静止画のパス
	Failures  int       `json:"failures"`        // 撮影に失敗した回数
	Video     string    `json:"video,omitempty"` // まとめた動画のパス
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}
