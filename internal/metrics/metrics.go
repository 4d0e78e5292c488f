// Package metrics は Prometheus のメトリクスを定義する
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 撮影のメトリクス
var (
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shashin_captures_total",
			Help: "撮影回数",
		},
		[]string{"kind", "backend", "status"},
	)

	CaptureDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shashin_capture_duration_seconds",
			Help:    "撮影にかかった時間 (秒)",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind", "backend"},
	)

	CaptureBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shashin_capture_bytes_total",
			Help: "保存したファイルの合計サイズ",
		},
		[]string{"kind"},
	)

	TranscodeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shashin_transcode_total",
			Help: "MP4への変換回数",
		},
		[]string{"status"},
	)
)

// HTTP のメトリクス
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shashin_http_requests_total",
			Help: "HTTPリクエスト数",
		},
		[]string{"method", "path", "status"},
	)

	SnapshotCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shashin_snapshot_cache_hits_total",
			Help: "キャッシュした写真で応答した回数",
		},
	)
)

// 状態ラベル
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
