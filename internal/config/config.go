package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Camera    CameraConfig    `mapstructure:"camera" yaml:"camera"`
	Photo     PhotoConfig     `mapstructure:"photo" yaml:"photo"`
	Video     VideoConfig     `mapstructure:"video" yaml:"video"`
	Preview   PreviewConfig   `mapstructure:"preview" yaml:"preview"`
	Transcode TranscodeConfig `mapstructure:"transcode" yaml:"transcode"`
	Timelapse TimelapseConfig `mapstructure:"timelapse" yaml:"timelapse"`
	Catalog   CatalogConfig   `mapstructure:"catalog" yaml:"catalog"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`

	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"` // 保存先ディレクトリ
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	UseOpenCV bool          `mapstructure:"use_opencv" yaml:"use_opencv"` // Raspberry Piカメラではなく OpenCV を使う
	Device    int           `mapstructure:"device" yaml:"device"`         // OpenCV のデバイス番号 (-1 で自動検出)
	HFlip     bool          `mapstructure:"hflip" yaml:"hflip"`
	VFlip     bool          `mapstructure:"vflip" yaml:"vflip"`
	Rotation  int           `mapstructure:"rotation" yaml:"rotation"` // 0, 90, 180, 270
	Warmup    time.Duration `mapstructure:"warmup" yaml:"warmup"`     // 撮影前の安定待ち時間
}

// PhotoConfig は静止画撮影の設定
type PhotoConfig struct {
	Width   int    `mapstructure:"width" yaml:"width"`
	Height  int    `mapstructure:"height" yaml:"height"`
	Format  string `mapstructure:"format" yaml:"format"`   // jpg または png
	Quality int    `mapstructure:"quality" yaml:"quality"` // JPEG品質 (1-100)
}

// VideoConfig は動画撮影の設定
type VideoConfig struct {
	Width     int           `mapstructure:"width" yaml:"width"`
	Height    int           `mapstructure:"height" yaml:"height"`
	FPS       int           `mapstructure:"fps" yaml:"fps"`
	Duration  time.Duration `mapstructure:"duration" yaml:"duration"` // 0 で停止されるまで録画
	Bitrate   int           `mapstructure:"bitrate" yaml:"bitrate"`   // H.264 のビットレート (bps)
	KeepRaw   bool          `mapstructure:"keep_raw" yaml:"keep_raw"` // 変換後も .h264 を残す
}

// PreviewConfig はプレビューウィンドウの設定
type PreviewConfig struct {
	Width        int  `mapstructure:"width" yaml:"width"`                 // キャプチャ幅
	Height       int  `mapstructure:"height" yaml:"height"`               // キャプチャ高さ
	WindowWidth  int  `mapstructure:"window_width" yaml:"window_width"`   // ウィンドウ初期幅
	WindowHeight int  `mapstructure:"window_height" yaml:"window_height"` // ウィンドウ初期高さ
	FPSInterval  int  `mapstructure:"fps_interval" yaml:"fps_interval"`   // FPSを再計算するフレーム数
	ShowFPS      bool `mapstructure:"show_fps" yaml:"show_fps"`
	ShowClock    bool `mapstructure:"show_clock" yaml:"show_clock"`
}

// TranscodeConfig は ffmpeg の設定
type TranscodeConfig struct {
	FFmpegPath string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TimelapseConfig はタイムラプス撮影の設定
type TimelapseConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"` // cron 形式 (例: "@every 10s")
	Count    int    `mapstructure:"count" yaml:"count"`       // 0 で停止されるまで撮影
	Assemble bool   `mapstructure:"assemble" yaml:"assemble"` // 終了時に動画へまとめる
	FPS      int    `mapstructure:"fps" yaml:"fps"`           // まとめた動画のフレームレート
	Quality  int    `mapstructure:"quality" yaml:"quality"`   // 動画品質 (1-5)
}

// CatalogConfig は撮影履歴の設定
type CatalogConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"` // 空なら出力ディレクトリの captures.sqlite
	MaxEntries int    `mapstructure:"max_entries" yaml:"max_entries"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"` // リッスンするホスト
	Port int    `mapstructure:"port" yaml:"port"` // リッスンするポート番号

	ReadTimeout   time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	SnapshotCache time.Duration `mapstructure:"snapshot_cache" yaml:"snapshot_cache"` // 同一写真を使い回す時間
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // console または json
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Device: -1,
			Warmup: 2 * time.Second,
		},
		Photo: PhotoConfig{
			Width:   1920,
			Height:  1080,
			Format:  "jpg",
			Quality: 95,
		},
		Video: VideoConfig{
			Width:    1280,
			Height:   720,
			FPS:      30,
			Duration: 10 * time.Second,
			Bitrate:  10000000,
		},
		Preview: PreviewConfig{
			Width:        1920,
			Height:       1080,
			WindowWidth:  960,
			WindowHeight: 540,
			FPSInterval:  30,
			ShowFPS:      true,
			ShowClock:    true,
		},
		Transcode: TranscodeConfig{
			FFmpegPath: "ffmpeg",
			Timeout:    10 * time.Minute,
		},
		Timelapse: TimelapseConfig{
			Schedule: "@every 10s",
			FPS:      10,
			Quality:  3,
		},
		Catalog: CatalogConfig{
			Enabled:    true,
			MaxEntries: 100,
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  0, // 録画リクエストは長時間かかるため無効化
			SnapshotCache: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		OutputDir: "./",
	}
}

// Load は設定を読み込む
// 優先順位: viper に束縛されたフラグ > 環境変数 (SHASHIN_*) > 設定ファイル > デフォルト値
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v, Default())

	v.SetEnvPrefix("SHASHIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("shashin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "shashin"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// 明示的に指定されたファイルが無い場合のみエラーとする
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// setDefaults はデフォルト値を viper に登録する
// 登録されたキーだけが環境変数から読み込まれる
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("output_dir", d.OutputDir)

	v.SetDefault("camera.use_opencv", d.Camera.UseOpenCV)
	v.SetDefault("camera.device", d.Camera.Device)
	v.SetDefault("camera.hflip", d.Camera.HFlip)
	v.SetDefault("camera.vflip", d.Camera.VFlip)
	v.SetDefault("camera.rotation", d.Camera.Rotation)
	v.SetDefault("camera.warmup", d.Camera.Warmup)

	v.SetDefault("photo.width", d.Photo.Width)
	v.SetDefault("photo.height", d.Photo.Height)
	v.SetDefault("photo.format", d.Photo.Format)
	v.SetDefault("photo.quality", d.Photo.Quality)

	v.SetDefault("video.width", d.Video.Width)
	v.SetDefault("video.height", d.Video.Height)
	v.SetDefault("video.fps", d.Video.FPS)
	v.SetDefault("video.duration", d.Video.Duration)
	v.SetDefault("video.bitrate", d.Video.Bitrate)
	v.SetDefault("video.keep_raw", d.Video.KeepRaw)

	v.SetDefault("preview.width", d.Preview.Width)
	v.SetDefault("preview.height", d.Preview.Height)
	v.SetDefault("preview.window_width", d.Preview.WindowWidth)
	v.SetDefault("preview.window_height", d.Preview.WindowHeight)
	v.SetDefault("preview.fps_interval", d.Preview.FPSInterval)
	v.SetDefault("preview.show_fps", d.Preview.ShowFPS)
	v.SetDefault("preview.show_clock", d.Preview.ShowClock)

	v.SetDefault("transcode.ffmpeg_path", d.Transcode.FFmpegPath)
	v.SetDefault("transcode.timeout", d.Transcode.Timeout)

	v.SetDefault("timelapse.schedule", d.Timelapse.Schedule)
	v.SetDefault("timelapse.count", d.Timelapse.Count)
	v.SetDefault("timelapse.assemble", d.Timelapse.Assemble)
	v.SetDefault("timelapse.fps", d.Timelapse.FPS)
	v.SetDefault("timelapse.quality", d.Timelapse.Quality)

	v.SetDefault("catalog.enabled", d.Catalog.Enabled)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("catalog.max_entries", d.Catalog.MaxEntries)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.snapshot_cache", d.Server.SnapshotCache)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validateSize("photo", c.Photo.Width, c.Photo.Height); err != nil {
		return err
	}
	if err := validateSize("video", c.Video.Width, c.Video.Height); err != nil {
		return err
	}
	if err := validateSize("preview", c.Preview.Width, c.Preview.Height); err != nil {
		return err
	}

	switch c.Photo.Format {
	case "jpg", "png":
	default:
		return fmt.Errorf("サポートされていない画像フォーマット: %q (jpg または png)", c.Photo.Format)
	}
	if c.Photo.Quality < 1 || c.Photo.Quality > 100 {
		return fmt.Errorf("無効なJPEG品質: %d", c.Photo.Quality)
	}

	if c.Video.FPS < 1 || c.Video.FPS > 120 {
		return fmt.Errorf("無効なフレームレート: %d", c.Video.FPS)
	}
	if c.Video.Duration < 0 {
		return fmt.Errorf("無効な録画時間: %s", c.Video.Duration)
	}
	if c.Video.Bitrate <= 0 {
		return fmt.Errorf("無効なビットレート: %d", c.Video.Bitrate)
	}

	switch c.Camera.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("無効な回転角度: %d (0, 90, 180, 270 のいずれか)", c.Camera.Rotation)
	}
	if c.Camera.Warmup < 0 {
		return fmt.Errorf("無効なウォームアップ時間: %s", c.Camera.Warmup)
	}

	if c.Preview.FPSInterval < 1 {
		return fmt.Errorf("無効なFPS計測間隔: %d", c.Preview.FPSInterval)
	}

	if c.Timelapse.Count < 0 {
		return fmt.Errorf("無効なタイムラプス撮影枚数: %d", c.Timelapse.Count)
	}
	if c.Timelapse.Quality < 1 || c.Timelapse.Quality > 5 {
		return fmt.Errorf("無効なタイムラプス品質: %d (1-5)", c.Timelapse.Quality)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("出力ディレクトリが指定されていません")
	}

	return nil
}

// validateSize は解像度が 1..4096 の範囲にあるか検証する
func validateSize(name string, width, height int) error {
	if width < 1 || width > 4096 || height < 1 || height > 4096 {
		return fmt.Errorf("無効な解像度 (%s): %dx%d", name, width, height)
	}
	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CatalogPath は撮影履歴データベースのパスを返す
func (c *Config) CatalogPath() string {
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return filepath.Join(c.OutputDir, "captures.sqlite")
}
