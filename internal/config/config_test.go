package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfigLoad はデフォルト設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err, "設定の読み込みに失敗しました")
	require.NotNil(t, cfg)

	// 写真のデフォルト値
	assert.Equal(t, 1920, cfg.Photo.Width)
	assert.Equal(t, 1080, cfg.Photo.Height)
	assert.Equal(t, "jpg", cfg.Photo.Format)

	// 動画のデフォルト値
	assert.Equal(t, 1280, cfg.Video.Width)
	assert.Equal(t, 720, cfg.Video.Height)
	assert.Equal(t, 30, cfg.Video.FPS)
	assert.Equal(t, 10*time.Second, cfg.Video.Duration)
	assert.Equal(t, 10000000, cfg.Video.Bitrate)

	// プレビューのデフォルト値
	assert.Equal(t, 960, cfg.Preview.WindowWidth)
	assert.Equal(t, 540, cfg.Preview.WindowHeight)
	assert.Equal(t, 30, cfg.Preview.FPSInterval)

	assert.Equal(t, 2*time.Second, cfg.Camera.Warmup)
	assert.Equal(t, "./", cfg.OutputDir)
	// WriteTimeout は 0（無効）でも正常
	assert.GreaterOrEqual(t, cfg.Server.WriteTimeout, time.Duration(0))
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(c *Config)
		expectErr bool
	}{
		{"正常な設定", func(c *Config) {}, false},
		{"PNG形式", func(c *Config) { c.Photo.Format = "png" }, false},
		{"無効な画像フォーマット", func(c *Config) { c.Photo.Format = "bmp" }, true},
		{"無効なポート番号", func(c *Config) { c.Server.Port = 99999 }, true},
		{"幅が0", func(c *Config) { c.Video.Width = 0 }, true},
		{"高さが上限超過", func(c *Config) { c.Photo.Height = 5000 }, true},
		{"フレームレートが0", func(c *Config) { c.Video.FPS = 0 }, true},
		{"負の録画時間", func(c *Config) { c.Video.Duration = -time.Second }, true},
		{"録画時間0は無制限", func(c *Config) { c.Video.Duration = 0 }, false},
		{"90度回転", func(c *Config) { c.Camera.Rotation = 90 }, false},
		{"45度回転", func(c *Config) { c.Camera.Rotation = 45 }, true},
		{"タイムラプス品質範囲外", func(c *Config) { c.Timelapse.Quality = 6 }, true},
		{"出力ディレクトリなし", func(c *Config) { c.OutputDir = "" }, true},
		{"FPS計測間隔0", func(c *Config) { c.Preview.FPSInterval = 0 }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.expectErr {
				assert.Error(t, err, "エラーが期待されましたが、エラーが発生しませんでした")
			} else {
				assert.NoError(t, err, "予期しないエラーが発生しました")
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	if actual := cfg.ServerAddress(); actual != "192.168.1.100:9090" {
		t.Errorf("サーバーアドレスが一致しません: got %s, want 192.168.1.100:9090", actual)
	}
}

// TestCatalogPath は履歴データベースのパス解決をテストする
func TestCatalogPath(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/tmp/photos"
	assert.Equal(t, filepath.Join("/tmp/photos", "captures.sqlite"), cfg.CatalogPath())

	cfg.Catalog.Path = "/var/lib/shashin/history.db"
	assert.Equal(t, "/var/lib/shashin/history.db", cfg.CatalogPath())
}

// TestEnvironmentVariables は環境変数の処理をテストする
// 注意: このテストは環境変数を変更するため、parallelは使わない
func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("SHASHIN_SERVER_HOST", "test.example.com")
	t.Setenv("SHASHIN_SERVER_PORT", "9999")
	t.Setenv("SHASHIN_VIDEO_DURATION", "3s")
	t.Setenv("SHASHIN_OUTPUT_DIR", "/tmp/out")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err, "設定の読み込みに失敗しました")

	assert.Equal(t, "test.example.com", cfg.Server.Host, "環境変数のホストが反映されていません")
	assert.Equal(t, 9999, cfg.Server.Port, "環境変数のポートが反映されていません")
	assert.Equal(t, 3*time.Second, cfg.Video.Duration)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
}

// TestConfigFile は設定ファイルからの読み込みをテストする
func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shashin.yaml")
	content := `
output_dir: /srv/camera
camera:
  use_opencv: true
  hflip: true
  rotation: 180
photo:
  format: png
video:
  fps: 25
  duration: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/camera", cfg.OutputDir)
	assert.True(t, cfg.Camera.UseOpenCV)
	assert.True(t, cfg.Camera.HFlip)
	assert.Equal(t, 180, cfg.Camera.Rotation)
	assert.Equal(t, "png", cfg.Photo.Format)
	assert.Equal(t, 25, cfg.Video.FPS)
	assert.Equal(t, time.Minute, cfg.Video.Duration)
	// ファイルに無い値はデフォルトのまま
	assert.Equal(t, 1280, cfg.Video.Width)
}

// TestConfigFileMissing は指定された設定ファイルが無い場合をテストする
func TestConfigFileMissing(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestConfigFileInvalid は不正な値を含む設定ファイルをテストする
func TestConfigFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shashin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("camera:\n  rotation: 45\n"), 0644))

	_, err := Load(viper.New(), path)
	assert.Error(t, err)
}
