package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug", "json")
	require.NoError(t, err)

	logger.Info().Str("path", "photo.jpg").Msg("写真を保存しました")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "JSON形式で出力されていません")
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "shashin", entry["app"])
	assert.Equal(t, "photo.jpg", entry["path"])
	assert.Equal(t, "写真を保存しました", entry["message"])
}

func TestNewWithWriterLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "WARN", "json")
	require.NoError(t, err)

	logger.Info().Msg("出力されない")
	assert.Empty(t, buf.String(), "warnレベルでinfoが出力されています")

	logger.Warn().Msg("出力される")
	assert.Contains(t, buf.String(), "出力される")
}

func TestNewWithWriterErrors(t *testing.T) {
	testCases := []struct {
		name   string
		level  string
		format string
	}{
		{"無効なレベル", "verbose", "json"},
		{"無効な形式", "info", "xml"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWithWriter(&bytes.Buffer{}, tc.level, tc.format)
			assert.Error(t, err)
		})
	}
}
