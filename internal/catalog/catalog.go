package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound は指定された撮影記録が無い場合のエラー
var ErrNotFound = errors.New("撮影記録が見つかりません")

// ThumbnailSize はサムネイルの最大辺
const ThumbnailSize = 200

// Kind は撮影の種類
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// Entry は1回分の撮影記録
type Entry struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path"`
	Backend   string    `json:"backend"`
	Model     string    `json:"model"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Size      int64     `json:"size"`
	Duration  float64   `json:"duration_seconds,omitempty"` // 動画の録画時間
	CreatedAt time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"kind" TEXT NOT NULL,
	"path" TEXT NOT NULL,
	"backend" TEXT NOT NULL DEFAULT '',
	"model" TEXT NOT NULL DEFAULT '',
	"width" INTEGER NOT NULL DEFAULT 0,
	"height" INTEGER NOT NULL DEFAULT 0,
	"size" INTEGER NOT NULL DEFAULT 0,
	"duration" REAL NOT NULL DEFAULT 0,
	"created_at" DATETIME NOT NULL,
	"thumbnail" BLOB
);
CREATE INDEX IF NOT EXISTS idx_captures_created_at ON captures(created_at);
`

// Catalog は SQLite に撮影履歴を保存する
type Catalog struct {
	db         *sql.DB
	path       string
	maxEntries int
	logger     zerolog.Logger
}

// Open は撮影履歴データベースを開く。無ければ作成する
// maxEntries が 0 より大きい場合、追加のたびに古い記録を削除して件数を保つ
func Open(ctx context.Context, path string, maxEntries int, logger zerolog.Logger) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("データベースディレクトリの作成に失敗: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("データベースを開けません: %w", err)
	}
	// 書き込みは1接続に絞る
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマの作成に失敗: %w", err)
	}

	return &Catalog{
		db:         db,
		path:       path,
		maxEntries: maxEntries,
		logger:     logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// Close はデータベースを閉じる
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Add は撮影記録を追加する
// 写真の場合はサムネイルも作成して保存する
func (c *Catalog) Add(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Size == 0 {
		if info, err := os.Stat(e.Path); err == nil {
			e.Size = info.Size()
		}
	}

	var thumb []byte
	if e.Kind == KindPhoto {
		var err error
		thumb, err = Thumbnail(e.Path)
		if err != nil {
			// サムネイルが無くても記録は残す
			c.logger.Warn().Err(err).Str("path", e.Path).Msg("サムネイルの作成に失敗しました")
		}
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO captures(kind, path, backend, model, width, height, size, duration, created_at, thumbnail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.Path, e.Backend, e.Model, e.Width, e.Height, e.Size, e.Duration, e.CreatedAt.UTC(), thumb)
	if err != nil {
		return 0, fmt.Errorf("撮影記録の追加に失敗: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("撮影記録IDの取得に失敗: %w", err)
	}

	if c.maxEntries > 0 {
		if _, err := c.Prune(ctx, c.maxEntries); err != nil {
			c.logger.Warn().Err(err).Msg("古い撮影記録の削除に失敗しました")
		}
	}

	return id, nil
}

// List は新しい順に最大 limit 件の撮影記録を返す
func (c *Catalog) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite では -1 で無制限
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, kind, path, backend, model, width, height, size, duration, created_at
		 FROM captures ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("撮影記録の取得に失敗: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Path, &e.Backend, &e.Model, &e.Width, &e.Height, &e.Size, &e.Duration, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("撮影記録の読み取りに失敗: %w", err)
		}
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get は指定IDの撮影記録を返す
func (c *Catalog) Get(ctx context.Context, id int64) (Entry, error) {
	var e Entry
	var kind string
	err := c.db.QueryRowContext(ctx,
		`SELECT id, kind, path, backend, model, width, height, size, duration, created_at
		 FROM captures WHERE id = ?`, id).
		Scan(&e.ID, &kind, &e.Path, &e.Backend, &e.Model, &e.Width, &e.Height, &e.Size, &e.Duration, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("撮影記録の取得に失敗: %w", err)
	}
	e.Kind = Kind(kind)
	return e, nil
}

// Thumbnail は指定IDのサムネイル (JPEG) を返す
func (c *Catalog) Thumbnail(ctx context.Context, id int64) ([]byte, error) {
	var thumb []byte
	err := c.db.QueryRowContext(ctx, `SELECT thumbnail FROM captures WHERE id = ?`, id).Scan(&thumb)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(thumb) == 0) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("サムネイルの取得に失敗: %w", err)
	}
	return thumb, nil
}

// Prune は新しい keep 件を残して古い撮影記録を削除し、削除件数を返す
// 記録だけを削除し、撮影したファイルは残す
func (c *Catalog) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
DELETE FROM captures WHERE id IN
(SELECT id FROM captures ORDER BY id DESC LIMIT -1 OFFSET ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("古い撮影記録の削除に失敗: %w", err)
	}
	return res.RowsAffected()
}

// Count は撮影記録の件数を返す
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("撮影記録の件数取得に失敗: %w", err)
	}
	return n, nil
}

// Thumbnail は画像ファイルから最大 200x200 の JPEG サムネイルを作成する
func Thumbnail(path string) ([]byte, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("画像を開けません: %w", err)
	}

	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("サムネイルのエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
