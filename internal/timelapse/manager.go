package timelapse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"shashin/internal/capture"
)

const (
	// stopTimeout は撮影中の1枚を待つ時間
	stopTimeout = 30 * time.Second
	// assembleTimeout は動画へまとめる処理の時間
	assembleTimeout = 30 * time.Minute
)

// parser は秒を省略できる cron 形式と @every などの記述子を受け付ける
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Shooter は静止画を1枚撮影する
type Shooter interface {
	Photo(ctx context.Context, req capture.PhotoRequest) (capture.Result, error)
}

// Assembler は静止画を並べて動画を作成する
type Assembler interface {
	Concat(ctx context.Context, images []string, dst string, fps, quality int) error
}

// StatusInfo はタイムラプスの現在の状態
type StatusInfo struct {
	Status  Status    `json:"status"`
	Session *Session  `json:"session,omitempty"`
	Next    time.Time `json:"next,omitempty"` // 次の撮影予定時刻
}

// Manager はスケジュールに従って静止画を撮影する
type Manager struct {
	shooter   Shooter
	assembler Assembler
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	session *Session
	done    chan struct{}
	once    *sync.Once
}

// NewManager は新しいManagerを作成する
// assembler が nil の場合は動画へまとめない
func NewManager(shooter Shooter, assembler Assembler, opts Options, logger zerolog.Logger) *Manager {
	if opts.FPS <= 0 {
		opts.FPS = 10
	}
	if opts.Format == "" {
		opts.Format = "jpg"
	}
	return &Manager{
		shooter:   shooter,
		assembler: assembler,
		opts:      opts,
		logger:    logger.With().Str("component", "timelapse").Logger(),
		now:       time.Now,
	}
}

// ValidateSchedule は cron 形式の撮影間隔を検証する
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("撮影間隔 %q が不正です: %w", spec, err)
	}
	return nil
}

// Start は撮影を開始する
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return ErrAlreadyRunning
	}
	if m.opts.Count < 0 {
		return fmt.Errorf("撮影枚数は0以上にしてください: %d", m.opts.Count)
	}
	if err := ValidateSchedule(m.opts.Schedule); err != nil {
		return err
	}

	started := m.now()
	session := &Session{
		ID:        uuid.NewString(),
		Dir:       filepath.Join(m.opts.OutputDir, "timelapse_"+started.Format("20060102_150405")),
		Frames:    []string{},
		Status:    StatusRecording,
		StartedAt: started,
	}
	if err := os.MkdirAll(session.Dir, 0755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗: %w", err)
	}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(m.opts.Schedule, m.shoot); err != nil {
		return fmt.Errorf("スケジュールの登録に失敗: %w", err)
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.session = session
	m.done = make(chan struct{})
	m.once = &sync.Once{}
	m.cron = c
	c.Start()

	m.logger.Info().Str("session", session.ID).Str("schedule", m.opts.Schedule).
		Int("count", m.opts.Count).Str("dir", session.Dir).Msg("タイムラプス撮影を開始しました")
	return nil
}

// Done は指定枚数の撮影が終わると閉じるチャネルを返す
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// shoot はスケジュールごとに1枚撮影する
func (m *Manager) shoot() {
	m.mu.Lock()
	session, ctx := m.session, m.ctx
	if session == nil || m.countReached() {
		m.mu.Unlock()
		return
	}
	name := fmt.Sprintf("frame_%05d.%s", len(session.Frames)+session.Failures+1, m.opts.Format)
	m.mu.Unlock()

	result, err := m.shooter.Photo(ctx, capture.PhotoRequest{
		OutputDir: session.Dir,
		Width:     m.opts.Width,
		Height:    m.opts.Height,
		Format:    m.opts.Format,
		Quality:   m.opts.PhotoQuality,
		Warmup:    m.opts.Warmup,
		Name:      name,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		session.Failures++
		m.logger.Warn().Err(err).Str("session", session.ID).Msg("タイムラプスの撮影に失敗しました")
		return
	}
	session.Frames = append(session.Frames, result.Path)
	m.logger.Info().Str("session", session.ID).Int("frame", len(session.Frames)).
		Str("path", result.Path).Msg("タイムラプスの1枚を撮影しました")

	if m.countReached() {
		m.once.Do(func() { close(m.done) })
	}
}

// countReached は指定枚数に達したかを返す。mu を保持して呼ぶ
func (m *Manager) countReached() bool {
	return m.opts.Count > 0 && len(m.session.Frames) >= m.opts.Count
}

// Stop は撮影を停止し、設定されていれば静止画を動画にまとめる
func (m *Manager) Stop(ctx context.Context) (Session, error) {
	m.mu.Lock()
	c, cancel := m.cron, m.cancel
	if c == nil {
		m.mu.Unlock()
		return Session{}, ErrNotRunning
	}
	m.cron = nil
	m.mu.Unlock()

	// 撮影中の1枚が終わるのを待つ
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		m.logger.Warn().Msg("撮影中の処理を待たずに停止します")
	}
	cancel()

	m.mu.Lock()
	m.session.EndedAt = m.now()
	m.session.Status = StatusCompleted
	snapshot := m.snapshot()
	m.mu.Unlock()

	m.logger.Info().Str("session", snapshot.ID).Int("frames", len(snapshot.Frames)).
		Int("failures", snapshot.Failures).Msg("タイムラプス撮影を停止しました")

	if !m.opts.Assemble || m.assembler == nil || len(snapshot.Frames) == 0 {
		return snapshot, nil
	}

	video := snapshot.Dir + ".mp4"
	actx, acancel := context.WithTimeout(context.WithoutCancel(ctx), assembleTimeout)
	defer acancel()
	if err := m.assembler.Concat(actx, snapshot.Frames, video, m.opts.FPS, m.opts.VideoQuality); err != nil {
		m.mu.Lock()
		m.session.Status = StatusError
		snapshot = m.snapshot()
		m.mu.Unlock()
		return snapshot, fmt.Errorf("タイムラプス動画の作成に失敗: %w", err)
	}

	m.mu.Lock()
	m.session.Video = video
	snapshot = m.snapshot()
	m.mu.Unlock()
	return snapshot, nil
}

// Run は停止されるか指定枚数を撮影するまで撮影を続ける
func (m *Manager) Run(ctx context.Context) (Session, error) {
	if err := m.Start(ctx); err != nil {
		return Session{}, err
	}

	select {
	case <-ctx.Done():
	case <-m.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	return m.Stop(stopCtx)
}

// Status は現在の状態を返す
func (m *Manager) Status() StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return StatusInfo{Status: StatusIdle}
	}
	snapshot := m.snapshot()
	info := StatusInfo{Status: snapshot.Status, Session: &snapshot}
	if m.cron != nil {
		if entries := m.cron.Entries(); len(entries) > 0 {
			info.Next = entries[0].Next
		}
	}
	return info
}

// snapshot はセッションの複製を返す。mu を保持して呼ぶ
func (m *Manager) snapshot() Session {
	s := *m.session
	s.Frames = append([]string(nil), m.session.Frames...)
	return s
}
