package cmd

import (
	"context"
	"errors"
	"fmt"

	"shashin/internal/camera"
	"shashin/internal/capture"
	"shashin/internal/catalog"
	"shashin/internal/transcode"
	"shashin/internal/vision"
)

// orientation は設定の反転と回転を返す
func (a *app) orientation() camera.Settings {
	return camera.Settings{
		HFlip:    a.cfg.Camera.HFlip,
		VFlip:    a.cfg.Camera.VFlip,
		Rotation: a.cfg.Camera.Rotation,
	}
}

// discoveries は Raspberry Pi カメラと USB カメラの検出方法を返す
func (a *app) discoveries() (pi, usb camera.Discovery) {
	return camera.NewPiDiscovery(""), camera.NewUSBDiscovery(vision.ProbeDevice, a.cfg.Camera.Device)
}

// detect は使用するカメラを検出する
// Raspberry Pi カメラを優先し、見つからない場合は USB カメラを探す
func (a *app) detect(ctx context.Context, pi, usb camera.Discovery) (camera.Info, error) {
	cc := a.cfg.Camera

	piAvailable := false
	var piInfo camera.Info
	if !cc.UseOpenCV {
		info, err := pi.Detect(ctx)
		if err != nil {
			a.logger.Debug().Err(err).Msg("Raspberry Piカメラが見つからないためOpenCVを使います")
		} else {
			piInfo, piAvailable = info, true
		}
	}

	if camera.Select(cc.UseOpenCV, piAvailable) == camera.BackendPicamera {
		a.logger.Info().Str("model", piInfo.Model).Msg("Raspberry Piカメラを使用します")
		return piInfo, nil
	}

	info, err := usb.Detect(ctx)
	if err != nil {
		return camera.Info{}, fmt.Errorf("カメラが見つかりません。接続を確認してください: %w", err)
	}
	a.logger.Info().Str("model", info.Model).Int("device", info.Index).Msg("USBカメラを使用します")
	return info, nil
}

// newDriver はカメラを検出して撮影用のドライバーを作る
func (a *app) newDriver(ctx context.Context) (camera.Driver, error) {
	pi, usb := a.discoveries()
	info, err := a.detect(ctx, pi, usb)
	if err != nil {
		return nil, err
	}
	if info.Backend == camera.BackendPicamera {
		return camera.NewPiDriver(camera.NewPiCamera(a.logger), info), nil
	}
	return vision.NewOpenCVDriver(info, a.cfg.Camera.Warmup, a.logger), nil
}

// newSource はカメラを検出してフレームの読み出し元を作る
// 反転と回転は読み出し後に行うため s には含めない
func (a *app) newSource(ctx context.Context, s camera.Settings) (vision.FrameSource, error) {
	pi, usb := a.discoveries()
	info, err := a.detect(ctx, pi, usb)
	if err != nil {
		return nil, err
	}
	if info.Backend == camera.BackendPicamera {
		return vision.NewPiSource(info, s, camera.NewPiCamera(a.logger), a.logger), nil
	}
	return vision.NewOpenCVSource(info, s, a.cfg.Camera.Warmup, a.logger), nil
}

// newTranscoder は ffmpeg のトランスコーダーを作る
func (a *app) newTranscoder() *transcode.Transcoder {
	return transcode.New(a.cfg.Transcode.FFmpegPath, a.cfg.Transcode.Timeout, a.logger)
}

// openCatalog は撮影履歴を開く。無効な場合は nil を返す
func (a *app) openCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if !a.cfg.Catalog.Enabled {
		return nil, nil
	}
	return catalog.Open(ctx, a.cfg.CatalogPath(), a.cfg.Catalog.MaxEntries, a.logger)
}

// newService は撮影サービスを作る。close で撮影履歴を閉じる
func (a *app) newService(ctx context.Context) (svc *capture.Service, cat *catalog.Catalog, closeFn func(), err error) {
	driver, err := a.newDriver(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	cat, err = a.openCatalog(ctx)
	if err != nil {
		// 撮影履歴が開けなくても撮影はできる
		a.logger.Warn().Err(err).Msg("撮影履歴を開けません。履歴を保存せずに撮影します")
		cat = nil
	}

	// nil のポインタをインターフェースに入れない
	var history capture.Catalog
	if cat != nil {
		history = cat
	}

	closeFn = func() {
		if cat == nil {
			return
		}
		if err := cat.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("撮影履歴を閉じられません")
		}
	}
	return capture.NewService(driver, a.newTranscoder(), history, a.orientation(), a.logger), cat, closeFn, nil
}

// photoRequest は設定から静止画撮影の要求を作る
func (a *app) photoRequest() capture.PhotoRequest {
	pc := a.cfg.Photo
	return capture.PhotoRequest{
		OutputDir: a.cfg.OutputDir,
		Width:     pc.Width,
		Height:    pc.Height,
		Format:    pc.Format,
		Quality:   pc.Quality,
		Warmup:    a.cfg.Camera.Warmup,
	}
}

// videoRequest は設定から動画撮影の要求を作る
func (a *app) videoRequest() capture.VideoRequest {
	vc := a.cfg.Video
	return capture.VideoRequest{
		OutputDir: a.cfg.OutputDir,
		Width:     vc.Width,
		Height:    vc.Height,
		FPS:       vc.FPS,
		Duration:  vc.Duration,
		Bitrate:   vc.Bitrate,
		KeepRaw:   vc.KeepRaw,
	}
}

// isTranscodeError は変換の失敗かを判定する
func isTranscodeError(err error) bool {
	return errors.Is(err, capture.ErrTranscode)
}
