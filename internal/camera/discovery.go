package camera

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxUSBDevices は OpenCV で探索するデバイス番号の上限
const MaxUSBDevices = 10

var piCameraLine = regexp.MustCompile(`^\s*(\d+)\s*:\s*(\S+)`)

// PiDiscovery は rpicam-still --list-cameras で Raspberry Pi カメラを検出する
type PiDiscovery struct {
	// Bin は rpicam-still のパス。空なら rpicam-still, libcamera-still の順に探す
	Bin string
}

// NewPiDiscovery は新しいPiDiscoveryを作成する
func NewPiDiscovery(bin string) *PiDiscovery {
	return &PiDiscovery{Bin: bin}
}

// Detect は最初に見つかった Raspberry Pi カメラを返す
func (d *PiDiscovery) Detect(ctx context.Context) (Info, error) {
	bin, err := d.resolveBin()
	if err != nil {
		return Info{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// カメラが無い場合も終了コードは0のことがあるため出力で判定する
	output, err := exec.CommandContext(ctx, bin, "--list-cameras").CombinedOutput()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s の実行に失敗: %v", ErrNoCamera, bin, err)
	}

	model, index, ok := ParsePiCameraList(string(output))
	if !ok {
		return Info{}, fmt.Errorf("%w: Raspberry Piカメラが接続されていません", ErrNoCamera)
	}

	return Info{
		Backend: BackendPicamera,
		Model:   model,
		Index:   index,
	}, nil
}

// resolveBin は使用する rpicam-still の実行ファイルを決める
func (d *PiDiscovery) resolveBin() (string, error) {
	candidates := []string{"rpicam-still", "libcamera-still"}
	if d.Bin != "" {
		candidates = []string{d.Bin}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s が見つかりません", ErrNoCamera, strings.Join(candidates, ", "))
}

// ParsePiCameraList は --list-cameras の出力から最初のカメラのモデル名と番号を取り出す
//
//	0 : imx708 [4608x2592 10-bit RGGB] (/base/soc/i2c0mux/i2c@1/imx708@1a)
func ParsePiCameraList(output string) (model string, index int, ok bool) {
	for _, line := range strings.Split(output, "\n") {
		m := piCameraLine.FindStringSubmatch(line)
		if len(m) < 3 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return m[2], n, true
	}
	return "", 0, false
}

// USBDiscovery は OpenCV でデバイス番号 0..9 を順に開いて USB カメラを検出する
type USBDiscovery struct {
	// Probe はデバイス番号のカメラが開けるかを返す
	Probe func(index int) bool
	// Index が 0 以上なら探索せずその番号を使う
	Index int
}

// NewUSBDiscovery は新しいUSBDiscoveryを作成する
func NewUSBDiscovery(probe func(index int) bool, index int) *USBDiscovery {
	return &USBDiscovery{Probe: probe, Index: index}
}

// Detect は最初に開けた USB カメラを返す
func (d *USBDiscovery) Detect(ctx context.Context) (Info, error) {
	if d.Index >= 0 {
		if d.Probe != nil && !d.Probe(d.Index) {
			return Info{}, fmt.Errorf("%w: デバイス %d を開けません", ErrNoCamera, d.Index)
		}
		return d.info(d.Index), nil
	}

	for i := 0; i < MaxUSBDevices; i++ {
		select {
		case <-ctx.Done():
			return Info{}, ctx.Err()
		default:
		}

		if d.Probe != nil && d.Probe(i) {
			return d.info(i), nil
		}
	}

	return Info{}, fmt.Errorf("%w: USBカメラが見つかりません (デバイス 0-%d)", ErrNoCamera, MaxUSBDevices-1)
}

// info はデバイス番号からカメラ情報を作る
func (d *USBDiscovery) info(index int) Info {
	device := fmt.Sprintf("/dev/video%d", index)
	model := getV4L2DeviceName(device)
	if model == "" {
		model = fmt.Sprintf("USBカメラ (デバイス%d)", index)
	}
	return Info{
		Backend: BackendOpenCV,
		Model:   model,
		Device:  device,
		Index:   index,
	}
}

// ListVideoDevices は /dev/video* をデバイス番号順に返す
func ListVideoDevices() ([]string, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return DeviceIndex(matches[i]) < DeviceIndex(matches[j])
	})

	return matches, nil
}

// getV4L2DeviceName はv4l2-ctlを使って実際のデバイス名を取得する
func getV4L2DeviceName(device string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err != nil {
		return ""
	}

	return parseCardType(string(output))
}

// parseCardType は v4l2-ctl --info の出力から "Card type" を取り出す
func parseCardType(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

var deviceNumber = regexp.MustCompile(`video(\d+)`)

// DeviceIndex はデバイスパス (/dev/video2 など) から番号を抽出する
func DeviceIndex(device string) int {
	matches := deviceNumber.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	Info Info
	Err  error
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(info Info, err error) *MockDiscovery {
	return &MockDiscovery{Info: info, Err: err}
}

// Detect は設定された結果を返す
func (m *MockDiscovery) Detect(_ context.Context) (Info, error) {
	return m.Info, m.Err
}
