package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// V4L2Capturer はffmpegを使ってV4L2デバイスから画像を取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
	logger     *log.Logger
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int, logger *log.Logger) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		logger:     logger,
	}
}

// CaptureFrame は1フレームをキャプチャして画像として返す
func (c *V4L2Capturer) CaptureFrame(ctx context.Context) (image.Image, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-i", c.devicePath,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2", // 高品質JPEG
		"-",
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("フレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	img, err := jpeg.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}

	return img, nil
}

// TestCapture はデバイステスト用の簡単なキャプチャ機能
func (c *V4L2Capturer) TestCapture(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.CaptureFrame(testCtx)
	return err
}

// streamArgs は連続キャプチャ用のffmpeg引数を返す
func (c *V4L2Capturer) streamArgs() []string {
	return []string{
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	}
}

// Stream はffmpegを起動し、JPEGフレーム毎に onFrame を呼び出す
// ctx がキャンセルされるかストリームが終了するまでブロックする。
func (c *V4L2Capturer) Stream(ctx context.Context, onFrame func([]byte)) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", c.streamArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	readErr := readJPEGStream(ctx, stdout, onFrame)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		// キャンセル時のプロセス終了エラーは無視
		return nil
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		c.logger.Debug("ffmpeg stderr", "device", c.devicePath, "stderr", stderr.String())
		return fmt.Errorf("ffmpegが異常終了しました: %w", waitErr)
	}
	return nil
}

// readJPEGStream はMJPEGストリームを読み取り、完全なJPEG毎に onFrame を呼び出す
func readJPEGStream(ctx context.Context, r io.Reader, onFrame func([]byte)) error {
	buffer := make([]byte, 64*1024)
	var pending []byte

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.Read(buffer)
		if n > 0 {
			pending = append(pending, buffer[:n]...)
			var frames [][]byte
			frames, pending = splitJPEG(pending)
			for _, frame := range frames {
				onFrame(frame)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}

// splitJPEG はバッファから完全なJPEGフレームを切り出す
//
// 戻り値の残りは次の読み取りで続きを追加するためのデータ。
// SOIより前のゴミは捨てる。
func splitJPEG(data []byte) ([][]byte, []byte) {
	var frames [][]byte

	for {
		start := bytes.Index(data, jpegSOI)
		if start == -1 {
			// 末尾の0xFFはマーカーの途中の可能性がある
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				return frames, data[len(data)-1:]
			}
			return frames, nil
		}
		data = data[start:]

		end := bytes.Index(data[len(jpegSOI):], jpegEOI)
		if end == -1 {
			return frames, data
		}
		end += len(jpegSOI) + len(jpegEOI)

		frame := make([]byte, end)
		copy(frame, data[:end])
		frames = append(frames, frame)

		data = data[end:]
	}
}
