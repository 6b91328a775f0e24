package recorder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

// ffmpegWriter は ffmpeg の標準入力に MJPEG を流し込むライター
type ffmpegWriter struct {
	stdin  io.WriteCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

// ffmpegArgs は image2pipe から AVI(MJPEG) を作る引数を返す
func ffmpegArgs(path string, fps int) []string {
	return []string{
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(fps),
		"-c:v", "mjpeg",
		"-i", "-",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-y", // 上書き許可
		path,
	}
}

// StartFFmpeg は ffmpeg を起動して動画ライターを返す
// ctx のキャンセルでは ffmpeg を止めない。終了は Close で標準入力を閉じて行う
func StartFFmpeg(ctx context.Context, path string, fps int) (io.WriteCloser, error) {
	cmd := exec.CommandContext(context.WithoutCancel(ctx), "ffmpeg", ffmpegArgs(path, fps)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("標準入力の作成に失敗: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg の起動に失敗: %w", err)
	}

	return &ffmpegWriter{stdin: stdin, cmd: cmd, stderr: &stderr}, nil
}

func (w *ffmpegWriter) Write(p []byte) (int, error) {
	return w.stdin.Write(p)
}

// Close は入力を閉じて ffmpeg の終了を待つ
func (w *ffmpegWriter) Close() error {
	if err := w.stdin.Close(); err != nil {
		return fmt.Errorf("標準入力のクローズに失敗: %w", err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg が異常終了しました: %w (output: %s)", err, w.stderr.String())
	}
	return nil
}

// ValidateFFmpeg はFFmpegが利用可能かチェックする
func ValidateFFmpeg(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("FFmpegが見つかりません。インストールしてください: %w", err)
	}

	return nil
}
