package recorder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"tileview/internal/tile"
)

// memoryWriter は書き込まれたJPEGを保持するテスト用ライター
type memoryWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (m *memoryWriter) Close() error {
	m.closed = true
	return m.closeErr
}

type memoryStarter struct {
	writers map[string]*memoryWriter
	fps     int
	err     error
}

func (s *memoryStarter) start(_ context.Context, path string, fps int) (io.WriteCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	w := &memoryWriter{}
	s.writers[path] = w
	s.fps = fps
	return w, nil
}

func newTestRecorder(t *testing.T) (*Recorder, *memoryStarter) {
	t.Helper()
	starter := &memoryStarter{writers: make(map[string]*memoryWriter)}
	r, err := New(t.TempDir(), 12, 3, log.New(io.Discard), WithStartFunc(starter.start))
	if err != nil {
		t.Fatalf("Recorder の作成に失敗しました: %v", err)
	}
	return r, starter
}

// TestRecorder はスロット毎の記録をテストする
func TestRecorder(t *testing.T) {
	r, starter := newTestRecorder(t)
	ctx := context.Background()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))

	for _, slot := range []tile.SlotID{5, 3} {
		if err := r.Open(ctx, slot, tile.Rect{}); err != nil {
			t.Fatalf("Open に失敗しました: %v", err)
		}
	}
	// 2回目の Open は何もしない
	if err := r.Open(ctx, 5, tile.Rect{}); err != nil {
		t.Fatalf("Open に失敗しました: %v", err)
	}
	if len(starter.writers) != 2 {
		t.Fatalf("ライター数が一致しません: got %d, want 2", len(starter.writers))
	}
	if starter.fps != 12 {
		t.Errorf("FPSが渡されていません: %d", starter.fps)
	}

	for i := 0; i < 3; i++ {
		if err := r.Present(ctx, 5, img); err != nil {
			t.Fatalf("Present に失敗しました: %v", err)
		}
	}

	path := r.Path(5)
	if base := filepath.Base(path); !strings.HasPrefix(base, "slot_5_") || !strings.HasSuffix(base, r.Session()+".avi") {
		t.Errorf("ファイル名が一致しません: %s", base)
	}

	w := starter.writers[path]
	first, err := jpeg.Decode(bytes.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("書き込まれたJPEGのデコードに失敗しました: %v", err)
	}
	if first.Bounds().Dx() != 16 {
		t.Errorf("画像サイズが一致しません: %v", first.Bounds())
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close に失敗しました: %v", err)
	}
	if !w.closed {
		t.Error("ライターが閉じられていません")
	}

	recs := r.Recordings()
	if len(recs) != 2 || recs[0].Slot != 3 || recs[1].Slot != 5 {
		t.Fatalf("記録情報が一致しません: %+v", recs)
	}
	if recs[1].Frames != 3 || recs[1].Status != StatusCompleted {
		t.Errorf("スロット5の記録情報: %+v", recs[1])
	}
}

// TestRecorder_Errors はエラー時の動作をテストする
func TestRecorder_Errors(t *testing.T) {
	r, starter := newTestRecorder(t)
	ctx := context.Background()

	if err := r.Present(ctx, 1, image.NewRGBA(image.Rect(0, 0, 4, 4))); !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("ErrUnknownSlot が期待されましたが %v でした", err)
	}

	starter.err = errors.New("起動できません")
	if err := r.Open(ctx, 1, tile.Rect{}); err == nil {
		t.Error("起動失敗でエラーが期待されました")
	}

	starter.err = nil
	if err := r.Open(ctx, 2, tile.Rect{}); err != nil {
		t.Fatalf("Open に失敗しました: %v", err)
	}
	starter.writers[r.Path(2)].closeErr = errors.New("確定できません")
	if err := r.Close(); err == nil {
		t.Error("確定失敗でエラーが期待されました")
	}
	if recs := r.Recordings(); len(recs) != 1 || recs[0].Status != StatusError {
		t.Errorf("記録情報が一致しません: %+v", recs)
	}
}

// TestNew は設定の検証をテストする
func TestNew(t *testing.T) {
	testCases := []struct {
		name      string
		fps       int
		quality   int
		expectErr bool
	}{
		{name: "正常", fps: 10, quality: 3},
		{name: "FPSが0", fps: 0, quality: 3, expectErr: true},
		{name: "品質が0", fps: 10, quality: 0, expectErr: true},
		{name: "品質が6", fps: 10, quality: 6, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(t.TempDir(), tc.fps, tc.quality, log.New(io.Discard))
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestJPEGQuality は品質変換をテストする
func TestJPEGQuality(t *testing.T) {
	testCases := []struct {
		quality int
		want    int
	}{
		{quality: 1, want: 20},
		{quality: 3, want: 60},
		{quality: 5, want: 100},
		{quality: 0, want: 20},
		{quality: 9, want: 100},
	}

	for _, tc := range testCases {
		if got := jpegQuality(tc.quality); got != tc.want {
			t.Errorf("jpegQuality(%d) = %d, want %d", tc.quality, got, tc.want)
		}
	}
}

// TestFFmpegArgs は ffmpeg 引数の生成をテストする
func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("/tmp/out.avi", 15)
	joined := strings.Join(args, " ")

	for _, want := range []string{"-f image2pipe", "-framerate 15", "-i -", "-c:v mjpeg"} {
		if !strings.Contains(joined, want) {
			t.Errorf("引数に %q が含まれていません: %s", want, joined)
		}
	}
	if args[len(args)-1] != "/tmp/out.avi" {
		t.Errorf("出力パスが末尾にありません: %v", args)
	}
}

// fakeFFmpeg は標準入力を最終引数のファイルへ書き、EOF で末尾に TRAILER を付ける ffmpeg を PATH に置く
func fakeFFmpeg(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("シェルスクリプトが必要です")
	}
	dir := t.TempDir()
	script := `#!/bin/sh
for last; do :; done
cat > "$last" || exit 1
printf TRAILER >> "$last"
`
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(script), 0o755); err != nil {
		t.Fatalf("スクリプトの作成に失敗しました: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// TestStartFFmpeg_CancelBeforeClose は ctx キャンセル後でも Close で動画が確定されることをテストする
func TestStartFFmpeg_CancelBeforeClose(t *testing.T) {
	fakeFFmpeg(t)
	out := filepath.Join(t.TempDir(), "out.avi")

	ctx, cancel := context.WithCancel(context.Background())
	w, err := StartFFmpeg(ctx, out, 10)
	if err != nil {
		t.Fatalf("StartFFmpeg に失敗しました: %v", err)
	}
	if _, err := w.Write([]byte("FRAME")); err != nil {
		t.Fatalf("書き込みに失敗しました: %v", err)
	}
	cancel()

	if err := w.Close(); err != nil {
		t.Fatalf("Close に失敗しました: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("出力の読み込みに失敗しました: %v", err)
	}
	if string(data) != "FRAMETRAILER" {
		t.Errorf("動画が確定されていません: %q", data)
	}
}

// TestRecorder_FFmpeg は ffmpeg 経由の記録の開始と確定をテストする
func TestRecorder_FFmpeg(t *testing.T) {
	fakeFFmpeg(t)
	r, err := New(t.TempDir(), 10, 3, log.New(io.Discard))
	if err != nil {
		t.Fatalf("Recorder の作成に失敗しました: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Open(ctx, 0, tile.Rect{}); err != nil {
		t.Fatalf("Open に失敗しました: %v", err)
	}
	if err := r.Present(ctx, 0, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("Present に失敗しました: %v", err)
	}
	cancel()

	if err := r.Close(); err != nil {
		t.Fatalf("Close に失敗しました: %v", err)
	}
	data, err := os.ReadFile(r.Path(0))
	if err != nil {
		t.Fatalf("出力の読み込みに失敗しました: %v", err)
	}
	if !bytes.HasSuffix(data, []byte("TRAILER")) {
		t.Error("動画が確定されていません")
	}
	if _, err := jpeg.Decode(bytes.NewReader(bytes.TrimSuffix(data, []byte("TRAILER")))); err != nil {
		t.Errorf("JPEGのデコードに失敗しました: %v", err)
	}
	if recs := r.Recordings(); len(recs) != 1 || recs[0].Status != StatusCompleted {
		t.Errorf("記録情報が一致しません: %+v", recs)
	}
}
