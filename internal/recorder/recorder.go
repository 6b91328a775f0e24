package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"tileview/internal/tile"
)

// ErrUnknownSlot は記録を開始していないスロットへの書き込みで返すエラー
var ErrUnknownSlot = errors.New("記録していないスロット")

// StartFunc は動画ライターを起動する
// 書き込まれたJPEGを順に動画へ変換し、Close で確定する。
type StartFunc func(ctx context.Context, path string, fps int) (io.WriteCloser, error)

// Status は記録のステータス
type Status string

const (
	StatusRecording Status = "recording" // 記録中
	StatusCompleted Status = "completed" // 完了
	StatusError     Status = "error"     // エラー
)

// Recording はスロット毎の記録情報
type Recording struct {
	Slot      tile.SlotID `json:"slot"`
	FilePath  string      `json:"file_path"`
	Frames    int         `json:"frames"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time,omitempty"`
	Status    Status      `json:"status"`
}

type writer struct {
	out  io.WriteCloser
	info Recording
}

// Recorder はスロット毎に動画ファイルを書き出す Sink
type Recorder struct {
	mu        sync.Mutex
	outputDir string
	fps       int
	quality   int
	session   string
	start     StartFunc
	logger    *log.Logger
	writers   map[tile.SlotID]*writer
	done      []Recording
}

// Option は Recorder の設定を変更する
type Option func(*Recorder)

// WithStartFunc は動画ライターの起動方法を差し替える
func WithStartFunc(fn StartFunc) Option {
	return func(r *Recorder) {
		r.start = fn
	}
}

// New は新しいRecorderを作成する
// quality は1(低)から5(高)で指定する。
func New(outputDir string, fps, quality int, logger *log.Logger, opts ...Option) (*Recorder, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("無効なFPS: %d", fps)
	}
	if quality < 1 || quality > 5 {
		return nil, fmt.Errorf("無効な動画品質: %d", quality)
	}

	r := &Recorder{
		outputDir: outputDir,
		fps:       fps,
		quality:   quality,
		session:   uuid.New().String(),
		start:     StartFFmpeg,
		logger:    logger,
		writers:   make(map[tile.SlotID]*writer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Session は記録セッションIDを返す
func (r *Recorder) Session() string {
	return r.session
}

// Path はスロットの出力ファイルパスを返す
func (r *Recorder) Path(slot tile.SlotID) string {
	return filepath.Join(r.outputDir, fmt.Sprintf("slot_%d_%s.avi", slot, r.session))
}

// Open はスロットの動画ライターを起動する
func (r *Recorder) Open(ctx context.Context, slot tile.SlotID, _ tile.Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.writers[slot]; ok {
		return nil
	}

	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗: %w", err)
	}

	path := r.Path(slot)
	out, err := r.start(ctx, path, r.fps)
	if err != nil {
		return fmt.Errorf("スロット %d の動画ライター起動に失敗: %w", slot, err)
	}

	r.writers[slot] = &writer{
		out: out,
		info: Recording{
			Slot:      slot,
			FilePath:  path,
			StartTime: time.Now(),
			Status:    StatusRecording,
		},
	}
	r.logger.Info("記録を開始しました", "slot", slot, "path", path)
	return nil
}

// Present はタイルをJPEGにしてライターに書き込む
func (r *Recorder) Present(_ context.Context, slot tile.SlotID, img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.writers[slot]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}

	if err := jpeg.Encode(w.out, img, &jpeg.Options{Quality: jpegQuality(r.quality)}); err != nil {
		w.info.Status = StatusError
		return fmt.Errorf("スロット %d の書き込みに失敗: %w", slot, err)
	}
	w.info.Frames++
	return nil
}

// Recordings はスロットID順の記録情報を返す
// 記録中のものと Close で確定したものの両方を含む。
func (r *Recorder) Recordings() []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Recording, 0, len(r.writers)+len(r.done))
	out = append(out, r.done...)
	for _, w := range r.writers {
		out = append(out, w.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Close は全ての動画ライターを閉じる
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for slot, w := range r.writers {
		w.info.EndTime = time.Now()
		if err := w.out.Close(); err != nil {
			w.info.Status = StatusError
			errs = append(errs, fmt.Errorf("スロット %d の動画確定に失敗: %w", slot, err))
		} else if w.info.Status == StatusRecording {
			w.info.Status = StatusCompleted
		}
		r.logger.Info("記録を終了しました", "slot", slot, "frames", w.info.Frames, "status", w.info.Status)
		r.done = append(r.done, w.info)
	}
	r.writers = make(map[tile.SlotID]*writer)
	return errors.Join(errs...)
}

// jpegQuality は品質設定をJPEG品質に変換する
// 品質1(低) -> 20, 品質5(高) -> 100
func jpegQuality(quality int) int {
	return min(max(quality, 1), 5) * 20
}
