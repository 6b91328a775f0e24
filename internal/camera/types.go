package camera

import (
	"context"
	"image"
	"sync"
	"time"

	"tileview/internal/tile"
)

// Status はソースの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // 停止中
	StatusActive   Status = "active"   // 動作中
	StatusError    Status = "error"    // エラーが発生
)

// SourceType はソースタイプを定義
type SourceType string

const (
	// SourceTypeUSB はV4L2のUSBカメラソースを表す
	SourceTypeUSB SourceType = "usb"
	// SourceTypePattern は合成テストパターンソースを表す
	SourceTypePattern SourceType = "pattern"
)

// Frame は取得した1フレーム
type Frame struct {
	Seq       uint64           // 取得順の連番
	Timestamp time.Time        // 取得時刻
	Image     image.Image      // デコード済み画像
	Format    tile.PixelFormat // 元の画素フォーマット
}

// Descriptor はタイル計算用のフレーム情報を返す
func (f Frame) Descriptor() tile.FrameDescriptor {
	return tile.DescribeImage(f.Image, f.Format)
}

// SourceInfo はソース情報を表す
type SourceInfo struct {
	ID     string
	Name   string
	Type   SourceType
	Device string // デバイスパス（USBカメラ等）
	Width  int
	Height int
	FPS    int
}

// Source は全てのフレームソースを統一するインターフェース
type Source interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Frames は取得したフレームを配信する
	Frames() <-chan Frame
	// Errors は取得中のエラーを配信する
	Errors() <-chan error

	Info() SourceInfo
	Status() Status
}

// baseSource は共通実装を提供
type baseSource struct {
	info      SourceInfo
	frameChan chan Frame
	errorChan chan error
	status    Status
	seq       uint64
	closed    bool // frameChan がクローズ済み
	mu        sync.RWMutex
}

func newBaseSource(info SourceInfo) baseSource {
	return baseSource{
		info:      info,
		frameChan: make(chan Frame, 2),
		errorChan: make(chan error, 5),
		status:    StatusInactive,
	}
}

// Info は基本情報を返す
func (b *baseSource) Info() SourceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// Status はステータスを返す
func (b *baseSource) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Frames はフレームチャンネルを返す
// 生成が終了するとチャンネルはクローズされ、再度の Start で新しいチャンネルになる。
func (b *baseSource) Frames() <-chan Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frameChan
}

// Errors はエラーチャンネルを返す
func (b *baseSource) Errors() <-chan error {
	return b.errorChan
}

func (b *baseSource) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// reopenFrames はクローズ済みのフレームチャンネルを作り直す
// 呼び出し側で mu をロックしていること。
func (b *baseSource) reopenFrames() {
	if b.closed {
		b.frameChan = make(chan Frame, cap(b.frameChan))
		b.closed = false
	}
}

// closeFrames はフレームチャンネルをクローズしてステータスを更新する
// 送信する生成ゴルーチン自身が終了時に呼ぶ。
func (b *baseSource) closeFrames(status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		close(b.frameChan)
		b.closed = true
	}
	b.status = status
}

// publish はフレームを送信する
// チャンネルがフルの場合は古いフレームを破棄して最新フレームを残す。
func (b *baseSource) publish(img image.Image, format tile.PixelFormat) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.seq++
	frame := Frame{Seq: b.seq, Timestamp: time.Now(), Image: img, Format: format}
	ch := b.frameChan
	b.mu.Unlock()

	for {
		select {
		case ch <- frame:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// report はエラーを送信する（フルの場合は古いエラーを破棄）
func (b *baseSource) report(err error) {
	select {
	case b.errorChan <- err:
	default:
		select {
		case <-b.errorChan:
		default:
		}
		select {
		case b.errorChan <- err:
		default:
		}
	}
}
