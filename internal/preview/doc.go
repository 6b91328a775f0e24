// Package preview はフレームをタイルに分割し、スロット毎の出力先に配信する
//
// # 責務
// - フレームソースからフレームを受け取り、tile.Allocator でレイアウトを計算する
// - スロットを初めて使うときだけ出力先（Sink）を開く
// - タイル領域をゼロコピーで切り出して Sink に渡す
//
// # 仕様
//   - Tiler: 1つのフレーム処理ループ。アロケーターを所有し、読み取りは排他制御する
//   - Hub: スロット毎の最新JPEGを保持し、購読者へ配信する（MJPEG用）
//   - Mosaic: ウィンドウ配置どおりに全タイルを1枚の画面イメージに合成する
//   - MultiSink: 複数の Sink へ同じタイルを配信する
//
// タイル分割できないフレームはスキップし、ループは継続する。
package preview
