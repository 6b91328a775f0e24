// Package tile はフレームをタイルに分割し、表示スロットを安定して割り当てる
//
// # 責務
// - フレームサイズと固定グリッドからアライメントを守ったタイル矩形を計算する
// - グリッドのセル毎に一度だけスロットIDを割り当て、アロケーターの寿命の間保持する
// - スロット毎の「外部リソース作成済み」フラグを管理する
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 1つのフレームを複数のプレビューウィンドウに分割表示したい
// - タイル毎に長寿命の出力先（ウィンドウ、動画ライター）を再利用したい
//
// # 仕様
//   - 行優先（ty が外側、tx が内側）でセル番号 ty*TilesX+tx を振る
//   - タイル幅・高さはそれぞれの軸のアライメント単位の倍数に切り捨てる
//   - レイアウト計算は全部成功するか、何も変更しないかのどちらか
//   - 内部で排他制御はしない。1つのフレーム処理ループが所有する
//
// ウィンドウやエンコーダーなどの外部リソースには一切触れない。
package tile
