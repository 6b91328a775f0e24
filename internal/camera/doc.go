// Package camera はタイル分割の入力となるフレームソースを提供する
//
// # 責務
// - カメラデバイスの検出
// - V4L2デバイスからのフレーム取得（ffmpeg経由）
// - テスト・デモ用の合成フレーム生成
// - フレームと画素フォーマットから tile.FrameDescriptor を作る
//
// # 仕様
// - Source: Start/Stop と Frames チャンネルで統一されたフレームソース
// - USBSource: ffmpeg の image2pipe で MJPEG を受け取り、デコードして配信
// - PatternSource: SMPTE カラーバーを一定FPSで生成
// - Discovery: /dev/video* の検出・実名取得
// - 受け手が遅い場合は古いフレームを捨て、最新フレームだけを残す
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とデバイス制御に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
