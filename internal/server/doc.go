// Package server は、タイルプレビューを配信するHTTPサーバーを管理します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - スロット状態とレイアウト計算のAPI
//   - スロット毎のMJPEGストリームとスナップショットの配信
//   - ウィンドウ配置どおりに並べた確認用ページの配信
//
// 仕様:
//   - ルーティングは gin を使用
//   - ストリームは multipart/x-mixed-replace で配信
//   - 複数クライアントの同時接続をサポート
package server
