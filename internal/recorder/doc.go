// Package recorder はスロット毎のタイルを動画ファイルとして記録する。
package recorder
