// Command bookclub は読書会アプリケーションのエントリーポイント。
//
// サブコマンド:
//
//	serve        HTTPサーバー（デフォルト）
//	worker       補足資料の取り込みと期限切れセッションの削除
//	migrate      マイグレーションの適用（migrate down [steps] で巻き戻し）
//	provision    クラブ、ユーザー、所属の登録
//	healthcheck  /health の疎通確認
package main

import (
	"fmt"
	"os"

	// distrolessイメージにはタイムゾーンDBがないため埋め込む
	_ "time/tzdata"

	"github.com/hitoshi/bookclub/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
