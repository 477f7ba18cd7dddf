// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/chatkeep/internal/model"
)

// ConversationRepository は会話データの永続化インターフェース。
type ConversationRepository interface {
	// Create は会話を作成する。
	Create(ctx context.Context, conv *model.Conversation) error

	// FindByIDAndOwner は指定IDかつ指定所有者の会話を取得する。
	// 存在しない場合・所有者が一致しない場合のいずれもnilを返す。
	// 両者を区別しないことで会話IDの存在推測を防ぐ。
	FindByIDAndOwner(ctx context.Context, id, ownerIdentity string) (*model.Conversation, error)

	// ListByOwner は所有者の会話一覧をupdated_at降順で返す。
	ListByOwner(ctx context.Context, ownerIdentity string) ([]*model.Conversation, error)
}

// MessageRepository はメッセージデータの永続化インターフェース。
type MessageRepository interface {
	// CreateWithTouch はメッセージを挿入し、同一トランザクションで
	// 親会話のupdated_atをメッセージのcreated_atまで前進させる。
	// 挿入とタイムスタンプ更新が分離して観測されることはない。
	CreateWithTouch(ctx context.Context, msg *model.Message) error

	// ListByConversation は会話内の全メッセージをcreated_at昇順で返す。
	// メッセージが存在しない場合は空スライスを返す。
	ListByConversation(ctx context.Context, conversationID string) ([]*model.Message, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
