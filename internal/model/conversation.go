// Package model はドメインモデルを定義する。
package model

import "time"

// Conversation はユーザーとエージェントの会話スレッドを表す。
// 所有者は1人のみ。メッセージの読み書きは所有者チェックを通過した場合のみ許可される。
type Conversation struct {
	ID            string
	OwnerIdentity string
	Title         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Role はメッセージの発話者種別を表す。
type Role string

const (
	// RoleUser はエンドユーザーの発話を示す。
	RoleUser Role = "user"
	// RoleAssistant はエージェントの応答を示す。
	RoleAssistant Role = "assistant"
	// RoleSystem はシステムプロンプト等の制御メッセージを示す。
	RoleSystem Role = "system"
)

// IsValid はRoleが定義済みの値かどうかを判定する。
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message は会話内の1発話を表す。作成後は不変で、更新・削除操作は存在しない。
// 会話内のメッセージはcreated_at昇順が正準の transcript 順序となる。
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	CreatedAt      time.Time
}
