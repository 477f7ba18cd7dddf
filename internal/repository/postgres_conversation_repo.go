package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/chatkeep/internal/model"
)

// PostgresConversationRepo はPostgreSQLを使用した会話リポジトリ。
type PostgresConversationRepo struct {
	db *sql.DB
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

// Create は会話を作成する。
func (r *PostgresConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, owner_identity, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		conv.ID, conv.OwnerIdentity, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("会話の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByIDAndOwner は指定IDかつ指定所有者の会話を取得する。
// 存在しない場合・所有者不一致の場合はどちらもnilを返す。
func (r *PostgresConversationRepo) FindByIDAndOwner(ctx context.Context, id, ownerIdentity string) (*model.Conversation, error) {
	conv := &model.Conversation{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_identity, title, created_at, updated_at
		 FROM conversations WHERE id = $1 AND owner_identity = $2`,
		id, ownerIdentity,
	).Scan(&conv.ID, &conv.OwnerIdentity, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}

	return conv, nil
}

// ListByOwner は所有者の会話一覧をupdated_at降順で返す。
func (r *PostgresConversationRepo) ListByOwner(ctx context.Context, ownerIdentity string) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_identity, title, created_at, updated_at
		 FROM conversations
		 WHERE owner_identity = $1
		 ORDER BY updated_at DESC`,
		ownerIdentity,
	)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		conv := &model.Conversation{}
		if err := rows.Scan(&conv.ID, &conv.OwnerIdentity, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("会話一覧の読み取りに失敗しました: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("会話一覧の走査に失敗しました: %w", err)
	}

	return convs, nil
}

// compile-time interface check
var _ ConversationRepository = (*PostgresConversationRepo)(nil)
