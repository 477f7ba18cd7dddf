// Package chat は会話とメッセージに関するビジネスロジックを提供する。
// すべての操作は検証済みの呼び出し元identityを前提とし、
// 会話への読み書きは所有者チェックを通過した場合のみ許可される。
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/chatkeep/internal/model"
	"github.com/hitoshi/chatkeep/internal/repository"
	"github.com/hitoshi/chatkeep/internal/security"
)

// MetricsRecorder はメッセージ操作のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordMessageAppended(role string)
	RecordAppendLatency(duration time.Duration)
}

// Service は会話・メッセージに関するビジネスロジックを提供する。
type Service struct {
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	sanitizer security.ContentSanitizerService
	metrics   MetricsRecorder
}

// NewService はServiceを生成する。metricsはnil可（記録をスキップする）。
func NewService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	sanitizer security.ContentSanitizerService,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// CreateConversation は呼び出し元を所有者とする新しい会話を作成する。
// タイトルは空でもよい（UIが後から命名する）。
func (s *Service) CreateConversation(ctx context.Context, ownerIdentity, title string) (*model.Conversation, error) {
	now := time.Now()
	conv := &model.Conversation{
		ID:            uuid.New().String(),
		OwnerIdentity: ownerIdentity,
		Title:         s.sanitizer.Sanitize(title),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}

	return conv, nil
}

// ListConversations は呼び出し元が所有する会話一覧をupdated_at降順で返す。
func (s *Service) ListConversations(ctx context.Context, ownerIdentity string) ([]*model.Conversation, error) {
	return s.convRepo.ListByOwner(ctx, ownerIdentity)
}

// ListMessages は会話内の全メッセージをcreated_at昇順で返す。
// 会話が存在しない場合と呼び出し元が所有者でない場合は同一のNotFoundエラーを返す。
// メッセージのない会話では空スライスを返す（エラーではない）。
func (s *Service) ListMessages(ctx context.Context, ownerIdentity, conversationID string) ([]*model.Message, error) {
	conv, err := s.convRepo.FindByIDAndOwner(ctx, conversationID, ownerIdentity)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, model.NewConversationNotFoundError(conversationID)
	}

	msgs, err := s.msgRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}

	return msgs, nil
}

// AppendMessage は会話にメッセージを追記する。
// バリデーション: roleはuser/assistant/systemのいずれか、本文は空不可
// （サニタイズ後に空になる場合も空とみなす）。
// 所有者チェックはListMessagesと同一の合流セマンティクスを持つ。
// 挿入と親会話のupdated_at更新は同一トランザクションで行われる。
func (s *Service) AppendMessage(ctx context.Context, ownerIdentity, conversationID, role, content string) (*model.Message, error) {
	start := time.Now()

	if !model.Role(role).IsValid() {
		return nil, model.NewInvalidRoleError(role)
	}

	sanitized := s.sanitizer.Sanitize(content)
	if sanitized == "" {
		return nil, model.NewEmptyContentError()
	}

	conv, err := s.convRepo.FindByIDAndOwner(ctx, conversationID, ownerIdentity)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, model.NewConversationNotFoundError(conversationID)
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           model.Role(role),
		Content:        sanitized,
		CreatedAt:      time.Now(),
	}

	if err := s.msgRepo.CreateWithTouch(ctx, msg); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordMessageAppended(role)
		s.metrics.RecordAppendLatency(time.Since(start))
	}

	return msg, nil
}
