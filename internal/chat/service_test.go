package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/chatkeep/internal/model"
	"github.com/hitoshi/chatkeep/internal/repository"
	"github.com/hitoshi/chatkeep/internal/security"
)

// --- モック定義 ---

type mockConversationRepo struct {
	createFn           func(ctx context.Context, conv *model.Conversation) error
	findByIDAndOwnerFn func(ctx context.Context, id, owner string) (*model.Conversation, error)
	listByOwnerFn      func(ctx context.Context, owner string) ([]*model.Conversation, error)
}

func (m *mockConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	if m.createFn != nil {
		return m.createFn(ctx, conv)
	}
	return nil
}

func (m *mockConversationRepo) FindByIDAndOwner(ctx context.Context, id, owner string) (*model.Conversation, error) {
	if m.findByIDAndOwnerFn != nil {
		return m.findByIDAndOwnerFn(ctx, id, owner)
	}
	return nil, nil
}

func (m *mockConversationRepo) ListByOwner(ctx context.Context, owner string) ([]*model.Conversation, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, owner)
	}
	return nil, nil
}

type mockMessageRepo struct {
	createWithTouchFn    func(ctx context.Context, msg *model.Message) error
	listByConversationFn func(ctx context.Context, conversationID string) ([]*model.Message, error)
}

func (m *mockMessageRepo) CreateWithTouch(ctx context.Context, msg *model.Message) error {
	if m.createWithTouchFn != nil {
		return m.createWithTouchFn(ctx, msg)
	}
	return nil
}

func (m *mockMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*model.Message, error) {
	if m.listByConversationFn != nil {
		return m.listByConversationFn(ctx, conversationID)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.ConversationRepository = (*mockConversationRepo)(nil)
var _ repository.MessageRepository = (*mockMessageRepo)(nil)

// ownedConv は所有者チェックを通過する会話を返すモック関数を生成する。
func ownedConv(convID, owner string) func(ctx context.Context, id, o string) (*model.Conversation, error) {
	return func(ctx context.Context, id, o string) (*model.Conversation, error) {
		if id == convID && o == owner {
			return &model.Conversation{ID: convID, OwnerIdentity: owner}, nil
		}
		return nil, nil
	}
}

func newTestService(convRepo *mockConversationRepo, msgRepo *mockMessageRepo) *Service {
	return NewService(convRepo, msgRepo, security.NewContentSanitizer(), nil)
}

// --- テスト ---

// 会話作成で所有者・ID・タイムスタンプが設定されることを検証
func TestCreateConversation_SetsOwnerAndTimestamps(t *testing.T) {
	var created *model.Conversation
	convRepo := &mockConversationRepo{
		createFn: func(ctx context.Context, conv *model.Conversation) error {
			created = conv
			return nil
		},
	}
	svc := newTestService(convRepo, &mockMessageRepo{})

	conv, err := svc.CreateConversation(context.Background(), "user-a", "助成金の相談")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	if created == nil {
		t.Fatal("expected conversation to be persisted")
	}
	if conv.ID == "" {
		t.Error("expected server-assigned conversation ID")
	}
	if conv.OwnerIdentity != "user-a" {
		t.Errorf("owner = %q, want %q", conv.OwnerIdentity, "user-a")
	}
	if conv.CreatedAt.IsZero() || !conv.UpdatedAt.Equal(conv.CreatedAt) {
		t.Errorf("expected created_at == updated_at, got %v / %v", conv.CreatedAt, conv.UpdatedAt)
	}
}

// 他ユーザーの会話へのアクセスが存在しない会話と同一のNotFoundになることを検証
func TestListMessages_NotOwned_SameAsNonexistent(t *testing.T) {
	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	svc := newTestService(convRepo, &mockMessageRepo{})

	// 他ユーザー（user-b）によるアクセス
	_, errNotOwned := svc.ListMessages(context.Background(), "user-b", "conv-1")
	// 存在しない会話へのアクセス
	_, errMissing := svc.ListMessages(context.Background(), "user-a", "no-such-conv")

	var apiErr1, apiErr2 *model.APIError
	if !errors.As(errNotOwned, &apiErr1) || apiErr1.Code != model.ErrCodeConversationNotFound {
		t.Fatalf("not-owned error = %v, want CONVERSATION_NOT_FOUND", errNotOwned)
	}
	if !errors.As(errMissing, &apiErr2) || apiErr2.Code != model.ErrCodeConversationNotFound {
		t.Fatalf("missing error = %v, want CONVERSATION_NOT_FOUND", errMissing)
	}

	// エラー形状が区別できないこと
	if apiErr1.Code != apiErr2.Code || apiErr1.Category != apiErr2.Category {
		t.Error("not-owned and nonexistent errors must be indistinguishable")
	}
}

// 空の会話で空スライスが返ることを検証（エラーではない）
func TestListMessages_EmptyConversation_ReturnsEmptySlice(t *testing.T) {
	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	svc := newTestService(convRepo, &mockMessageRepo{})

	msgs, err := svc.ListMessages(context.Background(), "user-a", "conv-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if msgs == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(msgs) != 0 {
		t.Errorf("len(msgs) = %d, want 0", len(msgs))
	}
}

// メッセージがcreated_at昇順で返ることを検証
func TestListMessages_ReturnsMessagesInOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := []*model.Message{
		{ID: "msg-1", Role: model.RoleUser, Content: "hello", CreatedAt: base},
		{ID: "msg-2", Role: model.RoleAssistant, Content: "hi", CreatedAt: base.Add(time.Second)},
	}

	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	msgRepo := &mockMessageRepo{
		listByConversationFn: func(ctx context.Context, conversationID string) ([]*model.Message, error) {
			return stored, nil
		},
	}
	svc := newTestService(convRepo, msgRepo)

	msgs, err := svc.ListMessages(context.Background(), "user-a", "conv-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "msg-1" || msgs[1].ID != "msg-2" {
		t.Errorf("unexpected order: %s, %s", msgs[0].ID, msgs[1].ID)
	}
}

// メッセージ追記でIDとタイムスタンプが付与されることを検証
func TestAppendMessage_AssignsIDAndTimestamp(t *testing.T) {
	var inserted *model.Message
	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	msgRepo := &mockMessageRepo{
		createWithTouchFn: func(ctx context.Context, msg *model.Message) error {
			inserted = msg
			return nil
		},
	}
	svc := newTestService(convRepo, msgRepo)

	msg, err := svc.AppendMessage(context.Background(), "user-a", "conv-1", "user", "hello")
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	if inserted == nil {
		t.Fatal("expected message to be persisted")
	}
	if msg.ID == "" {
		t.Error("expected server-assigned message ID")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("expected server-assigned timestamp")
	}
	if msg.Role != model.RoleUser || msg.Content != "hello" {
		t.Errorf("message = {%s, %q}, want {user, hello}", msg.Role, msg.Content)
	}
}

// 不正roleが拒否され、挿入が一切行われないことを検証
func TestAppendMessage_InvalidRole_NoInsert(t *testing.T) {
	insertCalled := false
	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	msgRepo := &mockMessageRepo{
		createWithTouchFn: func(ctx context.Context, msg *model.Message) error {
			insertCalled = true
			return nil
		},
	}
	svc := newTestService(convRepo, msgRepo)

	_, err := svc.AppendMessage(context.Background(), "user-a", "conv-1", "moderator", "hello")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRole {
		t.Fatalf("error = %v, want INVALID_ROLE", err)
	}
	if insertCalled {
		t.Error("insert must not happen on validation failure")
	}
}

// 空コンテンツが拒否されることを検証
func TestAppendMessage_EmptyContent_Rejected(t *testing.T) {
	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	svc := newTestService(convRepo, &mockMessageRepo{})

	for _, content := range []string{"", "   ", "<script>alert(1)</script>"} {
		_, err := svc.AppendMessage(context.Background(), "user-a", "conv-1", "user", content)

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmptyContent {
			t.Errorf("AppendMessage(content=%q) error = %v, want EMPTY_CONTENT", content, err)
		}
	}
}

// 他ユーザーの会話への追記がNotFoundになることを検証
func TestAppendMessage_NotOwned_ReturnsNotFound(t *testing.T) {
	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	svc := newTestService(convRepo, &mockMessageRepo{})

	_, err := svc.AppendMessage(context.Background(), "user-b", "conv-1", "user", "hello")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeConversationNotFound {
		t.Fatalf("error = %v, want CONVERSATION_NOT_FOUND", err)
	}
}

// HTML混じりの本文がプレーンテキストとして保存されることを検証
func TestAppendMessage_SanitizesContent(t *testing.T) {
	var inserted *model.Message
	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	msgRepo := &mockMessageRepo{
		createWithTouchFn: func(ctx context.Context, msg *model.Message) error {
			inserted = msg
			return nil
		},
	}
	svc := newTestService(convRepo, msgRepo)

	_, err := svc.AppendMessage(context.Background(), "user-a", "conv-1", "user",
		`hello <script>alert("xss")</script>world`)
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if inserted.Content != "hello world" {
		t.Errorf("content = %q, want %q", inserted.Content, "hello world")
	}
}

// リポジトリのエラーがそのまま伝播することを検証（内部エラー扱いになる）
func TestAppendMessage_RepoError_Propagates(t *testing.T) {
	repoErr := errors.New("connection refused")
	convRepo := &mockConversationRepo{
		findByIDAndOwnerFn: ownedConv("conv-1", "user-a"),
	}
	msgRepo := &mockMessageRepo{
		createWithTouchFn: func(ctx context.Context, msg *model.Message) error {
			return repoErr
		},
	}
	svc := newTestService(convRepo, msgRepo)

	_, err := svc.AppendMessage(context.Background(), "user-a", "conv-1", "user", "hello")
	if !errors.Is(err, repoErr) {
		t.Errorf("error = %v, want wrapped %v", err, repoErr)
	}
}
