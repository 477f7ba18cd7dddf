package repository

import (
	"testing"
)

// PostgresConversationRepoはConversationRepositoryインターフェースを満たすことを検証
func TestPostgresConversationRepo_ImplementsInterface(t *testing.T) {
	var _ ConversationRepository = (*PostgresConversationRepo)(nil)
}

// PostgresMessageRepoはMessageRepositoryインターフェースを満たすことを検証
func TestPostgresMessageRepo_ImplementsInterface(t *testing.T) {
	var _ MessageRepository = (*PostgresMessageRepo)(nil)
}

// NewPostgresConversationRepoが正しく初期化されることを検証
func TestNewPostgresConversationRepo_Initializes(t *testing.T) {
	repo := NewPostgresConversationRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresMessageRepoが正しく初期化されることを検証
func TestNewPostgresMessageRepo_Initializes(t *testing.T) {
	repo := NewPostgresMessageRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}
