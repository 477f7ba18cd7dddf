package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, credential, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrCodeInvalidRole          = "INVALID_ROLE"
	ErrCodeEmptyContent         = "EMPTY_CONTENT"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeRefreshFailed        = "REFRESH_FAILED"
)

// NewUnauthenticatedError は未認証エラーを生成する。
// セッションCookie欠落・署名不正・期限切れのいずれでも同一のエラーを返し、
// 検証内部の失敗理由を外部に漏らさない。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewConversationNotFoundError は会話未検出エラーを生成する。
// 「存在しない」と「他ユーザーの所有物」を意図的に区別しない。
// 区別すると会話IDの存在が推測可能になるため。
func NewConversationNotFoundError(conversationID string) *APIError {
	return &APIError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("指定された会話が見つかりません: %s", conversationID),
		Category: "chat",
		Action:   "会話IDを確認してください。",
	}
}

// NewInvalidRoleError は無効なロールエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "ロールには user、assistant、system のいずれかを指定してください。",
	}
}

// NewEmptyContentError は空コンテンツエラーを生成する。
func NewEmptyContentError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyContent,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "本文を入力してください。",
	}
}

// NewRefreshFailedError はトークンリフレッシュ失敗エラーを生成する。
// 自動リトライはせず、呼び出し側が再認可を促すかどうかを判断する。
func NewRefreshFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRefreshFailed,
		Message:  fmt.Sprintf("アクセストークンの更新に失敗しました: %s", reason),
		Category: "credential",
		Action:   "サードパーティ連携の再認可を行ってください。",
	}
}
