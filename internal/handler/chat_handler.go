// Package handler はHTTPリクエストの受け付けとレスポンスの生成を担う。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/chatkeep/internal/middleware"
	"github.com/hitoshi/chatkeep/internal/model"
)

// ChatServiceInterface は会話・メッセージハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	// CreateConversation は呼び出し元を所有者とする新しい会話を作成する。
	CreateConversation(ctx context.Context, ownerIdentity, title string) (*model.Conversation, error)
	// ListConversations は呼び出し元が所有する会話一覧をupdated_at降順で返す。
	ListConversations(ctx context.Context, ownerIdentity string) ([]*model.Conversation, error)
	// ListMessages は会話内の全メッセージをcreated_at昇順で返す。
	ListMessages(ctx context.Context, ownerIdentity, conversationID string) ([]*model.Message, error)
	// AppendMessage は会話にメッセージを追記する。
	AppendMessage(ctx context.Context, ownerIdentity, conversationID, role, content string) (*model.Message, error)
}

// ChatHandler は会話・メッセージ管理のHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// createConversationRequest は会話作成リクエストのボディ。
type createConversationRequest struct {
	Title string `json:"title"`
}

// conversationResponse は会話のレスポンス。
type conversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// conversationListResponse は会話一覧のレスポンス。
type conversationListResponse struct {
	Conversations []conversationResponse `json:"conversations"`
}

// appendMessageRequest はメッセージ追記リクエストのボディ。
type appendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

// messageResponse はメッセージのレスポンス。
type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// messageListResponse はメッセージ一覧のレスポンス。
type messageListResponse struct {
	Messages []messageResponse `json:"messages"`
}

// --- ハンドラー ---

// CreateConversation は新しい会話を作成する。
// POST /api/conversations
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.CallerIdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	conv, err := h.service.CreateConversation(r.Context(), identity, req.Title)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toConversationResponse(conv))
}

// ListConversations は呼び出し元が所有する会話一覧を取得する。
// GET /api/conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.CallerIdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	convs, err := h.service.ListConversations(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := conversationListResponse{
		Conversations: make([]conversationResponse, len(convs)),
	}
	for i, conv := range convs {
		resp.Conversations[i] = toConversationResponse(conv)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListMessages は会話内のメッセージ一覧を取得する。
// GET /api/messages?conversation_id=xxx
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.CallerIdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "conversation_idパラメータが必要です。",
			Category: "validation",
			Action:   "クエリパラメータconversation_idを指定してください。",
		})
		return
	}

	msgs, err := h.service.ListMessages(r.Context(), identity, conversationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := messageListResponse{
		Messages: make([]messageResponse, len(msgs)),
	}
	for i, msg := range msgs {
		resp.Messages[i] = toMessageResponse(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// AppendMessage は会話にメッセージを追記する。
// POST /api/messages
func (h *ChatHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.CallerIdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.ConversationID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "conversation_idフィールドが必要です。",
			Category: "validation",
			Action:   "追記先の会話IDを指定してください。",
		})
		return
	}

	msg, err := h.service.AppendMessage(r.Context(), identity, req.ConversationID, req.Role, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMessageResponse(msg))
}

// --- 変換ヘルパー ---

// toConversationResponse はドメインのConversationをレスポンス型に変換する。
// owner_identityはレスポンスに含めない。
func toConversationResponse(conv *model.Conversation) conversationResponse {
	return conversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

// toMessageResponse はドメインのMessageをレスポンス型に変換する。
func toMessageResponse(msg *model.Message) messageResponse {
	return messageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
}

// --- エラーレスポンス ---

// apiErrorResponse はAPIエラーのJSONレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse はAPIErrorをJSONレスポンスとして書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeConversationNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRole, model.ErrCodeEmptyContent, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeRefreshFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
