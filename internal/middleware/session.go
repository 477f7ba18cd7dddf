// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/chatkeep/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// callerIdentityContextKey はリクエストコンテキストに呼び出し元identityを格納するためのキー。
var callerIdentityContextKey = contextKey("caller_identity")

// RequestVerifier はリクエストから呼び出し元identityを検証・導出するインターフェース。
// auth.Verifierの部分集合として定義する。
type RequestVerifier interface {
	VerifyRequest(r *http.Request) (string, error)
}

// NewSessionMiddleware はHTTP Only Cookieの署名付きセッショントークンを検証する
// ミドルウェアを返す。検証済みのidentityをリクエストコンテキストに注入する。
// 未認証リクエストには一律で401 Unauthorizedを返す。
// 検証はI/Oを伴わず、失敗理由は区別されない。
func NewSessionMiddleware(verifier RequestVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.VerifyRequest(r)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			ctx := context.WithValue(r.Context(), callerIdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerIdentityFromContext はリクエストコンテキストから呼び出し元identityを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func CallerIdentityFromContext(ctx context.Context) (string, error) {
	identity, ok := ctx.Value(callerIdentityContextKey).(string)
	if !ok || identity == "" {
		return "", fmt.Errorf("caller identity not found in context")
	}
	return identity, nil
}

// ContextWithCallerIdentity はコンテキストに呼び出し元identityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithCallerIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, callerIdentityContextKey, identity)
}
