// Package auth はセッショントークンの発行と検証を提供する。
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

// ErrUnauthenticated はセッション検証失敗を表す。
// Cookie欠落・署名不正・期限切れ・ペイロード不正のすべてがこの1つに集約される。
// 失敗理由を区別して返すと検証内部の情報が漏れるため。
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier は署名付きセッショントークンを検証し、呼び出し元のidentityを導出する。
// 共有シークレットと現在時刻のみに依存する純粋な検証器で、I/Oは行わない。
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier はVerifierを生成する。
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// NewVerifierWithClock は時刻関数を差し替えたVerifierを生成する。テスト用。
func NewVerifierWithClock(secret string, now func() time.Time) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		now:    now,
	}
}

// VerifyRequest はリクエストのセッションCookieからトークンを取り出して検証し、
// トークンに埋め込まれたidentity（subject）を返す。
// Cookieが存在しない場合を含め、あらゆる失敗でErrUnauthenticatedを返す。
func (v *Verifier) VerifyRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrUnauthenticated
	}
	return v.VerifyToken(cookie.Value)
}

// VerifyToken は署名付きトークン文字列を検証し、subjectを返す。
func (v *Verifier) VerifyToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !token.Valid {
		return "", ErrUnauthenticated
	}
	if claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}

// IssueSessionToken は指定subjectの署名付きセッショントークンを発行する。
// 通常のトークン発行は外側のログインフローが担うため、
// ここでの用途はテストと運用ツールに限られる。
func IssueSessionToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
