package model

import "time"

// Credential はサードパーティAPIアクセス用のOAuthトークンレコードを表す。
// ユーザーごとではなくサービスごとに1レコードのみ存在する。
// リフレッシュ成功時にその場で更新され、同じ保存先に書き戻される。
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry_instant"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	RedirectURI  string    `json:"redirect_uri"`
}

// IsStale はトークンが期限切れ（または期限不明）かどうかを判定する。
// marginは安全マージンで、期限がnow+margin以前なら期限切れとみなす。
// Expiryがゼロ値の場合は保守的に期限切れとして扱う。
func (c *Credential) IsStale(now time.Time, margin time.Duration) bool {
	if c.Expiry.IsZero() {
		return true
	}
	return !c.Expiry.After(now.Add(margin))
}

// Clone はCredentialのコピーを返す。
// リフレッシュ失敗時に保存済みレコードを変更しないために使用する。
func (c *Credential) Clone() *Credential {
	clone := *c
	return &clone
}
