package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/chatkeep/internal/model"
)

const defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"

// RefreshResult はリフレッシュハンドシェイクの応答を表す。
// RefreshTokenはプロバイダーがローテーションした場合のみ非空になる。
type RefreshResult struct {
	AccessToken  string
	ExpiresIn    int
	RefreshToken string
}

// Refresher はOAuth2リフレッシュトークングラントの実行インターフェース。
type Refresher interface {
	// Refresh は保存済みのリフレッシュトークンとクライアント資格情報で
	// 新しいアクセストークンを取得する。
	Refresh(ctx context.Context, cred *model.Credential) (*RefreshResult, error)
}

// OAuthClientConfig はOAuthクライアントの設定。
type OAuthClientConfig struct {
	// テスト用にオーバーライド可能なURL
	TokenURL string
}

// OAuthClient はサードパーティ認可サーバーとのリフレッシュハンドシェイクを実行する。
type OAuthClient struct {
	config OAuthClientConfig
}

// NewOAuthClient はOAuthClientを生成する。
func NewOAuthClient(config OAuthClientConfig) *OAuthClient {
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	return &OAuthClient{config: config}
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh はリフレッシュトークングラントを実行する。
// ネットワークエラー・非200応答・アクセストークン欠落はすべてエラーを返す。
func (c *OAuthClient) Refresh(ctx context.Context, cred *model.Credential) (*RefreshResult, error) {
	data := url.Values{
		"client_id":     {cred.ClientID},
		"client_secret": {cred.ClientSecret},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &RefreshResult{
		AccessToken:  tokenResp.AccessToken,
		ExpiresIn:    tokenResp.ExpiresIn,
		RefreshToken: tokenResp.RefreshToken,
	}, nil
}

// compile-time interface check
var _ Refresher = (*OAuthClient)(nil)
