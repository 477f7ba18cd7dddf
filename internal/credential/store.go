// Package credential はサービスレベルのOAuthトークンレコードの
// 保存・鮮度判定・リフレッシュを提供する。
package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hitoshi/chatkeep/internal/model"
)

// Store はトークンレコードの保存先ストラテジのインターフェース。
// 実行環境に応じた実装を起動時に1回選択し、以降は差し替えない。
type Store interface {
	// Load はトークンレコードを読み込む。
	Load() (*model.Credential, error)
	// Save はトークンレコードを書き込む。次回のLoadは更新後のレコードを観測する。
	Save(cred *model.Credential) error
}

// FileStore はローカル環境用の永続ファイルストア。
// 固定パスのJSONファイルを直接読み書きする。
type FileStore struct {
	path string
}

// NewFileStore はFileStoreを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load はファイルからトークンレコードを読み込む。
func (s *FileStore) Load() (*model.Credential, error) {
	return readCredentialFile(s.path)
}

// Save はトークンレコードをファイルに書き込む。
func (s *FileStore) Save(cred *model.Credential) error {
	return writeCredentialFile(s.path, cred)
}

// EnvSeededStore はマネージド環境用のストア。
// ファイルシステムが再起動をまたいで保持されないため、初期レコードは
// 環境変数に埋め込まれたJSONから読み込み、更新後のレコードは
// 実行スコープの一時パスへ書き込む。プロセス生存中のLoadは
// 一時パスに書き込み済みのレコードを優先する。
type EnvSeededStore struct {
	seedJSON string
	path     string
}

// NewEnvSeededStore はEnvSeededStoreを生成する。
func NewEnvSeededStore(seedJSON, ephemeralPath string) *EnvSeededStore {
	return &EnvSeededStore{seedJSON: seedJSON, path: ephemeralPath}
}

// Load は一時パスのレコードがあればそれを、なければ環境変数由来のシードを読み込む。
func (s *EnvSeededStore) Load() (*model.Credential, error) {
	if _, err := os.Stat(s.path); err == nil {
		return readCredentialFile(s.path)
	}

	cred := &model.Credential{}
	if err := json.Unmarshal([]byte(s.seedJSON), cred); err != nil {
		return nil, fmt.Errorf("環境変数のトークンレコードの解析に失敗しました: %w", err)
	}
	return cred, nil
}

// Save はトークンレコードを一時パスに書き込む。
func (s *EnvSeededStore) Save(cred *model.Credential) error {
	return writeCredentialFile(s.path, cred)
}

// readCredentialFile はJSONファイルからトークンレコードを読み込む。
func readCredentialFile(path string) (*model.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("トークンファイルの読み込みに失敗しました: %w", err)
	}

	cred := &model.Credential{}
	if err := json.Unmarshal(data, cred); err != nil {
		return nil, fmt.Errorf("トークンファイルの解析に失敗しました: %w", err)
	}
	return cred, nil
}

// writeCredentialFile はトークンレコードをJSONファイルへアトミックに書き込む。
// 一時ファイルへ書いてからrenameすることで、途中失敗時に既存レコードを壊さない。
func writeCredentialFile(path string, cred *model.Credential) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("トークン保存ディレクトリの作成に失敗しました: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("トークンレコードのシリアライズに失敗しました: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("トークンファイルの書き込みに失敗しました: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("トークンファイルの置き換えに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface checks
var _ Store = (*FileStore)(nil)
var _ Store = (*EnvSeededStore)(nil)
