package credential

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/chatkeep/internal/model"
	"golang.org/x/sync/singleflight"
)

// State はトークンレコードの状態を表す。
type State string

const (
	// StateFresh は期限内のトークンを保持している状態。
	StateFresh State = "fresh"
	// StateStale は期限切れ（または期限不明）のトークンを保持している状態。
	StateStale State = "stale"
	// StateRefreshing はリフレッシュハンドシェイクの実行中。
	StateRefreshing State = "refreshing"
	// StateRefreshFailed は直近のリフレッシュが失敗した状態。
	// 保存済みレコードは失敗前のまま保持される。
	StateRefreshFailed State = "refresh_failed"
)

// RefreshMetrics はリフレッシュ結果のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type RefreshMetrics interface {
	RecordRefreshSuccess()
	RecordRefreshFailure()
}

// Manager は単一のトークンレコードの鮮度を管理する。
// 期限切れを観測したら1回だけリフレッシュハンドシェイクを実行し、
// 成功したレコードを保存先に書き戻す。
// 複数の呼び出し元が同時に期限切れを観測しても、実行されるハンドシェイクは
// 高々1回で、全員が同じ結果を観測する（singleflightによる合流）。
type Manager struct {
	store     Store
	refresher Refresher
	margin    time.Duration
	metrics   RefreshMetrics
	now       func() time.Time

	group singleflight.Group

	mu    sync.Mutex
	cred  *model.Credential
	state State
}

// NewManager はManagerを生成し、保存先から初期レコードを読み込む。
// marginは安全マージンで、期限がnow+margin以前のレコードを期限切れとみなす。
// metricsはnil可（記録をスキップする）。
func NewManager(store Store, refresher Refresher, margin time.Duration, metrics RefreshMetrics) (*Manager, error) {
	cred, err := store.Load()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:     store,
		refresher: refresher,
		margin:    margin,
		metrics:   metrics,
		now:       time.Now,
		cred:      cred,
	}
	m.state = m.computeState()
	return m, nil
}

// computeState は現在のレコードからFresh/Staleを判定する。muを保持して呼ぶこと。
func (m *Manager) computeState() State {
	if m.cred.IsStale(m.now(), m.margin) {
		return StateStale
	}
	return StateFresh
}

// State は現在の状態を返す。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureValid は少なくとも安全マージンの間有効なトークンレコードを返す。
// レコードが期限内ならネットワーク呼び出しなしでそのまま返す。
// 期限切れならリフレッシュハンドシェイクを1回実行し、成功時は更新後の
// レコードを保存して返す。失敗時は保存済みレコードを変更せず
// RefreshFailedエラーを返す。呼び出し元は失敗を致命的と扱うか、
// 期限切れトークンのまま続行するかを選択できる。
func (m *Manager) EnsureValid(ctx context.Context) (*model.Credential, error) {
	m.mu.Lock()
	if !m.cred.IsStale(m.now(), m.margin) {
		m.state = StateFresh
		cred := m.cred.Clone()
		m.mu.Unlock()
		return cred, nil
	}
	m.state = StateStale
	m.mu.Unlock()

	// 同時に期限切れを観測した呼び出し元をsingleflightで合流させる。
	// ハンドシェイクは高々1回実行され、全員が同じ結果を受け取る。
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Credential).Clone(), nil
}

// refresh はリフレッシュハンドシェイクを実行し、結果をレコードに反映する。
func (m *Manager) refresh(ctx context.Context) (*model.Credential, error) {
	m.mu.Lock()
	// 直前のflightが完了済みの場合は再度ハンドシェイクしない
	if !m.cred.IsStale(m.now(), m.margin) {
		m.state = StateFresh
		cred := m.cred.Clone()
		m.mu.Unlock()
		return cred, nil
	}
	m.state = StateRefreshing
	attempt := m.cred.Clone()
	m.mu.Unlock()

	result, err := m.refresher.Refresh(ctx, attempt)
	if err != nil {
		m.mu.Lock()
		m.state = StateRefreshFailed
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.RecordRefreshFailure()
		}
		slog.Error("token refresh failed", slog.String("error", err.Error()))

		// 失敗した試行で保存済みの正常データを上書きしない
		return nil, model.NewRefreshFailedError(err.Error())
	}

	m.mu.Lock()
	m.cred.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		// プロバイダーがリフレッシュトークンをローテーションした
		m.cred.RefreshToken = result.RefreshToken
	}
	if result.ExpiresIn > 0 {
		m.cred.Expiry = m.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	} else {
		// 期限が応答に含まれない場合はゼロ値のまま保存し、
		// 次回チェックで保守的に期限切れとして扱う
		m.cred.Expiry = time.Time{}
	}
	updated := m.cred.Clone()
	m.state = StateFresh
	m.mu.Unlock()

	if err := m.store.Save(updated); err != nil {
		// 保存失敗でもメモリ上のレコードは有効なので呼び出し元には返す
		slog.Error("failed to persist refreshed token", slog.String("error", err.Error()))
	}

	if m.metrics != nil {
		m.metrics.RecordRefreshSuccess()
	}
	slog.Info("token refreshed",
		slog.Time("expiry", updated.Expiry),
		slog.Bool("refresh_token_rotated", result.RefreshToken != ""),
	)

	return updated, nil
}
