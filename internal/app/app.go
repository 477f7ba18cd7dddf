// Package app はアプリケーションの起動・依存関係のワイヤリング・シャットダウンを担う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/chatkeep/internal/auth"
	"github.com/hitoshi/chatkeep/internal/chat"
	"github.com/hitoshi/chatkeep/internal/config"
	"github.com/hitoshi/chatkeep/internal/credential"
	"github.com/hitoshi/chatkeep/internal/database"
	"github.com/hitoshi/chatkeep/internal/handler"
	"github.com/hitoshi/chatkeep/internal/logger"
	"github.com/hitoshi/chatkeep/internal/metrics"
	"github.com/hitoshi/chatkeep/internal/middleware"
	"github.com/hitoshi/chatkeep/internal/repository"
	"github.com/hitoshi/chatkeep/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	convRepo := repository.NewPostgresConversationRepo(db)
	msgRepo := repository.NewPostgresMessageRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	sanitizer := security.NewContentSanitizer()
	chatService := chat.NewService(convRepo, msgRepo, sanitizer, collector)

	// 5. リクエスト検証器の初期化
	verifier := auth.NewVerifier(cfg.SessionSecret)

	// 6. レート制限の初期化（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		AppendRate:      rate.Limit(float64(cfg.RateLimitAppend) / 60.0),
		AppendBurst:     cfg.RateLimitAppend,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		Verifier:          verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		HealthChecker: db,

		ChatService: chatService,

		Logger:          slog.Default(),
		StatusCollector: collector,
		MetricsGatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はクレデンシャルキーパーモードで起動する。
// 保存済みのOAuthトークンレコードを定期的に検査し、失効が近い場合は
// リフレッシュハンドシェイクを実行して新しいレコードを永続化する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. クレデンシャルストアの初期化
	store := newCredentialStore(cfg)

	// 2. リフレッシュクライアントとマネージャの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	oauthClient := credential.NewOAuthClient(credential.OAuthClientConfig{})
	manager, err := credential.NewManager(store, oauthClient, cfg.RefreshMargin, collector)
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down credential keeper...")
		cancel()
	}()

	slog.Info("credential keeper starting",
		slog.Duration("interval", cfg.KeeperInterval),
		slog.Duration("refresh_margin", cfg.RefreshMargin),
	)

	// 起動直後に1回検査し、以後は定期実行する。
	// 失敗しても即時リトライはしない（次の周期まで待つ）。
	keeperTick := func() {
		tickCtx, tickCancel := context.WithTimeout(ctx, 30*time.Second)
		defer tickCancel()

		if _, err := manager.EnsureValid(tickCtx); err != nil {
			slog.Error("credential keeper tick failed", slog.String("error", err.Error()))
		}
	}

	keeperTick()

	ticker := time.NewTicker(cfg.KeeperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("credential keeper stopped gracefully")
			return nil
		case <-ticker.C:
			keeperTick()
		}
	}
}

// newCredentialStore は実行環境に応じたクレデンシャルストアを生成する。
// マネージド環境（APP_ENV=production）では環境変数のシードレコードから始め、
// リフレッシュ結果は実行スコープの一時パスに保存する。
// ローカル環境では設定されたトークンファイルを直接読み書きする。
func newCredentialStore(cfg *config.Config) credential.Store {
	if cfg.IsManagedEnv() {
		ephemeralPath := filepath.Join(os.TempDir(), "chatkeep", "token.json")
		return credential.NewEnvSeededStore(cfg.GoogleTokenJSON, ephemeralPath)
	}
	return credential.NewFileStore(cfg.TokenFile)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
