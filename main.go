package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"petitbacserver/broadcast"   //WebSocketでのルーム状態の配信
	"petitbacserver/database"    //設定の読み込み、PostgreSQLとRedisの初期化
	"petitbacserver/handlers"    //HTTPリクエストの処理
	"petitbacserver/middlewares" //プレイヤートークン
	"petitbacserver/repository"  //ルーム操作とトランザクション
	"petitbacserver/store"       //ルームドキュメントのストア
	"petitbacserver/utils"       //ロガーの初期化とCronジョブ

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	logger, err := utils.InitLogger() // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}
	roomTTL := time.Duration(config.RoomTTLHours) * time.Hour

	// ルームの保存先
	var roomStore store.Store
	switch config.StoreBackend {
	case "memory":
		logger.Warn("Using in-memory room store; rooms are lost on restart")
		roomStore = store.NewMemoryStore()
	default:
		rdb, err := database.InitRedis(config, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		defer rdb.Close()
		roomStore = store.NewRedisStore(rdb, "petitbac:room", roomTTL, logger)
	}

	opts := []repository.Option{repository.WithMaxAttempts(config.TxMaxAttempts)}

	// 対戦履歴はPostgreSQLが設定されている場合のみ保存する
	var history handlers.History
	if database.ArchiveEnabled(config) {
		db, err := database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
		}
		if err := database.AutoMigrateDB(db, logger); err != nil {
			logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
		}
		archive := database.NewArchive(db, logger)
		opts = append(opts, repository.WithArchive(archive))
		history = archive
	}

	repo := repository.New(roomStore, logger, opts...)

	// クーロンスケジューラのセットアップと呼び出し
	cleaner, err := utils.CronCleaner(repo, config.CleanupSchedule, roomTTL, logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.String("schedule", config.CleanupSchedule), zap.Error(err))
	}
	defer cleaner.Stop()

	secret := config.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET is not set; generated a random secret, tokens will not survive a restart")
		secret = uuid.New().String()
	}
	issuer := middlewares.NewTokenIssuer(secret, roomTTL)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}
	ws := broadcast.NewHandler(repo, issuer, upgrader, logger)

	router := handlers.SetupRouter(handlers.NewServer(repo, issuer, history, logger), ws, config.AllowedOrigins)

	logger.Info("Starting server", zap.String("addr", config.ListenAddr), zap.String("store", config.StoreBackend))
	if err := router.Run(config.ListenAddr); err != nil {
		logger.Fatal("Failed to run HTTP server", zap.Error(err))
	}
}

// originChecker は CORS と同じオリジンだけ WebSocket 接続を許可します。
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
