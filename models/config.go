package models

// Config 構造体はサーバーの設定情報を保持します。
// config.json から読み込まれ、環境変数で上書きされます。
type Config struct {
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	StoreBackend   string   `json:"store_backend"` // "redis" または "memory"
	JWTSecret      string   `json:"jwt_secret"`
	ListenAddr     string   `json:"listen_addr"`
	AllowedOrigins []string `json:"allowed_origins"`

	TxMaxAttempts   int    `json:"tx_max_attempts"`  // トランザクションの最大試行回数
	RoomTTLHours    int    `json:"room_ttl_hours"`   // 更新のないルームを削除するまでの時間
	CleanupSchedule string `json:"cleanup_schedule"` // cron形式
}

// DefaultConfig は設定ファイルが無い場合にも動作する初期値を返します。
func DefaultConfig() Config {
	return Config{
		DBSSLMode:       "disable",
		RedisAddr:       "localhost:6379",
		StoreBackend:    "redis",
		ListenAddr:      ":8080",
		AllowedOrigins:  []string{"http://localhost:5173"},
		TxMaxAttempts:   5,
		RoomTTLHours:    24,
		CleanupSchedule: "@every 10m",
	}
}
