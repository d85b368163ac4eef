package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"petitbacserver/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// LoadConfig は DefaultConfig を起点に config.json と環境変数の順で設定を上書きします。
// ファイルが無い場合はエラーにしません。
func LoadConfig(filename string) (models.Config, error) {
	config := models.DefaultConfig()
	configFile, err := os.Open(filename)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config, err
	default:
		defer configFile.Close()
		if err := json.NewDecoder(configFile).Decode(&config); err != nil {
			return config, fmt.Errorf("%s の読み込みに失敗しました: %w", filename, err)
		}
	}
	applyEnv(&config, os.LookupEnv)
	return config, nil
}

func applyEnv(config *models.Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("DB_HOST", &config.DBHost)
	str("DB_USER", &config.DBUser)
	str("DB_PASSWORD", &config.DBPassword)
	str("DB_NAME", &config.DBName)
	str("DB_SSLMODE", &config.DBSSLMode)
	str("REDIS_ADDR", &config.RedisAddr)
	str("REDIS_PASSWORD", &config.RedisPassword)
	num("REDIS_DB", &config.RedisDB)
	str("STORE_BACKEND", &config.StoreBackend)
	str("JWT_SECRET", &config.JWTSecret)
	str("LISTEN_ADDR", &config.ListenAddr)
	num("TX_MAX_ATTEMPTS", &config.TxMaxAttempts)
	num("ROOM_TTL_HOURS", &config.RoomTTLHours)
	str("CLEANUP_SCHEDULE", &config.CleanupSchedule)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		config.AllowedOrigins = strings.Split(v, ",")
	}
}

// ArchiveEnabled は PostgreSQL の接続先が設定されているかを返します。
func ArchiveEnabled(config models.Config) bool {
	return config.DBHost != "" && config.DBName != ""
}

func InitPostgreSQL(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		time.Sleep(retryInterval)
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

func InitRedis(config models.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	// Redisへの接続テスト
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.String("addr", config.RedisAddr), zap.Error(err))
		rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.RedisAddr))
	return rdb, nil
}
