package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RoomCleaner は放置されたルームを削除する処理です。
type RoomCleaner interface {
	CleanupRooms(ctx context.Context, idleFor time.Duration) (int, error)
}

// CronCleaner は schedule（cron形式）ごとに idleFor 以上更新のないルームを削除します。
// 返した *cron.Cron を Stop するとジョブは止まります。
func CronCleaner(cleaner RoomCleaner, schedule string, idleFor time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		logger.Info("放置されたルームを削除する処理を開始")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		deleted, err := cleaner.CleanupRooms(ctx, idleFor)
		if err != nil {
			logger.Error("ルームの削除に失敗しました", zap.Error(err))
			return
		}
		logger.Info("放置されたルームの削除完了", zap.Int("rooms_deleted", deleted))
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
