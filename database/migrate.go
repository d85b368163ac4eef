package database

import (
	"petitbacserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrateDB は対戦履歴のテーブルを作成・更新します。
func AutoMigrateDB(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&models.GameRecord{}, &models.PlayerResult{}); err != nil {
		logger.Error("Error migrating tables", zap.Error(err))
		return err
	}
	logger.Info("GameRecord and PlayerResult tables are up to date")
	return nil
}
