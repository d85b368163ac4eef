package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"petitbacserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Archive は終了したゲームを PostgreSQL に保存します。
type Archive struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewArchive(db *gorm.DB, logger *zap.Logger) *Archive {
	return &Archive{db: db, logger: logger}
}

// ArchiveGame saves a finished room. Saving the same game twice is a no-op.
func (a *Archive) ArchiveGame(ctx context.Context, room *models.Room) error {
	if room.Status != models.StatusFinished {
		return fmt.Errorf("room %s is not finished", room.Code)
	}
	record := NewGameRecord(room)
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "seed"}}, DoNothing: true}).
			Omit("PlayerResults").Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		for i := range record.PlayerResults {
			record.PlayerResults[i].GameRecordID = record.ID
		}
		if len(record.PlayerResults) == 0 {
			return nil
		}
		return tx.Create(&record.PlayerResults).Error
	})
	if err != nil {
		return err
	}
	a.logger.Info("Game archived", zap.String("roomCode", room.Code), zap.String("winner", record.Winner))
	return nil
}

// PlayerHistory returns the most recent results of a player, newest first.
func (a *Archive) PlayerHistory(ctx context.Context, playerName string, limit int) ([]models.PlayerResult, error) {
	if limit <= 0 {
		limit = 20
	}
	var results []models.PlayerResult
	err := a.db.WithContext(ctx).
		Where("player_name = ?", playerName).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error
	return results, err
}

// NewGameRecord converts a finished room into its archive rows. Players are
// ranked by score; ties share a rank.
func NewGameRecord(room *models.Room) models.GameRecord {
	letters := make([]string, 0, len(room.RoundHistory))
	for _, h := range room.RoundHistory {
		letters = append(letters, h.Letter)
	}

	players := append([]models.Player(nil), room.Players...)
	sort.SliceStable(players, func(i, j int) bool { return players[i].Score > players[j].Score })

	record := models.GameRecord{
		RoomCode:      room.Code,
		Seed:          room.Seed,
		Rounds:        len(room.RoundHistory),
		Letters:       strings.Join(letters, ""),
		FinishedAt:    room.RoundEndTime,
		PlayerResults: make([]models.PlayerResult, 0, len(players)),
	}
	rank := 0
	for i, p := range players {
		if i == 0 || p.Score != players[i-1].Score {
			rank = i + 1
		}
		record.PlayerResults = append(record.PlayerResults, models.PlayerResult{
			PlayerName: p.Name,
			Score:      p.Score,
			ValidWords: p.ValidWords,
			Rank:       rank,
		})
	}
	if len(players) > 0 && (len(players) == 1 || players[0].Score != players[1].Score) {
		record.Winner = players[0].Name
	}
	return record
}
