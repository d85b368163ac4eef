package models

import (
	"time"

	"gorm.io/gorm"
)

// GameRecord は終了したゲーム1件の記録です。
type GameRecord struct {
	gorm.Model
	RoomCode      string    `gorm:"index;not null"`
	Seed          string    `gorm:"uniqueIndex;not null"` // 同じゲームを二重に保存しない
	Rounds        int       `gorm:"not null"`
	Letters       string    `gorm:"not null"` // 出題された文字を順に連結したもの
	Winner        string
	FinishedAt    time.Time `gorm:"not null"`
	PlayerResults []PlayerResult
}

// PlayerResult はゲーム内の1プレイヤー分の最終成績です。
type PlayerResult struct {
	gorm.Model
	GameRecordID uint   `gorm:"index;not null"`
	PlayerName   string `gorm:"index;not null"`
	Score        int    `gorm:"not null"`
	ValidWords   int    `gorm:"not null"`
	Rank         int    `gorm:"not null"`
}
