package models

import (
	"regexp"
	"time"
)

// RoomStatus はルームのゲーム進行状態です。
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"  // ロビーで参加者を待っている
	StatusPlaying  RoomStatus = "playing"  // ラウンド進行中
	StatusFinished RoomStatus = "finished" // 全ラウンド終了、結果表示中
)

// CategoryID は回答欄を識別するキーです。自由な文字列ではなく検証済みの識別子のみを使います。
type CategoryID string

var categoryIDPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// Valid reports whether id is a well-formed category identifier.
func (id CategoryID) Valid() bool {
	return categoryIDPattern.MatchString(string(id))
}

type Category struct {
	ID    CategoryID `json:"name"`
	Label string     `json:"label"`
}

// Answers はカテゴリーごとの回答
type Answers map[CategoryID]string

// Settings はルーム作成後に変更されないゲーム設定です。
type Settings struct {
	TimeLimit  int        `json:"timeLimit"` // 1ラウンドの制限時間（秒）
	MaxPlayers int        `json:"maxPlayers"`
	Rounds     int        `json:"rounds"`
	Categories []Category `json:"categories"`
}

type Player struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	IsHost            bool   `json:"isHost"`
	IsReady           bool   `json:"isReady"`
	HasValidatedRound bool   `json:"hasValidatedRound"`
	Score             int    `json:"score"`
	ValidWords        int    `json:"validWords"`
}

// PlayerRoundAnswers は1ラウンド分のプレイヤーの結果
type PlayerRoundAnswers struct {
	Answers    Answers `json:"answers"`
	ValidWords int     `json:"validWords"`
	Score      int     `json:"score"`
}

// RoundHistory は完了したラウンドの記録です。追加後は変更しません。
type RoundHistory struct {
	Round         int                           `json:"round"`
	Letter        string                        `json:"letter"`
	PlayerAnswers map[string]PlayerRoundAnswers `json:"playerAnswers"`
}

// Room は複数のクライアントが共有するゲームセッションのドキュメントです。
type Room struct {
	ID             string             `json:"id"`
	Code           string             `json:"code"`
	Host           string             `json:"host"`
	Players        []Player           `json:"players"`
	Status         RoomStatus         `json:"status"`
	Settings       Settings           `json:"settings"`
	CurrentRound   int                `json:"currentRound"`
	CurrentLetter  string             `json:"currentLetter,omitempty"`
	RoundStartTime time.Time          `json:"roundStartTime"`
	RoundEndTime   time.Time          `json:"roundEndTime"`
	Answers        map[string]Answers `json:"answers"`
	RoundHistory   []RoundHistory     `json:"roundHistory"`
	Seed           string             `json:"seed,omitempty"`
	BannedPlayers  []string           `json:"bannedPlayers"`
	Revision       int64              `json:"revision"` // コミットごとに1ずつ増える
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// PlayerIndex returns the index of the player with the given name, or -1.
func (r *Room) PlayerIndex(name string) int {
	for i := range r.Players {
		if r.Players[i].Name == name {
			return i
		}
	}
	return -1
}

// FindPlayer returns a pointer into r.Players, or nil if absent.
func (r *Room) FindPlayer(name string) *Player {
	if i := r.PlayerIndex(name); i >= 0 {
		return &r.Players[i]
	}
	return nil
}

// IsBanned reports whether name is barred from rejoining.
func (r *Room) IsBanned(name string) bool {
	for _, banned := range r.BannedPlayers {
		if banned == name {
			return true
		}
	}
	return false
}

// HasCategory reports whether id is one of the room's categories.
func (r *Room) HasCategory(id CategoryID) bool {
	for _, c := range r.Settings.Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Clone はスナップショットの深いコピーを返します。
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = cloneSlice(r.Players)
	c.Settings.Categories = cloneSlice(r.Settings.Categories)
	c.BannedPlayers = cloneSlice(r.BannedPlayers)
	if r.Answers != nil {
		c.Answers = make(map[string]Answers, len(r.Answers))
		for name, answers := range r.Answers {
			c.Answers[name] = answers.Clone()
		}
	}
	if r.RoundHistory != nil {
		c.RoundHistory = make([]RoundHistory, len(r.RoundHistory))
		for i, h := range r.RoundHistory {
			c.RoundHistory[i] = h.Clone()
		}
	}
	return &c
}

func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	c := make(Answers, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

func (h RoundHistory) Clone() RoundHistory {
	c := h
	if h.PlayerAnswers == nil {
		return c
	}
	c.PlayerAnswers = make(map[string]PlayerRoundAnswers, len(h.PlayerAnswers))
	for name, pa := range h.PlayerAnswers {
		pa.Answers = pa.Answers.Clone()
		c.PlayerAnswers[name] = pa
	}
	return c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	c := make([]T, len(s))
	copy(c, s)
	return c
}
