package models

// CreateRoomRequest は POST /rooms のボディです。
type CreateRoomRequest struct {
	HostName string   `json:"hostName" binding:"required"`
	Settings Settings `json:"settings"`
}

// JoinRoomRequest は POST /rooms/:code/join のボディです。
type JoinRoomRequest struct {
	PlayerName string `json:"playerName" binding:"required"`
}

type ReadyRequest struct {
	Ready bool `json:"ready"`
}

type AnswersRequest struct {
	Answers Answers `json:"answers"`
}

// AdvanceRequest の Round は進めたいラウンド番号です。
type AdvanceRequest struct {
	Round int  `json:"round"`
	Force bool `json:"force"` // 期限切れのラウンドをホストが締め切る
}

type TargetRequest struct {
	Player string `json:"player" binding:"required"`
}

// RoomResponse は参加系APIの応答です。
type RoomResponse struct {
	Code   string  `json:"code"`
	Room   *Room   `json:"room"`
	Player *Player `json:"player,omitempty"`
	Token  string  `json:"token,omitempty"`
}
