package broadcast

import (
	"encoding/json"

	"petitbacserver/models"
)

// サーバーからクライアントへのメッセージ種別
const (
	TypeRoomState   = "roomState"
	TypeRoomDeleted = "roomDeleted"
	TypeRemoved     = "removed" // キックまたはBANされた
	TypeError       = "error"
)

// クライアントからサーバーへのメッセージ種別
const (
	TypeAnswers  = "answers"
	TypeValidate = "validate"
	TypeReady    = "ready"
	TypeAdvance  = "advance"
	TypeLeave    = "leave"
)

// ServerMessage は WebSocket で送るメッセージです。
type ServerMessage struct {
	Type  string       `json:"type"`
	Room  *models.Room `json:"room,omitempty"`
	Error string       `json:"error,omitempty"`
	Code  string       `json:"code,omitempty"`
}

// ClientMessage は WebSocket で受け取るメッセージです。
type ClientMessage struct {
	Type    string         `json:"type"`
	Answers models.Answers `json:"answers,omitempty"`
	Ready   bool           `json:"ready,omitempty"`
	Round   int            `json:"round,omitempty"`
}

func encode(msg ServerMessage) []byte {
	b, _ := json.Marshal(msg)
	return b
}
