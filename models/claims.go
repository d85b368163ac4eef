package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// PlayerClaims はルーム参加時に発行するトークンの中身です。
type PlayerClaims struct {
	RoomCode   string `json:"roomCode"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	jwt.StandardClaims
}
