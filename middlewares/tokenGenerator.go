package middlewares

import (
	"errors"
	"fmt"
	"time"

	"petitbacserver/models"

	jwt "github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer はプレイヤートークンの発行と検証を行います。
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken は room に参加した player 用のトークンを返します。
func (t *TokenIssuer) GenerateToken(room *models.Room, player models.Player) (string, error) {
	now := t.now()
	claims := &models.PlayerClaims{
		RoomCode:   room.Code,
		PlayerID:   player.ID,
		PlayerName: player.Name,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(t.ttl).Unix(),
			Subject:   player.ID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// ParseToken はトークンを検証してクレームを返します。
func (t *TokenIssuer) ParseToken(tokenString string) (*models.PlayerClaims, error) {
	claims := &models.PlayerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.RoomCode == "" || claims.PlayerName == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
