package handlers

import (
	"net/http"
	"strings"

	"petitbacserver/middlewares"
	"petitbacserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateRoom はルームを作成し、ホスト用のトークンを発行します。
func (s *Server) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.logger, err)
		return
	}
	room, err := s.repo.CreateRoom(c.Request.Context(), req.HostName, req.Settings)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	s.respondWithToken(c, http.StatusCreated, room, room.Host)
}

// GetRoom は現在のスナップショットを返します。
func (s *Server) GetRoom(c *gin.Context) {
	room, err := s.repo.FindRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.RoomResponse{Code: room.Code, Room: room})
}

// JoinRoom は名前を指定してルームに参加します。
func (s *Server) JoinRoom(c *gin.Context) {
	var req models.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.logger, err)
		return
	}
	room, err := s.repo.JoinRoom(c.Request.Context(), c.Param("code"), req.PlayerName)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	s.respondWithToken(c, http.StatusOK, room, strings.TrimSpace(req.PlayerName))
}

func (s *Server) respondWithToken(c *gin.Context, status int, room *models.Room, name string) {
	p := room.FindPlayer(name)
	if p == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "player missing after commit", "code": "internal"})
		return
	}
	token, err := s.issuer.GenerateToken(room, *p)
	if err != nil {
		s.logger.Error("Token generation error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました", "code": "internal"})
		return
	}
	c.JSON(status, models.RoomResponse{Code: room.Code, Room: room, Player: p, Token: token})
}

// LeaveRoom は呼び出したプレイヤーを退出させます。最後の1人ならルームは削除されます。
func (s *Server) LeaveRoom(c *gin.Context) {
	claims, _ := middlewares.ClaimsFromContext(c)
	room, err := s.repo.LeaveRoom(c.Request.Context(), claims.RoomCode, claims.PlayerName)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	if room == nil {
		c.JSON(http.StatusOK, gin.H{"deleted": true})
		return
	}
	c.JSON(http.StatusOK, models.RoomResponse{Code: room.Code, Room: room})
}

func (s *Server) SetReady(c *gin.Context) {
	var req models.ReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.logger, err)
		return
	}
	claims, _ := middlewares.ClaimsFromContext(c)
	s.respondRoom(c)(s.repo.SetPlayerReady(c.Request.Context(), claims.RoomCode, claims.PlayerName, req.Ready))
}

func (s *Server) KickPlayer(c *gin.Context) {
	var req models.TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.logger, err)
		return
	}
	claims, _ := middlewares.ClaimsFromContext(c)
	s.respondRoom(c)(s.repo.KickPlayer(c.Request.Context(), claims.RoomCode, claims.PlayerName, req.Player))
}

func (s *Server) BanPlayer(c *gin.Context) {
	var req models.TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.logger, err)
		return
	}
	claims, _ := middlewares.ClaimsFromContext(c)
	s.respondRoom(c)(s.repo.BanPlayer(c.Request.Context(), claims.RoomCode, claims.PlayerName, req.Player))
}

func (s *Server) TransferHost(c *gin.Context) {
	var req models.TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.logger, err)
		return
	}
	claims, _ := middlewares.ClaimsFromContext(c)
	s.respondRoom(c)(s.repo.TransferHost(c.Request.Context(), claims.RoomCode, claims.PlayerName, req.Player))
}

// respondRoom は (room, err) を受け取る応答関数を返します。
func (s *Server) respondRoom(c *gin.Context) func(*models.Room, error) {
	return func(room *models.Room, err error) {
		if err != nil {
			respondError(c, s.logger, err)
			return
		}
		c.JSON(http.StatusOK, models.RoomResponse{Code: room.Code, Room: room})
	}
}
