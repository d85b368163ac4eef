package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"petitbacserver/middlewares"
	"petitbacserver/models"

	"github.com/gin-gonic/gin"
)

func (s *Server) StartGame(c *gin.Context) {
	claims, _ := middlewares.ClaimsFromContext(c)
	s.respondRoom(c)(s.repo.StartGame(c.Request.Context(), claims.RoomCode, claims.PlayerName))
}

func (s *Server) SubmitAnswers(c *gin.Context) {
	var req models.AnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.logger, err)
		return
	}
	claims, _ := middlewares.ClaimsFromContext(c)
	s.respondRoom(c)(s.repo.SubmitAnswers(c.Request.Context(), claims.RoomCode, claims.PlayerName, req.Answers))
}

// ValidateRound はボディが空でも受け付けます。その場合は保存済みの回答で確定します。
func (s *Server) ValidateRound(c *gin.Context) {
	var req models.AnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, s.logger, err)
		return
	}
	claims, _ := middlewares.ClaimsFromContext(c)
	s.respondRoom(c)(s.repo.ValidateRound(c.Request.Context(), claims.RoomCode, claims.PlayerName, req.Answers))
}

// AdvanceRound は指定ラウンドの締め切りを要求します。force はホストのみ、期限後のみ有効です。
func (s *Server) AdvanceRound(c *gin.Context) {
	var req models.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.logger, err)
		return
	}
	claims, _ := middlewares.ClaimsFromContext(c)
	if req.Force {
		s.respondRoom(c)(s.repo.ForceAdvance(c.Request.Context(), claims.RoomCode, claims.PlayerName))
		return
	}
	s.respondRoom(c)(s.repo.AdvanceRound(c.Request.Context(), claims.RoomCode, req.Round))
}

func (s *Server) Rematch(c *gin.Context) {
	claims, _ := middlewares.ClaimsFromContext(c)
	s.respondRoom(c)(s.repo.Rematch(c.Request.Context(), claims.RoomCode, claims.PlayerName))
}

// PlayerHistory は GET /history/:player?limit=N を処理します。
func (s *Server) PlayerHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not configured", "code": "unavailable"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	results, err := s.history.PlayerHistory(c.Request.Context(), c.Param("player"), limit)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": c.Param("player"), "results": results})
}
