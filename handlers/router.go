package handlers

import (
	"context"
	"time"

	"petitbacserver/broadcast"
	"petitbacserver/middlewares"
	"petitbacserver/models"
	"petitbacserver/repository"
	"petitbacserver/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// History は対戦履歴の参照先です。履歴 DB が無い構成では nil になります。
type History interface {
	PlayerHistory(ctx context.Context, playerName string, limit int) ([]models.PlayerResult, error)
}

// Server は HTTP ハンドラが共有する依存関係です。
type Server struct {
	repo    *repository.Repository
	issuer  *middlewares.TokenIssuer
	history History
	logger  *zap.Logger
}

func NewServer(repo *repository.Repository, issuer *middlewares.TokenIssuer, history History, logger *zap.Logger) *Server {
	return &Server{repo: repo, issuer: issuer, history: history, logger: logger}
}

// SetupRouter は全ルートを登録した gin.Engine を返します。ws が nil なら WebSocket は無効です。
func SetupRouter(s *Server, ws *broadcast.Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(s.logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	if len(allowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.POST("/rooms", s.CreateRoom)
	router.GET("/rooms/:code", s.GetRoom)
	router.POST("/rooms/:code/join", s.JoinRoom)

	player := router.Group("/rooms/:code", middlewares.AuthMiddleware(s.issuer, s.logger))
	player.POST("/leave", s.LeaveRoom)
	player.POST("/ready", s.SetReady)
	player.POST("/start", s.StartGame)
	player.POST("/answers", s.SubmitAnswers)
	player.POST("/validate", s.ValidateRound)
	player.POST("/advance", s.AdvanceRound)
	player.POST("/rematch", s.Rematch)
	player.POST("/kick", s.KickPlayer)
	player.POST("/ban", s.BanPlayer)
	player.POST("/transfer", s.TransferHost)

	if ws != nil {
		router.GET("/ws/:code", ws.HandleConnections)
	}
	router.GET("/history/:player", s.PlayerHistory)
	return router
}
