// Package broadcast pushes room snapshots to players over WebSocket and
// accepts their in-game intents on the same connection.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"petitbacserver/game"
	"petitbacserver/middlewares"
	"petitbacserver/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod   = 10 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 8
)

// Rooms is the subset of the repository a connection uses.
type Rooms interface {
	FindRoomByCode(ctx context.Context, code string) (*models.Room, error)
	Subscribe(ctx context.Context, code string, onChange func(room *models.Room)) (func(), error)
	SubmitAnswers(ctx context.Context, code, playerName string, answers models.Answers) (*models.Room, error)
	ValidateRound(ctx context.Context, code, playerName string, answers models.Answers) (*models.Room, error)
	SetPlayerReady(ctx context.Context, code, playerName string, ready bool) (*models.Room, error)
	AdvanceRound(ctx context.Context, code string, expectedRound int) (*models.Room, error)
	LeaveRoom(ctx context.Context, code, playerName string) (*models.Room, error)
}

type Handler struct {
	rooms    Rooms
	issuer   *middlewares.TokenIssuer
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(rooms Rooms, issuer *middlewares.TokenIssuer, upgrader websocket.Upgrader, logger *zap.Logger) *Handler {
	return &Handler{rooms: rooms, issuer: issuer, upgrader: upgrader, logger: logger}
}

// client は1つの WebSocket 接続です。書き込みは writeLoop だけが行います。
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	code   string
	player string
}

// HandleConnections は GET /ws/:code?token=... を WebSocket にアップグレードします。
func (h *Handler) HandleConnections(c *gin.Context) {
	code := game.NormalizeCode(c.Param("code"))
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required", "code": "unauthorized"})
		return
	}
	claims, err := h.issuer.ParseToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "unauthorized"})
		return
	}
	if claims.RoomCode != code {
		c.JSON(http.StatusForbidden, gin.H{"error": "token is not valid for this room", "code": "forbidden"})
		return
	}
	room, err := h.rooms.FindRoomByCode(c.Request.Context(), code)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, game.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": game.Kind(err)})
		return
	}
	if room.FindPlayer(claims.PlayerName) == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "player is not in this room", "code": "forbidden"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer), code: code, player: claims.PlayerName}
	h.logger.Info("New client connected", zap.String("roomCode", code), zap.String("player", cl.player))

	// 接続が閉じるまでブロックする
	h.serve(cl)
}

func (h *Handler) serve(cl *client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, cl)
	}()

	unsubscribe, err := h.rooms.Subscribe(ctx, cl.code, func(room *models.Room) {
		h.deliver(ctx, cancel, cl, room)
	})
	if err != nil {
		h.logger.Error("Failed to subscribe to room", zap.String("roomCode", cl.code), zap.Error(err))
		cancel()
		<-writerDone
		cl.conn.Close()
		return
	}

	h.readLoop(ctx, cl)
	unsubscribe()
	cancel()
	<-writerDone
	cl.conn.Close()
	h.logger.Info("Client removed", zap.String("roomCode", cl.code), zap.String("player", cl.player))
}

// deliver はスナップショットを送信キューに入れます。キューが詰まっている間は
// ストア側で最新版だけにまとめられます。
func (h *Handler) deliver(ctx context.Context, cancel context.CancelFunc, cl *client, room *models.Room) {
	switch {
	case room == nil:
		h.push(ctx, cl, ServerMessage{Type: TypeRoomDeleted})
		cancel()
	case room.FindPlayer(cl.player) == nil:
		h.push(ctx, cl, ServerMessage{Type: TypeRemoved, Room: room})
		cancel()
	default:
		h.push(ctx, cl, ServerMessage{Type: TypeRoomState, Room: room})
	}
}

func (h *Handler) push(ctx context.Context, cl *client, msg ServerMessage) {
	select {
	case cl.send <- encode(msg):
	case <-ctx.Done():
	}
}

func (h *Handler) writeLoop(ctx context.Context, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Error("Failed to send room state", zap.String("player", cl.player), zap.Error(err))
				cl.conn.Close()
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Error("Error sending ping or connection is closed", zap.Error(err))
				cl.conn.Close()
				return
			}
		case <-ctx.Done():
			// 送信待ちのメッセージを流してから閉じる
			for {
				select {
				case msg := <-cl.send:
					cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if cl.conn.WriteMessage(websocket.TextMessage, msg) != nil {
						return
					}
				default:
					cl.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
					cl.conn.Close()
					return
				}
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, cl *client) {
	cl.conn.SetReadDeadline(time.Now().Add(readTimeout))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", zap.String("player", cl.player), zap.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.push(ctx, cl, ServerMessage{Type: TypeError, Error: "invalid message", Code: "validation"})
			continue
		}
		if err := h.dispatch(ctx, cl, msg); err != nil {
			h.logger.Info("Intent rejected", zap.String("roomCode", cl.code), zap.String("player", cl.player),
				zap.String("type", msg.Type), zap.Error(err))
			h.push(ctx, cl, ServerMessage{Type: TypeError, Error: err.Error(), Code: game.Kind(err)})
		}
		// 退出後は removed / roomDeleted の通知で ctx が閉じられる
		if ctx.Err() != nil {
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, cl *client, msg ClientMessage) error {
	var err error
	switch msg.Type {
	case TypeAnswers:
		_, err = h.rooms.SubmitAnswers(ctx, cl.code, cl.player, msg.Answers)
	case TypeValidate:
		_, err = h.rooms.ValidateRound(ctx, cl.code, cl.player, msg.Answers)
	case TypeReady:
		_, err = h.rooms.SetPlayerReady(ctx, cl.code, cl.player, msg.Ready)
	case TypeAdvance:
		_, err = h.rooms.AdvanceRound(ctx, cl.code, msg.Round)
	case TypeLeave:
		_, err = h.rooms.LeaveRoom(ctx, cl.code, cl.player)
	default:
		err = fmt.Errorf("%w: unknown message type %q", game.ErrValidation, msg.Type)
	}
	return err
}
