// Package gateway speaks the socket protocol: it authenticates connections,
// keeps them in the Hub and handles client events (typing relay and plan
// room join/leave/message).
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/auth"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/realtime"
	"github.com/campusmatch/engine/internal/service/chat"
	"github.com/campusmatch/engine/internal/service/plan"
)

// Client-to-server event names.
const (
	EventTyping      = "chat:typing"
	EventPlanJoin    = "plan:join"
	EventPlanLeave   = "plan:leave"
	EventPlanMessage = "plan:message"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type Gateway struct {
	appCtx *app.AppContext
	hub    *realtime.Hub
	jwt    *auth.JWT
	plans  *plan.Service
	chat   *chat.Service
}

func New(appCtx *app.AppContext, hub *realtime.Hub, jwt *auth.JWT) *Gateway {
	return &Gateway{
		appCtx: appCtx,
		hub:    hub,
		jwt:    jwt,
		plans:  plan.NewService(appCtx),
		chat:   chat.NewService(appCtx),
	}
}

// Registrar exposes the socket endpoint. It authenticates on its own, so it
// belongs on the public route group.
type Registrar struct {
	gw *Gateway
}

func NewRegistrar(gw *Gateway) *Registrar {
	return &Registrar{gw: gw}
}

func (r *Registrar) Register(rg *gin.RouterGroup) {
	rg.GET("/ws", r.gw.Serve)
}

// Serve authenticates once, upgrades and runs the connection until it drops.
func (g *Gateway) Serve(c *gin.Context) {
	userID, err := g.jwt.Parse(auth.TokenFromRequest(c.Request))
	if err != nil {
		auth.Reject(c)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.appCtx.Logger.Debug("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	client := realtime.NewClient(userID, g.appCtx.Config.Realtime.SendBuffer)
	g.hub.Register(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.writePump(conn, client)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	g.readPump(ctx, conn, client)
	cancel()
	g.hub.Unregister(client)
	<-done
}

func (g *Gateway) readPump(ctx context.Context, conn *websocket.Conn, client *realtime.Client) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	typing := newTypingLimiter(g.appCtx.Config.Realtime.TypingRatePerSec)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.appCtx.Logger.Debug("socket read failed", "user_id", client.UserID, "err", err)
			}
			return
		}
		var frame realtime.Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			g.appCtx.Logger.Debug("dropping malformed frame", "user_id", client.UserID)
			continue
		}

		ack := g.handle(ctx, client, typing, frame)
		if frame.AckID == "" || ack == nil {
			continue
		}
		out, err := realtime.Encode(realtime.EventAck, ack, frame.AckID)
		if err == nil {
			client.Enqueue(out)
		}
	}
}

// writePump is the only writer of conn.
func (g *Gateway) writePump(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func newTypingLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSec), int(math.Max(1, math.Ceil(perSec))))
}

type typingPayload struct {
	ToUserID uint64 `json:"toUserId"`
	IsTyping bool   `json:"isTyping"`
}

type planPayload struct {
	PlanID    uint64 `json:"planId"`
	MessageID uint64 `json:"messageId,omitempty"`
}

func (g *Gateway) handle(ctx context.Context, client *realtime.Client, typing *rate.Limiter, f realtime.Frame) *realtime.Ack {
	switch f.Event {
	case EventTyping:
		var p typingPayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.ToUserID == 0 {
			return nack(svcErr.InvalidArgument("toUserId is required"))
		}
		return g.relayTyping(ctx, client, typing, p)

	case EventPlanJoin:
		var p planPayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.PlanID == 0 {
			return nack(svcErr.InvalidArgument("planId is required"))
		}
		err := g.plans.EnterRoom(ctx, p.PlanID, client.UserID, func() {
			g.hub.JoinRoom(client, p.PlanID)
		})
		if err != nil {
			return nack(err)
		}
		return &realtime.Ack{OK: true}

	case EventPlanLeave:
		var p planPayload
		if err := json.Unmarshal(f.Data, &p); err == nil && p.PlanID != 0 {
			g.hub.LeaveRoom(client, p.PlanID)
		}
		return &realtime.Ack{OK: true}

	case EventPlanMessage:
		var p planPayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.PlanID == 0 || p.MessageID == 0 {
			return nack(svcErr.InvalidArgument("planId and messageId are required"))
		}
		msg, err := g.chat.RoomMessage(ctx, client.UserID, p.PlanID, p.MessageID)
		if err != nil {
			return nack(err)
		}
		g.hub.PushToRoom(p.PlanID, realtime.EventPlanNewMessage, msg)
		return &realtime.Ack{OK: true}

	default:
		return nack(svcErr.InvalidArgument("unknown event " + f.Event))
	}
}

func (g *Gateway) relayTyping(ctx context.Context, client *realtime.Client, typing *rate.Limiter, p typingPayload) *realtime.Ack {
	if !typing.Allow() {
		return &realtime.Ack{OK: false, Error: "rate limited"}
	}
	if g.appCtx.Config.Realtime.TypingRequiresMatch {
		if err := g.chat.CanDirect(ctx, client.UserID, p.ToUserID); err != nil {
			return nack(err)
		}
	}
	g.hub.PushToUser(p.ToUserID, realtime.EventChatTyping, map[string]interface{}{
		"fromUserId": client.UserID,
		"isTyping":   p.IsTyping,
	})
	return &realtime.Ack{OK: true}
}

// nack turns err into an ack the client can show. Internal causes stay in
// the server log.
func nack(err error) *realtime.Ack {
	mapped := svcErr.Map(err)
	var e *svcErr.Error
	if errors.Is(mapped, svcErr.ErrInternal) || !errors.As(mapped, &e) {
		return &realtime.Ack{OK: false, Error: "internal error"}
	}
	return &realtime.Ack{OK: false, Error: e.Message}
}
