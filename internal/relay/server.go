package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tombalago/internal/transport/wsrelay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Peers connect from native clients, not browsers.
	CheckOrigin: func(*http.Request) bool { return true },
}

type Server struct {
	listenPort uint16
	hub        *Hub
	srv        http.Server
	ln         net.Listener
	ctx        context.Context
}

func NewServer(ctx context.Context, listenPort uint16) *Server {
	return &Server{
		listenPort: listenPort,
		hub:        NewHub(),
		ctx:        ctx,
	}
}

func (s *Server) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", s.listenPort)
	s.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	s.srv = http.Server{Handler: s.router()}
	return s.srv.Serve(s.ln)
}

func (s *Server) router() *gin.Engine {
	routerEngine := gin.New()
	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	routerEngine.GET("/ws", s.handle)
	routerEngine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return routerEngine
}

func (s *Server) handle(ginCtx *gin.Context) {
	code := ginCtx.Query("room")
	if code == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "room is required"})
		return
	}

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("relay.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(64 << 10)
	_ = rawConn.SetReadDeadline(time.Now().Add(pongWait))
	rawConn.SetPongHandler(func(string) error {
		return rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	conn := &peerConn{rawConn: rawConn}
	s.hub.Join(code, conn)

	// The room has no memory; the host re-publishes its snapshot when it
	// hears a peer arrived.
	joined, _ := json.Marshal(wsrelay.Frame{Kind: wsrelay.KindPeerJoined})
	s.hub.Fanout(code, conn, joined)

	go s.reader(code, conn)
	go s.pinger(conn)
}

func (s *Server) reader(code string, conn *peerConn) {
	defer s.hub.Leave(code, conn)

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			return // peer closed or errored
		}
		var f wsrelay.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Kind != wsrelay.KindPublish {
			zap.L().Warn("relay.drop_frame", zap.String("room", code), zap.Error(err))
			continue
		}
		s.hub.Fanout(code, conn, data)
	}
}

func (s *Server) pinger(conn *peerConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.ping(); err != nil {
			_ = conn.rawConn.Close()
			return
		}
	}
}

// Dispose gracefully shuts the relay down, waiting up to 10 s for in-flight
// traffic.
func (s *Server) Dispose() error {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		zap.L().Error("relay.dispose", zap.Error(err))
		return err
	}
	return nil
}
