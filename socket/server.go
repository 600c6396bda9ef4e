// Package socket pushes room events to connected clients over socket.io.
package socket

import (
	"context"
	"errors"
	"net/http"
	"strings"

	socketio "github.com/googollee/go-socket.io"

	"groupswipe/logging"
	"groupswipe/metrics"
	"groupswipe/models"
)

const (
	namespace = "/"

	// EventMatchCreated is emitted to a room when its members reach consensus.
	EventMatchCreated = "matchCreated"
)

// Server wraps a socket.io server where each swipe room is a socket.io room.
type Server struct {
	io *socketio.Server
}

// NewServer registers the connection and room handlers.
func NewServer() *Server {
	srv := socketio.NewServer(nil)
	log := logging.WithComponent("socket")

	srv.OnConnect(namespace, func(c socketio.Conn) error {
		metrics.SocketConnections.Inc()
		log.Debug().Str("conn_id", c.ID()).Msg("Socket connected")
		return nil
	})

	srv.OnEvent(namespace, "join", func(c socketio.Conn, data map[string]string) {
		roomID, ok := roomFromPayload(data)
		if !ok {
			log.Warn().Str("conn_id", c.ID()).Msg("Invalid roomId in join request")
			c.Emit("error", "invalid roomId")
			return
		}
		c.Join(roomID)
		log.Debug().Str("conn_id", c.ID()).Str("room_id", roomID).Msg("Socket joined room")
		c.Emit("joined", roomID)
	})

	srv.OnEvent(namespace, "leave", func(c socketio.Conn, data map[string]string) {
		if roomID, ok := roomFromPayload(data); ok {
			c.Leave(roomID)
		}
	})

	srv.OnError(namespace, func(c socketio.Conn, err error) {
		id := ""
		if c != nil {
			id = c.ID()
		}
		log.Warn().Err(err).Str("conn_id", id).Msg("Socket error")
	})

	srv.OnDisconnect(namespace, func(c socketio.Conn, reason string) {
		metrics.SocketConnections.Dec()
		log.Debug().Str("conn_id", c.ID()).Str("reason", reason).Msg("Socket disconnected")
	})

	return &Server{io: srv}
}

func roomFromPayload(data map[string]string) (string, bool) {
	roomID := strings.TrimSpace(data["roomId"])
	return roomID, models.ValidID(roomID)
}

// ServeHTTP handles /socket.io/ requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHTTP(w, r)
}

// BroadcastMatch emits match to every socket in its room.
func (s *Server) BroadcastMatch(match models.Match) bool {
	return s.io.BroadcastToRoom(namespace, match.RoomID, EventMatchCreated, match)
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.io.Serve() }()

	select {
	case <-ctx.Done():
		_ = s.io.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if err == nil {
			err = errors.New("socket server stopped")
		}
		return err
	}
}

func (s *Server) String() string { return "socket.io" }
