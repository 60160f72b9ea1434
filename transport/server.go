package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/realtime"
)

// Server upgrades HTTP requests to websocket sessions and dispatches
// inbound frames. It is a thin shell: identity resolution, then the
// presence coordinator and the stores do the actual work.
type Server struct {
	log         *slog.Logger
	hub         *Hub
	coordinator *realtime.PresenceCoordinator
	liveness    *realtime.ConnectionLiveness
	store       contract.MessageStore
	directory   contract.ChannelDirectory
	secret      []byte
	upgrader    websocket.Upgrader
}

func NewServer(
	log *slog.Logger,
	hub *Hub,
	coordinator *realtime.PresenceCoordinator,
	liveness *realtime.ConnectionLiveness,
	store contract.MessageStore,
	directory contract.ChannelDirectory,
	secret []byte,
) *Server {
	return &Server{
		log:         log,
		hub:         hub,
		coordinator: coordinator,
		liveness:    liveness,
		store:       store,
		directory:   directory,
		secret:      secret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ProbeConnection sends the application-level keepalive probe. Wired as
// the liveness probe callback.
func (s *Server) ProbeConnection(_ context.Context, conn *realtime.Conn) {
	if err := s.hub.SendToConn(conn.ID, event.PingName, nil); err != nil {
		s.log.Debug("Keepalive probe not deliverable", "conn", conn.ID, "err", err)
	}
}

// ExpireConnection deregisters a timed-out connection and closes its
// socket. Wired as the liveness expire callback; the subsequent read
// loop exit re-runs the (idempotent) disconnect path.
func (s *Server) ExpireConnection(ctx context.Context, conn *realtime.Conn) {
	s.coordinator.ExpireConnection(ctx, conn)
	s.hub.closeSession(conn.ID)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "err", err)
		return
	}
	session := newSession(s.hub, ws, s.log)
	s.hub.register(session)

	// A malformed or missing token resolves to the zero subject: the
	// connection stays open but unauthenticated, with no presence.
	subject := auth.ResolveSubject(bearerToken(r), s.secret)
	s.coordinator.OnConnected(r.Context(), session.Handle, subject)

	go session.writeLoop()
	session.readLoop(
		func(frame Frame) { s.handleFrame(session, frame) },
		func() { s.liveness.OnPingReceived(session.ID) },
	)

	s.coordinator.OnDisconnected(context.Background(), session.Handle)
	s.hub.drop(session)
}

func (s *Server) handleFrame(session *Session, frame Frame) {
	ctx := context.Background()
	switch frame.Event {
	case event.PingName:
		if err := s.hub.SendToConn(session.ID, event.PongName, nil); err != nil {
			s.log.Debug("Pong not deliverable", "conn", session.ID, "err", err)
		}
	case event.PongName:
		// Activity already counted by the read loop.
	case event.MessageSendName:
		var req event.MessageSend
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.log.Debug("Malformed message.send", "conn", session.ID, "err", err)
			return
		}
		s.handleMessageSend(ctx, session, req)
	case event.ReadHorizonAdvanceName:
		var req event.ReadHorizonAdvance
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.log.Debug("Malformed readhorizon.advance", "conn", session.ID, "err", err)
			return
		}
		s.handleReadHorizonAdvance(ctx, session, req)
	default:
		s.log.Debug("Unknown event", "conn", session.ID, "event", frame.Event)
	}
}

func (s *Server) handleMessageSend(ctx context.Context, session *Session, req event.MessageSend) {
	sender := session.Handle.Subject()
	if sender.IsZero() || req.ChannelID.IsZero() {
		return
	}
	member, err := s.directory.IsMember(ctx, req.ChannelID, sender)
	if err != nil || !member {
		return
	}
	msg, err := s.store.CreateMessage(ctx, req.ChannelID, sender, req.Content)
	if err != nil {
		s.log.Warn("Message create failed", "channel", req.ChannelID, "err", err)
		return
	}
	group := domain.ChannelGroup(req.ChannelID)
	if err := s.hub.SendToGroup(ctx, group, event.MessageIncomingName, event.MessageIncoming{Message: msg}); err != nil {
		s.log.Warn("Message broadcast failed", "group", group, "err", err)
	}
}

func (s *Server) handleReadHorizonAdvance(ctx context.Context, session *Session, req event.ReadHorizonAdvance) {
	user := session.Handle.Subject()
	if user.IsZero() || req.ChannelID.IsZero() {
		return
	}
	ts := time.UnixMilli(req.TimestampMillis).UTC()
	moved, err := s.store.UpdateReadHorizon(ctx, req.ChannelID, user, ts)
	if err != nil {
		s.log.Debug("Read horizon update failed", "channel", req.ChannelID, "err", err)
		return
	}
	// Only an actual advance is broadcast, and only to the user's own
	// connections: every device of the user learns the new horizon.
	if moved {
		payload := event.NewReadHorizonChanged(req.ChannelID, user, ts)
		if err := s.hub.SendToGroup(ctx, domain.UserGroup(user), event.ReadHorizonChangedName, payload); err != nil {
			s.log.Debug("Read horizon broadcast failed", "user", user, "err", err)
		}
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
