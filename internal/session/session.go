package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/graphstore"
	"github.com/steveyegge/graphd/internal/idgen"
)

// reauthInterval is how often an authenticated session is required to
// re-present a credential token on its next message (spec.md §9: "a timer
// event, not a message-count counter").
const reauthInterval = 10 * time.Minute

// StaticAux is the auxiliary data sent in the authenticated frame:
// available plugins and entity blueprints, both fixed at server startup.
type StaticAux struct {
	Plugins    []string
	Blueprints json.RawMessage
}

// Session drives one websocket connection end to end: workspace short-id
// decode, the Unauthenticated/Authenticated state machine, and action
// dispatch. One Session per connection; Serve blocks until the
// connection closes.
type Session struct {
	conn  *websocket.Conn
	log   *eventlog.Log
	store *graphstore.Store
	auth  Authenticator
	aux   StaticAux

	ctx   authContext
}

// New constructs a Session for an already-upgraded websocket connection.
func New(conn *websocket.Conn, evLog *eventlog.Log, gs *graphstore.Store, auth Authenticator, aux StaticAux) *Session {
	return &Session{conn: conn, log: evLog, store: gs, auth: auth, aux: aux}
}

// Serve decodes the workspace short-id, then runs the read loop until the
// connection closes or ctx is canceled. A malformed short-id closes the
// connection with a policy-violation close code per spec.md §4.E step 2.
func (s *Session) Serve(ctx context.Context, workspaceShortID string) error {
	streamID, err := idgen.DecodeWorkspaceShortID(workspaceShortID)
	if err != nil {
		s.closePolicyViolation("invalid workspace short-id")
		return fmt.Errorf("session: decode short-id: %w", err)
	}

	stream, err := s.log.StreamByID(ctx, streamID)
	if err != nil {
		s.closePolicyViolation("unknown workspace")
		return fmt.Errorf("session: resolve workspace: %w", err)
	}

	pendingGraphID, err := uuid.Parse(stream.Key)
	if err != nil {
		s.closePolicyViolation("workspace stream key is not a graph uuid")
		return fmt.Errorf("session: workspace key is not a uuid: %w", err)
	}

	return s.readLoop(ctx, pendingGraphID)
}

func (s *Session) closePolicyViolation(reason string) {
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second),
	)
	_ = s.conn.Close()
}

type inbound struct {
	frame InFrame
	err   error
}

// readLoop pumps inbound frames off a reader goroutine so the main
// select can also watch the re-auth ticker, keeping the protocol
// cooperative and single-threaded otherwise (spec.md §5).
func (s *Session) readLoop(ctx context.Context, pendingGraphID uuid.UUID) error {
	msgs := make(chan inbound)
	go func() {
		defer close(msgs)
		for {
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				msgs <- inbound{err: err}
				return
			}
			var f InFrame
			if jsonErr := json.Unmarshal(data, &f); jsonErr != nil {
				msgs <- inbound{err: fmt.Errorf("malformed frame: %w", jsonErr)}
				continue
			}
			msgs <- inbound{frame: f}
		}
	}()

	ticker := time.NewTicker(reauthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
			return nil

		case <-ticker.C:
			s.ctx.needsReauth = true

		case in, ok := <-msgs:
			if !ok {
				return nil
			}
			if in.err != nil {
				if websocket.IsUnexpectedCloseError(in.err,
					websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(in.err).Debug("session: connection lost")
				}
				return nil
			}
			if err := s.handle(ctx, in.frame, pendingGraphID); err != nil {
				log.WithError(err).Debug("session: frame handling error")
			}
		}
	}
}

// handle routes one inbound frame according to the current state.
func (s *Session) handle(ctx context.Context, f InFrame, pendingGraphID uuid.UUID) error {
	if s.ctx.phase == stateUnauthenticated || s.ctx.needsReauth {
		return s.handleAuth(ctx, f, pendingGraphID)
	}
	return s.handleAction(ctx, f)
}

// handleAuth validates the credential presented in an auth frame. Every
// failure here is an auth/policy violation (spec.md line 160, line 222),
// so it closes the connection rather than sending an error frame and
// leaving it open in the unauthenticated state.
func (s *Session) handleAuth(ctx context.Context, f InFrame, pendingGraphID uuid.UUID) error {
	if f.Token == "" {
		s.closePolicyViolation("authentication required")
		return fmt.Errorf("session: no credential presented")
	}

	principalID, err := s.auth.ValidateToken(ctx, f.Token)
	if err != nil {
		s.closePolicyViolation("invalid credential")
		return fmt.Errorf("session: validate token: %w", err)
	}

	owns, err := s.auth.OwnsWorkspace(ctx, principalID, pendingGraphID)
	if err != nil {
		s.closePolicyViolation("not authorized for this workspace")
		return fmt.Errorf("session: workspace ownership check: %w", err)
	}
	if !owns {
		s.closePolicyViolation("not authorized for this workspace")
		return fmt.Errorf("session: principal %s does not own workspace %s", principalID, pendingGraphID)
	}

	s.ctx.phase = stateAuthenticated
	s.ctx.principalID = principalID
	s.ctx.graphID = pendingGraphID
	s.ctx.needsReauth = false

	return s.send(OutFrame{
		Type:       frameTypeAuthenticated,
		Plugins:    s.aux.Plugins,
		Blueprints: s.aux.Blueprints,
	})
}

func (s *Session) send(f OutFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("session: marshal frame: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
