package handler

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/config"
	"github.com/snsgroups/proctor-backend/internal/model"
	"github.com/snsgroups/proctor-backend/internal/proctor"
	"github.com/snsgroups/proctor-backend/internal/session"
	ws "github.com/snsgroups/proctor-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams shell signals into the attempt engine and engine events
// back to the shell.
type WSHandler struct {
	manager      *session.Manager
	log          zerolog.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	readTimeout  time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, log zerolog.Logger, cfg *config.Config) *WSHandler {
	return &WSHandler{
		manager:      manager,
		log:          log.With().Str("component", "ws_handler").Logger(),
		upgrader:     buildUpgrader(cfg.AllowedOrigins),
		writeTimeout: cfg.WSWriteTimeout,
		readTimeout:  cfg.WSReadTimeout,
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:contest_id/stream?student_id=...
// Upgrades to WebSocket for real-time signal relay and proctoring events.
// The attempt must already be started over REST; the clocks keep running if
// this stream drops.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	contestID := c.Param("contest_id")
	studentID := c.Query("student_id")
	if contestID == "" || studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contest_id and student_id are required"})
		return
	}

	engine, ok := h.manager.Get(contestID, studentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live attempt for this contest and student"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("contest_id", contestID).
		Str("student_id", studentID).
		Logger()
	wsLog.Info().Msg("Shell connected")

	notifier := &wsNotifier{conn: conn, timeout: h.writeTimeout}
	engine.SetNotifier(notifier)
	relay := proctor.NewRelay()
	engine.AttachSource(relay)

	// A reload drops the browser out of fullscreen while the persisted state
	// still says it was active; send the shell straight back in.
	if engine.ResumeFullscreen() {
		notifier.EnforceFullscreen()
	}

	defer func() {
		engine.DetachSource()
		engine.SetNotifier(nil)
		wsLog.Info().Msg("Shell disconnected")
	}()

	for {
		var msg ws.SignalRequest
		if err := ws.ReadJSON(conn, h.readTimeout, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			notifier.write(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionSignal:
			h.handleSignal(relay, notifier, &msg)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			notifier.writeError("unknown action: " + string(msg.Action))
		}
	}
}

// handleSignal converts the wire message into a proctor.Signal and emits it.
func (h *WSHandler) handleSignal(relay *proctor.Relay, notifier *wsNotifier, msg *ws.SignalRequest) {
	if msg.Kind == "" {
		notifier.writeError("kind is required")
		return
	}

	sig := proctor.Signal{Kind: msg.Kind, At: time.Now()}
	if msg.Active != nil {
		sig.Active = *msg.Active
	}
	if msg.Detected != nil {
		sig.Detected = *msg.Detected
	}
	if msg.Key != nil {
		sig.Key = *msg.Key
	}
	relay.Emit(sig)
}

// wsNotifier pushes engine events down the socket. A mutex serializes
// writes: warnings arrive from the signal goroutine while finish events can
// come from the ticker.
type wsNotifier struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (n *wsNotifier) write(v interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_ = ws.WriteTyped(n.conn, n.timeout, v)
}

func (n *wsNotifier) writeError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_ = ws.WriteError(n.conn, n.timeout, msg)
}

func (n *wsNotifier) Warn(kind model.ViolationKind, count int, modal bool) {
	n.write(ws.WarningResponse{Event: ws.EventWarning, Kind: string(kind), Count: count, Modal: modal})
}

func (n *wsNotifier) EnforceFullscreen() {
	n.write(ws.EnforceResponse{Event: ws.EventEnforce})
}

func (n *wsNotifier) FocusState(has bool) {
	n.write(ws.FocusResponse{Event: ws.EventFocus, HasFocus: has})
}

func (n *wsNotifier) Finished(redirect string) {
	n.write(ws.FinishedResponse{Event: ws.EventFinished, Redirect: redirect})
}

func (n *wsNotifier) SubmitFailed(message string) {
	n.write(ws.SubmitFailedResponse{Event: ws.EventSubmitFailed, Error: message})
}
