package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/pslgod1/DigitalTest/internal/app"
	"github.com/pslgod1/DigitalTest/internal/auth"
	"github.com/pslgod1/DigitalTest/internal/domain"
)

// ResultsHandler streams attempt progress for a test over a websocket. The
// feed carries every taker's progress, so it is restricted to admins.
type ResultsHandler struct {
	hub      *app.ResultsHub
	users    app.UserStore
	tokens   *auth.TokenManager
	upgrader websocket.Upgrader
}

func NewResultsHandler(hub *app.ResultsHub, users app.UserStore, tokens *auth.TokenManager) *ResultsHandler {
	return &ResultsHandler{
		hub:    hub,
		users:  users,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades the connection and forwards every attempt update for the
// requested test until the client disconnects. The session cookie is checked
// before the upgrade, so unauthenticated dials fail the handshake.
func (h *ResultsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticate(r); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	testID, err := strconv.ParseInt(r.URL.Query().Get("testId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid testId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.hub.Subscribe(testID)
	defer cancel()

	// Drain the read side so peer close is noticed; clients never send
	// anything meaningful on this socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(wsMessage{Type: "subscribed", Payload: map[string]int64{"testId": testID}}); err != nil {
		return
	}

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsMessage{Type: "attemptUpdate", Payload: update}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}

// authenticate resolves the session cookie and requires the admin role.
func (h *ResultsHandler) authenticate(r *http.Request) (domain.User, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return domain.User{}, domain.ErrUnauthorized
	}
	claims, err := h.tokens.Parse(cookie.Value)
	if err != nil {
		return domain.User{}, err
	}
	user, err := h.users.ByID(r.Context(), claims.UserID)
	if err != nil {
		return domain.User{}, domain.ErrUnauthorized
	}
	if user.Role != domain.RoleAdmin {
		return domain.User{}, domain.ErrForbidden
	}
	return user, nil
}
