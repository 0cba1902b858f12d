package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

const (
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
)

type WSHandler struct {
	gateway  *app.Gateway
	upgrader websocket.Upgrader
}

func NewWSHandler(gateway *app.Gateway) *WSHandler {
	return &WSHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type ackPayload struct {
	ID    string        `json:"id"`
	OK    bool          `json:"ok"`
	Data  any           `json:"data,omitempty"`
	Error *errorPayload `json:"error,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createRoomPayload struct {
	QuizID   string              `json:"quizId"`
	Mode     string              `json:"mode"`
	Settings domain.RoomSettings `json:"settings"`
}

type joinRoomPayload struct {
	RoomCode        string         `json:"roomCode"`
	DisplayName     string         `json:"displayName"`
	CharacterConfig map[string]any `json:"characterConfig"`
}

type roomCodePayload struct {
	RoomCode string `json:"roomCode"`
}

type updateCharacterPayload struct {
	RoomCode        string         `json:"roomCode"`
	CharacterConfig map[string]any `json:"characterConfig"`
}

type submitAnswerPayload struct {
	RoomCode      string `json:"roomCode"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	TimeSpentMs   int    `json:"timeSpentMs"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the room
// gateway. The bearer credential rides in the token query parameter; an empty
// or invalid token yields a guest connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	ctx := r.Context()

	events, err := h.gateway.Connect(ctx, connID, r.URL.Query().Get("token"))
	if err != nil {
		log.Printf("ws connect failed: %v", err)
		return
	}
	defer h.gateway.Disconnect(context.WithoutCancel(ctx), connID)

	send := make(chan any, 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: event.Type, Payload: event.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		data, err := h.dispatch(ctx, connID, inbound)
		ack := ackPayload{ID: inbound.ID, OK: err == nil}
		if err != nil {
			ack.Error = &errorPayload{Code: errorCode(err), Message: err.Error()}
		} else {
			ack.Data = data
		}
		select {
		case send <- outboundMessage[ackPayload]{Type: "ack", Payload: ack}:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, connID string, inbound inboundMessage) (any, error) {
	switch inbound.Type {
	case "createRoom":
		var p createRoomPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		room, err := h.gateway.CreateRoom(ctx, connID, p.QuizID, domain.AdvanceMode(p.Mode), p.Settings)
		if err != nil {
			return nil, err
		}
		return map[string]any{"roomCode": room.Code, "room": room}, nil

	case "joinRoom":
		var p joinRoomPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		if p.RoomCode == "" || p.DisplayName == "" {
			return nil, errBadPayload
		}
		return h.gateway.JoinRoom(ctx, connID, p.RoomCode, p.DisplayName, p.CharacterConfig)

	case "leaveRoom":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return successData, h.gateway.LeaveRoom(ctx, connID, p.RoomCode)

	case "updateCharacter":
		var p updateCharacterPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return successData, h.gateway.UpdateCharacter(ctx, connID, p.RoomCode, p.CharacterConfig)

	case "submitAnswer":
		var p submitAnswerPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return h.gateway.SubmitAnswer(ctx, connID, p.RoomCode, p.QuestionIndex, p.Answer, p.TimeSpentMs)

	case "startGame":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return successData, h.gateway.StartGame(ctx, connID, p.RoomCode)

	case "endGame":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		leaderboard, err := h.gateway.EndGame(ctx, connID, p.RoomCode)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "leaderboard": leaderboard}, nil

	case "pauseGame":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return successData, h.gateway.PauseGame(ctx, connID, p.RoomCode)

	case "resumeGame":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return successData, h.gateway.ResumeGame(ctx, connID, p.RoomCode)

	case "nextQuestion":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return successData, h.gateway.NextQuestion(ctx, connID, p.RoomCode)

	case "autoNextQuestion":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		ignored, err := h.gateway.AutoNextQuestion(ctx, p.RoomCode)
		if err != nil {
			return nil, err
		}
		if ignored {
			return map[string]any{"success": true, "ignored": true}, nil
		}
		return successData, nil

	case "getRoomData":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return h.gateway.GetRoomData(ctx, p.RoomCode)

	case "getLeaderboard":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		leaderboard, err := h.gateway.GetLeaderboard(ctx, p.RoomCode)
		if err != nil {
			return nil, err
		}
		return map[string]any{"leaderboard": leaderboard}, nil

	case "deleteRoom":
		var p roomCodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return nil, errBadPayload
		}
		return successData, h.gateway.DeleteRoom(ctx, connID, p.RoomCode)

	default:
		return nil, errUnsupported
	}
}

var (
	errBadPayload  = errors.New("invalid payload")
	errUnsupported = errors.New("unsupported message type")

	successData = map[string]any{"success": true}
)

// errorCode maps domain failures to stable wire codes. Expected validation
// failures go back to the caller only; nothing is broadcast.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrRoomFinished), errors.Is(err, domain.ErrLateJoinDisallowed),
		errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrRoomExists):
		return "invalid_state"
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return "duplicate_submission"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, errBadPayload), errors.Is(err, errUnsupported):
		return "bad_request"
	default:
		return "internal"
	}
}
