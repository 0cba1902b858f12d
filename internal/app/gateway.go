package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quiz-room-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// IdentityProvider resolves a bearer credential to a stable user identity. An
// empty or unverifiable credential resolves to the anonymous identity, not an
// error.
type IdentityProvider interface {
	Resolve(ctx context.Context, credential string) (domain.Identity, error)
}

const (
	roomCodeLength           = 6
	roomCodeAlphabet         = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeMaxAttempts      = 5
	defaultSendBuffer        = 16
	defaultTimePerQuestionMs = 30000
)

// GatewayConfig wires the gateway's collaborators.
type GatewayConfig struct {
	Store    RoomStore
	Quizzes  QuizRepository
	Identity IdentityProvider
	Locks    AdvanceLocker
	Scoring  ScoreConfig

	// SendBuffer caps each connection's outbound event queue.
	SendBuffer int
}

// Gateway is the sole entry point for inbound room events. It owns the live
// connection registry and the broadcast fan-out; every mutation it performs
// goes through a RoomStore transaction.
type Gateway struct {
	store    RoomStore
	quizzes  QuizRepository
	identity IdentityProvider
	advance  *AdvanceCoordinator
	scoring  ScoreConfig

	now        func() time.Time
	sendBuffer int
	rnd        *rand.Rand

	mu    sync.RWMutex
	conns map[string]*connection
	rooms map[string]map[string]*connection
}

type connection struct {
	id       string
	identity domain.Identity
	rooms    map[string]struct{}

	sendMu sync.Mutex
	closed bool
	send   chan domain.Event
}

// trySend queues an event without ever blocking or touching a closed channel.
// A full queue drops the oldest pending event so a slow client cannot block
// the rest of the room.
func (c *connection) trySend(event domain.Event) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- event:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- event:
		default:
		}
	}
}

func (c *connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func NewGateway(c GatewayConfig) *Gateway {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.Scoring == (ScoreConfig{}) {
		c.Scoring = DefaultScoreConfig()
	}
	return &Gateway{
		store:      c.Store,
		quizzes:    c.Quizzes,
		identity:   c.Identity,
		advance:    NewAdvanceCoordinator(c.Store, c.Quizzes, c.Locks),
		scoring:    c.Scoring,
		now:        time.Now,
		sendBuffer: c.SendBuffer,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		conns:      make(map[string]*connection),
		rooms:      make(map[string]map[string]*connection),
	}
}

// Connect registers a live connection and resolves its identity once. The
// returned channel carries every broadcast for rooms the connection joins and
// is closed by Disconnect.
func (g *Gateway) Connect(ctx context.Context, connID, credential string) (<-chan domain.Event, error) {
	identity, err := g.identity.Resolve(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	conn := &connection{
		id:       connID,
		identity: identity,
		send:     make(chan domain.Event, g.sendBuffer),
		rooms:    make(map[string]struct{}),
	}

	g.mu.Lock()
	g.conns[connID] = conn
	g.mu.Unlock()

	return conn.send, nil
}

// Disconnect detaches the connection from every room it joined, best-effort:
// a failure in one room must not keep the others attached.
func (g *Gateway) Disconnect(ctx context.Context, connID string) {
	g.mu.Lock()
	conn, ok := g.conns[connID]
	if !ok {
		g.mu.Unlock()
		return
	}
	codes := make([]string, 0, len(conn.rooms))
	for code := range conn.rooms {
		codes = append(codes, code)
	}
	delete(g.conns, connID)
	for _, code := range codes {
		g.detachLocked(conn, code)
	}
	g.mu.Unlock()
	conn.closeSend()

	for _, code := range codes {
		if err := g.removeParticipant(ctx, connID, code); err != nil {
			log.Printf("disconnect %s: leave room %s: %v", connID, code, err)
		}
	}
}

// connAlive is the liveness check the reconciler uses to prune stale records.
func (g *Gateway) connAlive(connID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.conns[connID]
	return ok
}

func (g *Gateway) conn(connID string) (*connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conn, ok := g.conns[connID]
	return conn, ok
}

func (g *Gateway) attach(connID, roomCode string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	conn, ok := g.conns[connID]
	if !ok {
		return
	}
	conn.rooms[roomCode] = struct{}{}
	if g.rooms[roomCode] == nil {
		g.rooms[roomCode] = make(map[string]*connection)
	}
	g.rooms[roomCode][connID] = conn
}

func (g *Gateway) detach(connID, roomCode string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if conn, ok := g.conns[connID]; ok {
		g.detachLocked(conn, roomCode)
	}
}

func (g *Gateway) detachLocked(conn *connection, roomCode string) {
	delete(conn.rooms, roomCode)
	if group, ok := g.rooms[roomCode]; ok {
		delete(group, conn.id)
		if len(group) == 0 {
			delete(g.rooms, roomCode)
		}
	}
}

// detachRoom drops every connection from a room group, for room deletion.
func (g *Gateway) detachRoom(roomCode string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, conn := range g.rooms[roomCode] {
		delete(conn.rooms, roomCode)
	}
	delete(g.rooms, roomCode)
}

// broadcast fans an event out to every connection in the room group.
func (g *Gateway) broadcast(roomCode string, event domain.Event) {
	g.mu.RLock()
	targets := make([]*connection, 0, len(g.rooms[roomCode]))
	for _, conn := range g.rooms[roomCode] {
		targets = append(targets, conn)
	}
	g.mu.RUnlock()

	for _, conn := range targets {
		conn.trySend(event)
	}
}

// CreateRoom creates a room in waiting state for an authenticated host who
// owns the quiz. Nothing is broadcast: the room has no participants yet.
func (g *Gateway) CreateRoom(ctx context.Context, connID, quizID string, mode domain.AdvanceMode, settings domain.RoomSettings) (domain.RoomPublicView, error) {
	conn, ok := g.conn(connID)
	if !ok {
		return domain.RoomPublicView{}, domain.ErrUnauthorized
	}
	if conn.identity.Anonymous() {
		return domain.RoomPublicView{}, domain.ErrUnauthorized
	}

	quiz, err := g.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.RoomPublicView{}, err
	}
	if !quiz.IsOwnedBy(conn.identity.UserID) {
		return domain.RoomPublicView{}, domain.ErrUnauthorized
	}

	if mode != domain.ModeManual {
		mode = domain.ModeAuto
	}
	if settings.TimePerQuestionMs <= 0 {
		settings.TimePerQuestionMs = defaultTimePerQuestionMs
	}

	for attempt := 0; attempt < roomCodeMaxAttempts; attempt++ {
		room := &domain.Room{
			Code:      g.newRoomCode(),
			QuizID:    quizID,
			HostID:    conn.identity.UserID,
			Mode:      mode,
			Settings:  settings,
			Status:    domain.StatusWaiting,
			CreatedAt: g.now(),
		}
		err := g.store.Create(ctx, room)
		if err == nil {
			return room.PublicView(), nil
		}
		if err != domain.ErrRoomExists {
			return domain.RoomPublicView{}, err
		}
	}
	return domain.RoomPublicView{}, domain.ErrBusy
}

func (g *Gateway) newRoomCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[g.rnd.Intn(len(roomCodeAlphabet))]
	}
	return string(code)
}

// JoinResult is the joinRoom acknowledgment payload.
type JoinResult struct {
	Room      domain.RoomPublicView   `json:"room"`
	Questions []domain.PublicQuestion `json:"quiz"`
	IsHost    bool                    `json:"isHost"`
}

// JoinRoom attaches a connection to a room. The host joins in monitor mode
// without ever touching the participant set; everyone else goes through the
// reconciliation merge.
func (g *Gateway) JoinRoom(ctx context.Context, connID, roomCode, displayName string, character map[string]any) (JoinResult, error) {
	conn, ok := g.conn(connID)
	if !ok {
		return JoinResult{}, domain.ErrUnauthorized
	}

	roomCode = domain.NormalizeRoomCode(roomCode)
	identityKey := domain.IdentityKeyFor(conn.identity, displayName)
	isGuest := conn.identity.Anonymous()

	type joinState struct {
		room   domain.RoomPublicView
		quizID string
		isHost bool
	}

	state, err := RunRoomTx(ctx, g.store, roomCode, func(room *domain.Room) (joinState, TxOutcome, error) {
		if room.Status == domain.StatusFinished {
			return joinState{}, TxNoop, domain.ErrRoomFinished
		}
		isHost := !conn.identity.Anonymous() && conn.identity.UserID == room.HostID
		if isHost {
			return joinState{room: room.PublicView(), quizID: room.QuizID, isHost: true}, TxNoop, nil
		}
		if room.Status == domain.StatusPlaying && !room.Settings.LateJoinAllowed {
			return joinState{}, TxNoop, domain.ErrLateJoinDisallowed
		}

		Reconcile(room, identityKey, displayName, connID, isGuest, character, g.now(), g.connAlive)
		return joinState{room: room.PublicView(), quizID: room.QuizID}, TxMutated, nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	quiz, err := g.quizzes.GetQuiz(ctx, state.quizID)
	if err != nil {
		return JoinResult{}, err
	}

	g.attach(connID, roomCode)

	if !state.isHost {
		g.broadcast(roomCode, domain.Event{
			Type: domain.EventParticipantsUpdated,
			Payload: domain.ParticipantsUpdatedPayload{
				Participants: state.room.Participants,
				Count:        len(state.room.Participants),
			},
		})
		g.broadcast(roomCode, domain.Event{
			Type:    domain.EventParticipantJoined,
			Payload: domain.ParticipantJoinedPayload{DisplayName: displayName},
		})
	}

	return JoinResult{Room: state.room, Questions: quiz.PublicView(), IsHost: state.isHost}, nil
}

// LeaveRoom removes the participant attached to connID. Leaving twice, or
// leaving as the host, is a harmless no-op.
func (g *Gateway) LeaveRoom(ctx context.Context, connID, roomCode string) error {
	roomCode = domain.NormalizeRoomCode(roomCode)
	if err := g.removeParticipant(ctx, connID, roomCode); err != nil {
		return err
	}
	g.detach(connID, roomCode)
	return nil
}

func (g *Gateway) removeParticipant(ctx context.Context, connID, roomCode string) error {
	view, err := RunRoomTx(ctx, g.store, roomCode, func(room *domain.Room) (*domain.RoomPublicView, TxOutcome, error) {
		for i := range room.Participants {
			if room.Participants[i].ConnectionID == connID {
				room.Participants = append(room.Participants[:i], room.Participants[i+1:]...)
				v := room.PublicView()
				return &v, TxMutated, nil
			}
		}
		return nil, TxNoop, nil
	})
	if err != nil {
		return err
	}
	if view != nil {
		g.broadcast(roomCode, domain.Event{
			Type: domain.EventParticipantsUpdated,
			Payload: domain.ParticipantsUpdatedPayload{
				Participants: view.Participants,
				Count:        len(view.Participants),
			},
		})
	}
	return nil
}

// SubmitResult is the submitAnswer acknowledgment payload.
type SubmitResult struct {
	IsCorrect     bool   `json:"isCorrect"`
	Points        int    `json:"points"`
	CorrectAnswer string `json:"correctAnswer"`
}

// SubmitAnswer resolves the acting participant by connection id (the live
// socket is authoritative for who is asking), scores the answer and appends it
// in one transaction. The duplicate check runs inside the same transaction as
// the append, so check-then-act cannot race across the load boundary.
func (g *Gateway) SubmitAnswer(ctx context.Context, connID, roomCode string, questionIndex int, value string, responseTimeMs int) (SubmitResult, error) {
	roomCode = domain.NormalizeRoomCode(roomCode)

	loaded, _, err := g.store.Load(ctx, roomCode)
	if err != nil {
		return SubmitResult{}, err
	}
	quiz, err := g.quizzes.GetQuiz(ctx, loaded.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}
	if questionIndex < 0 || questionIndex >= len(quiz.Questions) {
		return SubmitResult{}, domain.ErrQuizNotFound
	}
	question := quiz.Questions[questionIndex]

	type submitState struct {
		result   SubmitResult
		name     string
		answered int
		total    int
	}

	state, err := RunRoomTx(ctx, g.store, roomCode, func(room *domain.Room) (submitState, TxOutcome, error) {
		if room.Status == domain.StatusFinished {
			return submitState{}, TxNoop, domain.ErrRoomFinished
		}
		p := room.ParticipantByConnection(connID)
		if p == nil {
			return submitState{}, TxNoop, domain.ErrParticipantNotFound
		}
		if p.HasAnswered(questionIndex) {
			return submitState{}, TxNoop, domain.ErrDuplicateSubmission
		}

		correct, points := g.scoring.Score(question, value, responseTimeMs, room.Settings.TimePerQuestionMs)
		p.Answers = append(p.Answers, domain.Answer{
			QuestionIndex:  questionIndex,
			SubmittedValue: value,
			IsCorrect:      correct,
			SubmittedAt:    g.now(),
			ResponseTimeMs: responseTimeMs,
		})
		p.Score += points

		answered := 0
		for i := range room.Participants {
			if room.Participants[i].HasAnswered(questionIndex) {
				answered++
			}
		}

		return submitState{
			result:   SubmitResult{IsCorrect: correct, Points: points, CorrectAnswer: question.AnswerKey},
			name:     p.DisplayName,
			answered: answered,
			total:    len(room.Participants),
		}, TxMutated, nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	// Only the aggregate count is broadcast; leaking any answer content would
	// reveal the key before the reveal.
	g.broadcast(roomCode, domain.Event{
		Type: domain.EventAnswerSubmitted,
		Payload: domain.AnswerSubmittedPayload{
			ParticipantName:   state.name,
			AnsweredCount:     state.answered,
			TotalParticipants: state.total,
		},
	})

	return state.result, nil
}

// StartGame is the waiting → playing transition, host only.
func (g *Gateway) StartGame(ctx context.Context, connID, roomCode string) error {
	roomCode = domain.NormalizeRoomCode(roomCode)
	callerID := g.callerID(connID)

	startedAt, err := RunRoomTx(ctx, g.store, roomCode, func(room *domain.Room) (time.Time, TxOutcome, error) {
		if callerID == "" || callerID != room.HostID {
			return time.Time{}, TxNoop, domain.ErrUnauthorized
		}
		if room.Status != domain.StatusWaiting {
			return time.Time{}, TxNoop, domain.ErrInvalidTransition
		}
		now := g.now()
		room.Status = domain.StatusPlaying
		room.StartedAt = &now
		return now, TxMutated, nil
	})
	if err != nil {
		return err
	}

	g.broadcast(roomCode, domain.Event{
		Type:    domain.EventGameStarted,
		Payload: domain.GameStartedPayload{StartedAt: startedAt},
	})
	return nil
}

// EndGame finishes the room from any state, host only, and broadcasts the
// final leaderboard.
func (g *Gateway) EndGame(ctx context.Context, connID, roomCode string) ([]domain.LeaderboardEntry, error) {
	roomCode = domain.NormalizeRoomCode(roomCode)
	callerID := g.callerID(connID)

	type endState struct {
		leaderboard []domain.LeaderboardEntry
		finishedAt  time.Time
	}

	state, err := RunRoomTx(ctx, g.store, roomCode, func(room *domain.Room) (endState, TxOutcome, error) {
		if callerID == "" || callerID != room.HostID {
			return endState{}, TxNoop, domain.ErrUnauthorized
		}
		if room.Status == domain.StatusFinished {
			return endState{}, TxNoop, domain.ErrRoomFinished
		}
		now := g.now()
		room.Status = domain.StatusFinished
		room.FinishedAt = &now
		return endState{leaderboard: leaderboardOf(room), finishedAt: now}, TxMutated, nil
	})
	if err != nil {
		return nil, err
	}

	g.broadcast(roomCode, domain.Event{
		Type:    domain.EventGameEnded,
		Payload: domain.GameEndedPayload{Leaderboard: state.leaderboard, FinishedAt: state.finishedAt},
	})
	return state.leaderboard, nil
}

// PauseGame and ResumeGame toggle playing ↔ paused, host only.
func (g *Gateway) PauseGame(ctx context.Context, connID, roomCode string) error {
	return g.setPaused(ctx, connID, roomCode, domain.StatusPlaying, domain.StatusPaused, domain.EventGamePaused)
}

func (g *Gateway) ResumeGame(ctx context.Context, connID, roomCode string) error {
	return g.setPaused(ctx, connID, roomCode, domain.StatusPaused, domain.StatusPlaying, domain.EventGameResumed)
}

func (g *Gateway) setPaused(ctx context.Context, connID, roomCode string, from, to domain.RoomStatus, eventType string) error {
	roomCode = domain.NormalizeRoomCode(roomCode)
	callerID := g.callerID(connID)

	_, err := RunRoomTx(ctx, g.store, roomCode, func(room *domain.Room) (struct{}, TxOutcome, error) {
		if callerID == "" || callerID != room.HostID {
			return struct{}{}, TxNoop, domain.ErrUnauthorized
		}
		if room.Status != from {
			return struct{}{}, TxNoop, domain.ErrInvalidTransition
		}
		room.Status = to
		return struct{}{}, TxMutated, nil
	})
	if err != nil {
		return err
	}
	g.broadcast(roomCode, domain.Event{Type: eventType, Payload: struct{}{}})
	return nil
}

// NextQuestion is the host-issued manual advance.
func (g *Gateway) NextQuestion(ctx context.Context, connID, roomCode string) error {
	roomCode = domain.NormalizeRoomCode(roomCode)
	result, err := g.advance.ManualAdvance(ctx, roomCode, g.callerID(connID))
	if err != nil {
		return err
	}
	g.broadcastQuestionChanged(roomCode, result)
	return nil
}

// AutoNextQuestion handles client-timer advance triggers. Debounced triggers
// return ignored=true without touching the room.
func (g *Gateway) AutoNextQuestion(ctx context.Context, roomCode string) (bool, error) {
	roomCode = domain.NormalizeRoomCode(roomCode)
	result, accepted, err := g.advance.AutoAdvance(ctx, roomCode)
	if err != nil {
		return false, err
	}
	if !accepted {
		return true, nil
	}
	g.broadcastQuestionChanged(roomCode, result)
	return false, nil
}

func (g *Gateway) broadcastQuestionChanged(roomCode string, result AdvanceResult) {
	g.broadcast(roomCode, domain.Event{
		Type: domain.EventQuestionChanged,
		Payload: domain.QuestionChangedPayload{
			QuestionIndex: result.QuestionIndex,
			IsFinished:    result.IsFinished,
		},
	})
}

// UpdateCharacter swaps a participant's display payload. Host connections
// no-op without a version bump: the host is structurally not a participant.
func (g *Gateway) UpdateCharacter(ctx context.Context, connID, roomCode string, character map[string]any) error {
	roomCode = domain.NormalizeRoomCode(roomCode)
	callerID := g.callerID(connID)

	view, err := RunRoomTx(ctx, g.store, roomCode, func(room *domain.Room) (*domain.RoomPublicView, TxOutcome, error) {
		if callerID != "" && callerID == room.HostID {
			return nil, TxNoop, nil
		}
		p := room.ParticipantByConnection(connID)
		if p == nil {
			return nil, TxNoop, domain.ErrParticipantNotFound
		}
		p.CharacterConfig = character
		v := room.PublicView()
		return &v, TxMutated, nil
	})
	if err != nil {
		return err
	}
	if view != nil {
		g.broadcast(roomCode, domain.Event{
			Type: domain.EventParticipantsUpdated,
			Payload: domain.ParticipantsUpdatedPayload{
				Participants: view.Participants,
				Count:        len(view.Participants),
			},
		})
	}
	return nil
}

// GetRoomData returns the public room and quiz views without a transaction:
// reads never bump the version.
func (g *Gateway) GetRoomData(ctx context.Context, roomCode string) (JoinResult, error) {
	roomCode = domain.NormalizeRoomCode(roomCode)
	room, _, err := g.store.Load(ctx, roomCode)
	if err != nil {
		return JoinResult{}, err
	}
	quiz, err := g.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Room: room.PublicView(), Questions: quiz.PublicView()}, nil
}

// GetLeaderboard returns the sorted scoreboard for a room.
func (g *Gateway) GetLeaderboard(ctx context.Context, roomCode string) ([]domain.LeaderboardEntry, error) {
	roomCode = domain.NormalizeRoomCode(roomCode)
	room, _, err := g.store.Load(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	return leaderboardOf(room), nil
}

// DeleteRoom removes the room entirely, host only, and forcibly detaches every
// connection subscribed to its code.
func (g *Gateway) DeleteRoom(ctx context.Context, connID, roomCode string) error {
	roomCode = domain.NormalizeRoomCode(roomCode)
	callerID := g.callerID(connID)

	room, _, err := g.store.Load(ctx, roomCode)
	if err != nil {
		return err
	}
	if callerID == "" || callerID != room.HostID {
		return domain.ErrUnauthorized
	}

	if err := g.store.Delete(ctx, roomCode); err != nil {
		return err
	}
	g.broadcast(roomCode, domain.Event{Type: domain.EventRoomDeleted, Payload: domain.RoomDeletedPayload{}})
	g.detachRoom(roomCode)
	return nil
}

func (g *Gateway) callerID(connID string) string {
	conn, ok := g.conn(connID)
	if !ok {
		return ""
	}
	return conn.identity.UserID
}

// leaderboardOf sorts participants by score descending; equal scores rank the
// earlier joiner first, then by name, so the order is deterministic.
func leaderboardOf(room *domain.Room) []domain.LeaderboardEntry {
	participants := make([]domain.Participant, len(room.Participants))
	copy(participants, room.Participants)

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Score != participants[j].Score {
			return participants[i].Score > participants[j].Score
		}
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].DisplayName < participants[j].DisplayName
	})

	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.LeaderboardEntry{DisplayName: p.DisplayName, Score: p.Score})
	}
	return entries
}
