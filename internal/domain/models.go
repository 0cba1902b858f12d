package domain

import (
	"strings"
	"time"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusPaused   RoomStatus = "paused"
	StatusFinished RoomStatus = "finished"
)

// AdvanceMode selects who moves a room to the next question.
type AdvanceMode string

const (
	ModeAuto   AdvanceMode = "auto"
	ModeManual AdvanceMode = "manual"
)

// RoomSettings are fixed at creation and read-only afterwards.
type RoomSettings struct {
	TimePerQuestionMs   int  `json:"timePerQuestionMs"`
	LateJoinAllowed     bool `json:"lateJoinAllowed"`
	LeaderboardInterval int  `json:"leaderboardInterval"`
}

// Answer records a single scored submission for one question.
type Answer struct {
	QuestionIndex  int       `json:"questionIndex"`
	SubmittedValue string    `json:"submittedValue"`
	IsCorrect      bool      `json:"isCorrect"`
	SubmittedAt    time.Time `json:"submittedAt"`
	ResponseTimeMs int       `json:"responseTimeMs"`
}

// Participant is a non-host player embedded in a Room.
type Participant struct {
	IdentityKey     string         `json:"identityKey"`
	ConnectionID    string         `json:"connectionId,omitempty"`
	DisplayName     string         `json:"displayName"`
	IsGuest         bool           `json:"isGuest"`
	Score           int            `json:"score"`
	Answers         []Answer       `json:"answers"`
	JoinedAt        time.Time      `json:"joinedAt"`
	CharacterConfig map[string]any `json:"characterConfig,omitempty"`
}

// IsOnline reports whether a live connection is attached.
func (p *Participant) IsOnline() bool {
	return p.ConnectionID != ""
}

// HasAnswered reports whether the participant already submitted for index.
func (p *Participant) HasAnswered(index int) bool {
	for _, a := range p.Answers {
		if a.QuestionIndex == index {
			return true
		}
	}
	return false
}

// Room is one live quiz session, the only shared mutable document in the system.
type Room struct {
	Code                 string        `json:"code"`
	QuizID               string        `json:"quizId"`
	HostID               string        `json:"hostId"`
	Mode                 AdvanceMode   `json:"mode"`
	Settings             RoomSettings  `json:"settings"`
	Participants         []Participant `json:"participants"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	Status               RoomStatus    `json:"status"`
	CreatedAt            time.Time     `json:"createdAt"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	FinishedAt           *time.Time    `json:"finishedAt,omitempty"`
}

// NormalizeRoomCode makes room codes case-insensitive.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParticipantByConnection returns the participant attached to connID, if any.
func (r *Room) ParticipantByConnection(connID string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].ConnectionID == connID {
			return &r.Participants[i]
		}
	}
	return nil
}

// ParticipantPublicView is the broadcast-safe projection of a participant.
type ParticipantPublicView struct {
	IdentityKey     string         `json:"identityKey"`
	DisplayName     string         `json:"displayName"`
	IsGuest         bool           `json:"isGuest"`
	Score           int            `json:"score"`
	IsOnline        bool           `json:"isOnline"`
	JoinedAt        time.Time      `json:"joinedAt"`
	CharacterConfig map[string]any `json:"characterConfig,omitempty"`
}

// RoomPublicView is the room projection sent to clients. Answer contents and
// connection ids never leave the server.
type RoomPublicView struct {
	Code                 string                  `json:"code"`
	QuizID               string                  `json:"quizId"`
	HostID               string                  `json:"hostId"`
	Mode                 AdvanceMode             `json:"mode"`
	Settings             RoomSettings            `json:"settings"`
	Participants         []ParticipantPublicView `json:"participants"`
	CurrentQuestionIndex int                     `json:"currentQuestionIndex"`
	Status               RoomStatus              `json:"status"`
	StartedAt            *time.Time              `json:"startedAt,omitempty"`
	FinishedAt           *time.Time              `json:"finishedAt,omitempty"`
}

// PublicView projects the room for broadcast.
func (r *Room) PublicView() RoomPublicView {
	participants := make([]ParticipantPublicView, 0, len(r.Participants))
	for i := range r.Participants {
		p := &r.Participants[i]
		participants = append(participants, ParticipantPublicView{
			IdentityKey:     p.IdentityKey,
			DisplayName:     p.DisplayName,
			IsGuest:         p.IsGuest,
			Score:           p.Score,
			IsOnline:        p.IsOnline(),
			JoinedAt:        p.JoinedAt,
			CharacterConfig: p.CharacterConfig,
		})
	}
	return RoomPublicView{
		Code:                 r.Code,
		QuizID:               r.QuizID,
		HostID:               r.HostID,
		Mode:                 r.Mode,
		Settings:             r.Settings,
		Participants:         participants,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		Status:               r.Status,
		StartedAt:            r.StartedAt,
		FinishedAt:           r.FinishedAt,
	}
}

// LeaderboardEntry is one row of the final scoreboard.
type LeaderboardEntry struct {
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Question models a quiz question with its canonical answer key.
type Question struct {
	Prompt    string   `json:"prompt"`
	Options   []string `json:"options"`
	AnswerKey string   `json:"answerKey"`
}

// PublicQuestion is the question projection without the answer key.
type PublicQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Quiz is an ordered list of questions plus ownership metadata.
type Quiz struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Questions []Question `json:"questions"`
}

// IsOwnedBy reports whether userID may host the quiz. Quizzes without an
// owner are hostable by anyone.
func (q *Quiz) IsOwnedBy(userID string) bool {
	return q.OwnerID == "" || q.OwnerID == userID
}

// PublicView strips answer keys before the quiz is sent to joining clients.
func (q *Quiz) PublicView() []PublicQuestion {
	questions := make([]PublicQuestion, 0, len(q.Questions))
	for _, question := range q.Questions {
		questions = append(questions, PublicQuestion{
			Prompt:  question.Prompt,
			Options: question.Options,
		})
	}
	return questions
}

// Identity is the resolved caller identity. The zero value means anonymous.
type Identity struct {
	UserID string
	Email  string
}

// Anonymous reports whether no authenticated user backs the identity.
func (id Identity) Anonymous() bool {
	return id.UserID == ""
}

// IdentityKeyFor derives the reconciliation key: user id when authenticated,
// display name for guests.
func IdentityKeyFor(id Identity, displayName string) string {
	if !id.Anonymous() {
		return id.UserID
	}
	return displayName
}
