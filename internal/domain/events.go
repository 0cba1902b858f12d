package domain

import "time"

// Event names broadcast to every connection in a room group.
const (
	EventParticipantsUpdated = "participantsUpdated"
	EventParticipantJoined   = "participantJoined"
	EventAnswerSubmitted     = "answerSubmitted"
	EventQuestionChanged     = "questionChanged"
	EventGameStarted         = "gameStarted"
	EventGamePaused          = "gamePaused"
	EventGameResumed         = "gameResumed"
	EventGameEnded           = "gameEnded"
	EventRoomDeleted         = "roomDeleted"
)

// Event is one outbound broadcast message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ParticipantsUpdatedPayload struct {
	Participants []ParticipantPublicView `json:"participants"`
	Count        int                     `json:"count"`
}

type ParticipantJoinedPayload struct {
	DisplayName string `json:"displayName"`
}

// AnswerSubmittedPayload carries only the aggregate count: individual answers
// never reach other participants before the reveal.
type AnswerSubmittedPayload struct {
	ParticipantName   string `json:"participantName"`
	AnsweredCount     int    `json:"answeredCount"`
	TotalParticipants int    `json:"totalParticipants"`
}

type QuestionChangedPayload struct {
	QuestionIndex int  `json:"questionIndex"`
	IsFinished    bool `json:"isFinished"`
}

type GameStartedPayload struct {
	StartedAt time.Time `json:"startedAt"`
}

type GameEndedPayload struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	FinishedAt  time.Time          `json:"finishedAt"`
}

type RoomDeletedPayload struct{}
