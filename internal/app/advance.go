package app

import (
	"context"
	"sync"
	"time"

	"quiz-room-service/internal/domain"
)

// AdvanceLocker dedups near-simultaneous auto-advance triggers for one room.
// Several clients fire their local timers at almost the same instant; only the
// first acquisition within the debounce window may run the advance transaction.
type AdvanceLocker interface {
	TryAcquire(ctx context.Context, roomCode string) (bool, error)
}

// MemoryAdvanceLock is the in-process AdvanceLocker. Lock state is owned by
// the instance and dies with it.
type MemoryAdvanceLock struct {
	debounce time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]time.Time
}

func NewMemoryAdvanceLock(debounce, cooldown time.Duration) *MemoryAdvanceLock {
	return &MemoryAdvanceLock{
		debounce: debounce,
		cooldown: cooldown,
		now:      time.Now,
		locks:    make(map[string]time.Time),
	}
}

// TryAcquire accepts unless another acquisition for the room is younger than
// the debounce window. Entries linger for the cool-down before being purged,
// absorbing trailing duplicate triggers.
func (l *MemoryAdvanceLock) TryAcquire(_ context.Context, roomCode string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for code, at := range l.locks {
		if now.Sub(at) >= l.cooldown {
			delete(l.locks, code)
		}
	}

	if at, ok := l.locks[roomCode]; ok && now.Sub(at) < l.debounce {
		return false, nil
	}
	l.locks[roomCode] = now
	return true, nil
}

// AdvanceResult reports where an advance transaction left the room.
type AdvanceResult struct {
	QuestionIndex int
	IsFinished    bool
}

// AdvanceCoordinator runs the question-advance state machine. Two paths exist,
// host-issued manual advance and client-timer auto advance, and neither may
// race the other or itself.
type AdvanceCoordinator struct {
	store   RoomStore
	quizzes QuizRepository
	locks   AdvanceLocker
	now     func() time.Time
}

func NewAdvanceCoordinator(store RoomStore, quizzes QuizRepository, locks AdvanceLocker) *AdvanceCoordinator {
	return &AdvanceCoordinator{
		store:   store,
		quizzes: quizzes,
		locks:   locks,
		now:     time.Now,
	}
}

// ManualAdvance moves the room to the next question on behalf of the host.
// Non-host callers are rejected without mutating the room.
func (c *AdvanceCoordinator) ManualAdvance(ctx context.Context, roomCode, callerID string) (AdvanceResult, error) {
	return c.advance(ctx, roomCode, func(room *domain.Room) error {
		if callerID == "" || callerID != room.HostID {
			return domain.ErrUnauthorized
		}
		return nil
	})
}

// AutoAdvance handles a client-timer trigger. A debounced trigger reports
// accepted=false and no error: the caller cannot distinguish "someone else
// already advanced" from "this was redundant", so it is acknowledged as
// success-but-ignored.
func (c *AdvanceCoordinator) AutoAdvance(ctx context.Context, roomCode string) (AdvanceResult, bool, error) {
	ok, err := c.locks.TryAcquire(ctx, roomCode)
	if err != nil {
		return AdvanceResult{}, false, err
	}
	if !ok {
		return AdvanceResult{}, false, nil
	}

	result, err := c.advance(ctx, roomCode, func(*domain.Room) error { return nil })
	if err != nil {
		return AdvanceResult{}, false, err
	}
	return result, true, nil
}

// advance increments the question cursor, transitioning to finished in the
// same transaction when the cursor reaches the question count.
func (c *AdvanceCoordinator) advance(ctx context.Context, roomCode string, authorize func(*domain.Room) error) (AdvanceResult, error) {
	quiz, questionCount := (*domain.Quiz)(nil), 0

	return RunRoomTx(ctx, c.store, roomCode, func(room *domain.Room) (AdvanceResult, TxOutcome, error) {
		if err := authorize(room); err != nil {
			return AdvanceResult{}, TxNoop, err
		}
		if room.Status == domain.StatusFinished {
			return AdvanceResult{}, TxNoop, domain.ErrRoomFinished
		}
		if room.Status != domain.StatusPlaying {
			return AdvanceResult{}, TxNoop, domain.ErrInvalidTransition
		}

		if quiz == nil {
			q, err := c.quizzes.GetQuiz(ctx, room.QuizID)
			if err != nil {
				return AdvanceResult{}, TxNoop, err
			}
			quiz = &q
			questionCount = len(q.Questions)
		}

		room.CurrentQuestionIndex++
		result := AdvanceResult{QuestionIndex: room.CurrentQuestionIndex}
		if room.CurrentQuestionIndex >= questionCount {
			room.CurrentQuestionIndex = questionCount
			room.Status = domain.StatusFinished
			finishedAt := c.now()
			room.FinishedAt = &finishedAt
			result.QuestionIndex = questionCount
			result.IsFinished = true
		}
		return result, TxMutated, nil
	})
}
