package app

import (
	"time"

	"quiz-room-service/internal/domain"
)

// ConnLiveness reports whether a connection id is still attached to the
// gateway. The check is advisory: it only prunes obviously dead records.
type ConnLiveness func(connID string) bool

// Reconcile converges the participant set when connID claims to represent
// identityKey in the room. Clients reconnect constantly (tab refresh, network
// blip), so the merge must be idempotent and must never duplicate a player or
// erase their progress. Runs inside a room transaction.
func Reconcile(room *domain.Room, identityKey, displayName, connID string, isGuest bool, character map[string]any, now time.Time, alive ConnLiveness) {
	// Prune records pointing at connections that are verifiably gone. A record
	// holding the reconciling connection's own id is kept: a relay can race its
	// own stale entry and must not drop it.
	kept := make([]domain.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		if p.ConnectionID != "" && p.ConnectionID != connID && !alive(p.ConnectionID) {
			continue
		}
		kept = append(kept, p)
	}

	// Concurrent duplicate joins can have left several records for the same
	// identity. The one with the highest score survives, ties go to the latest
	// joiner.
	survivor := -1
	for i := range kept {
		if kept[i].IdentityKey != identityKey {
			continue
		}
		if survivor == -1 {
			survivor = i
			continue
		}
		if kept[i].Score > kept[survivor].Score ||
			(kept[i].Score == kept[survivor].Score && kept[i].JoinedAt.After(kept[survivor].JoinedAt)) {
			survivor = i
		}
	}

	if survivor == -1 {
		room.Participants = append(kept, domain.Participant{
			IdentityKey:     identityKey,
			ConnectionID:    connID,
			DisplayName:     displayName,
			IsGuest:         isGuest,
			JoinedAt:        now,
			CharacterConfig: character,
		})
		return
	}

	merged := make([]domain.Participant, 0, len(kept))
	for i := range kept {
		if kept[i].IdentityKey == identityKey && i != survivor {
			continue
		}
		if i == survivor {
			kept[i].ConnectionID = connID
			kept[i].DisplayName = displayName
			kept[i].IsGuest = isGuest
			if character != nil {
				kept[i].CharacterConfig = character
			}
		}
		merged = append(merged, kept[i])
	}
	room.Participants = merged
}
