package app

import (
	"context"
	"sort"
	"sync"

	"riddle-league/internal/domain"
)

// RankLeaderboard orders entries by points (desc), then display name, then user
// id, and assigns competition ranks: tied points share a rank and the next rank
// skips (1, 1, 3).
func RankLeaderboard(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		if entries[i].DisplayName != entries[j].DisplayName {
			return entries[i].DisplayName < entries[j].DisplayName
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		if i > 0 && entries[i].Points == entries[i-1].Points {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	return entries
}

// RoomRepository delivers live standings to subscribers on this process.
type RoomRepository interface {
	// Subscribe joins the competition's room, creating it when needed, as one
	// step with respect to the removal of empty rooms. The caller must invoke
	// cancel to release the subscription.
	Subscribe(competitionID string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func())
	// Publish hands lb to the subscribers of lb.CompetitionID. Distributed
	// implementations also reach subscribers on other instances.
	Publish(ctx context.Context, lb domain.Leaderboard) error
}

// Room fans leaderboard updates of one competition out to its subscribers.
type Room struct {
	id          string
	mu          sync.Mutex
	latest      *domain.Leaderboard
	subscribers map[chan domain.Leaderboard]struct{}
}

func NewRoom(competitionID string) *Room {
	return &Room{
		id:          competitionID,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

func (r *Room) ID() string { return r.id }

// Publish stores lb as the latest standings and pushes it to every subscriber.
// Standings older than the latest ones are ignored.
func (r *Room) Publish(lb domain.Leaderboard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest != nil && lb.UpdatedAt.Before(r.latest.UpdatedAt) {
		return
	}
	r.latest = &lb
	for ch := range r.subscribers {
		select {
		case ch <- lb:
		default:
			// Slow reader: replace its stale update with the newest one.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

// Subscribe returns a channel primed with initial. The caller must invoke
// cancel to release it.
func (r *Room) Subscribe(initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	if r.latest != nil && r.latest.UpdatedAt.After(initial.UpdatedAt) {
		initial = *r.latest
	}
	ch <- initial
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// IsEmpty reports whether nobody is listening.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers) == 0
}
