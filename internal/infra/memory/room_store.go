package memory

import (
	"context"
	"sync"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

var _ app.RoomRepository = (*RoomStore)(nil)

// RoomStore keeps the leaderboard rooms of one process. A room exists while it
// has at least one subscriber.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*app.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*app.Room),
	}
}

// Subscribe joins or creates the room under the same lock that removes empty
// rooms, so a new subscriber never lands in a room that was just dropped.
func (s *RoomStore) Subscribe(competitionID string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[competitionID]
	if !ok {
		room = app.NewRoom(competitionID)
		s.rooms[competitionID] = room
	}
	ch, unsubscribe := room.Subscribe(initial)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			unsubscribe()
			if room.IsEmpty() && s.rooms[competitionID] == room {
				delete(s.rooms, competitionID)
			}
		})
	}
}

// Publish pushes lb into the local room of its competition, if any.
func (s *RoomStore) Publish(_ context.Context, lb domain.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[lb.CompetitionID]; ok {
		room.Publish(lb)
	}
	return nil
}

// Active reports whether competitionID has a live room.
func (s *RoomStore) Active(competitionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[competitionID]
	return ok
}
