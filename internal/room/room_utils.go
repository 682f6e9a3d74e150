package room

import (
	"ctchen222/tictactoe-solo/internal/player"
)

// AddPlayer adds a player to the room.
func (r *Room) AddPlayer(p *player.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Players[p.ID] = p
}

// RemovePlayer removes a player and returns how many remain.
func (r *Room) RemovePlayer(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Players, id)
	return len(r.Players)
}

// PlayerCount returns the number of connected players.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Players)
}

// CloseAll closes every player connection. Their read pumps then unregister them.
func (r *Room) CloseAll() {
	for _, p := range r.players() {
		p.Conn.Close()
	}
}

func (r *Room) players() []*player.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]*player.Player, 0, len(r.Players))
	for _, p := range r.Players {
		list = append(list, p)
	}
	return list
}
