package session

import "fmt"

// Ready reports whether every participant assigned to the current game has
// been placed into its game, round and stage. It is recomputed from the
// snapshot on every call.
func Ready(s Snapshot) bool {
	ok, _ := readiness(s)
	return ok
}

func readiness(s Snapshot) (bool, string) {
	player, ok := s.Player.Get()
	if !ok {
		return false, "player not loaded"
	}
	players, ok := s.Players.Get()
	if !ok {
		return false, "players not loaded"
	}
	if !s.Stage.Present() {
		return false, "stage not loaded"
	}
	if !s.Round.Present() {
		return false, "round not loaded"
	}
	game, ok := s.Game.Get()
	if !ok {
		return false, "game not loaded"
	}
	if !player.Placed() {
		return false, "player not placed"
	}

	// An undeclared headcount waives the size check. Placement of every
	// member is still required, and the set must not be empty.
	if n := game.Treatment.PlayerCount; n != nil && len(players) < *n {
		return false, fmt.Sprintf("waiting for players (%d/%d)", len(players), *n)
	}
	if len(players) == 0 {
		return false, "no players"
	}

	for _, p := range players {
		if !p.Placed() {
			return false, fmt.Sprintf("player %s not placed", p.ID)
		}
	}
	return true, "all players placed"
}
