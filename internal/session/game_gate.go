package session

// GameGate decides the in-game screen once Gate has handed off.
func GameGate(s Snapshot, f Flags) Decision {
	game, ok := s.Game.Get()
	if !ok {
		if f.UnmanagedGame {
			return decide(ScreenBypass, "unmanaged game")
		}
		return decide(ScreenLoading, "waiting for game")
	}

	if !game.Started() {
		return decide(ScreenLobby, "game not started")
	}

	if game.HasEnded {
		player, _ := s.Player.Get()
		if !player.Ended {
			return decide(ScreenLoading, "game ended, waiting for player end")
		}
		return decide(ScreenExit, "game ended")
	}

	if f.UnmanagedGame {
		return decide(ScreenReady, "unmanaged game")
	}
	ready, why := readiness(s)
	if ready {
		return decide(ScreenReady, why)
	}
	return decide(ScreenLoading, why)
}
