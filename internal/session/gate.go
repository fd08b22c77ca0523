package session

// Gate decides the outer screen for a snapshot. Guards are checked in
// priority order and the first match wins. Gate never writes; when the
// player's URL parameters still need capturing it sets
// Decision.CaptureURLParams and leaves the write to the caller.
func Gate(s Snapshot, f Flags) Decision {
	if !s.Conn.Transport {
		return decide(ScreenConnecting, "transport not connected")
	}
	if s.Conn.Resolving {
		return decide(ScreenConnecting, "identity resolution in progress")
	}

	player, havePlayer := s.Player.Get()

	// A finished participant never falls back into the funnel, whatever
	// else the snapshot says.
	if havePlayer && player.Ended {
		return decide(ScreenExit, "player ended")
	}

	globals, haveGlobals := s.Globals.Get()
	if !haveGlobals {
		return decide(ScreenLoading, "globals not loaded")
	}
	if s.HasPlayer {
		switch {
		case !s.Conn.Participant:
			return decide(ScreenLoading, "participant channel not connected")
		case !havePlayer:
			return decide(ScreenLoading, "player not loaded")
		case !s.Game.Loaded():
			return decide(ScreenLoading, "game not loaded")
		}
	}

	if !f.DisableNoGames && !globals.ExperimentOpen && (!havePlayer || player.GameID == "") {
		return decide(ScreenNoGames, "experiment closed")
	}

	if !f.DisableConsent && !s.Consented {
		d := decide(ScreenConsent, "consent required")
		d.Action = ActionConsent
		return d
	}

	if !s.HasPlayer {
		d := decide(ScreenCreateIdentity, "no player")
		d.Action = ActionCreatePlayer
		d.Resolving = s.Conn.Resolving
		return d
	}

	if !havePlayer || (!f.UnmanagedGame && !s.Game.Present()) {
		return decide(ScreenLoading, "waiting for game")
	}

	capture := !f.DisableURLParamsCapture && player.URLParams == nil

	var d Decision
	game, haveGame := s.Game.Get()
	switch {
	case f.UnmanagedAssignment:
		d = decide(ScreenBypass, "unmanaged assignment")
	case haveGame && game.HasEnded && !player.Ended:
		d = decide(ScreenLoading, "game ended, waiting for player end")
	case haveGame && game.HasEnded:
		d = decide(ScreenExit, "game ended")
	default:
		d = decide(ScreenGame, "assigned")
	}
	d.CaptureURLParams = capture
	return d
}
