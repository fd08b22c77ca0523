package session

// Screen names the single view a participant is shown.
type Screen string

const (
	ScreenConnecting     Screen = "connecting"
	ScreenLoading        Screen = "loading"
	ScreenNoGames        Screen = "no_games"
	ScreenConsent        Screen = "consent"
	ScreenCreateIdentity Screen = "create_identity"
	ScreenBypass         Screen = "bypass"
	ScreenGame           Screen = "game" // hand-off to the intro steps and GameGate
	ScreenLobby          Screen = "lobby"
	ScreenReady          Screen = "ready"
	ScreenExit           Screen = "exit" // exit steps, then Finished
	ScreenIntroStep      Screen = "intro_step"
	ScreenExitStep       Screen = "exit_step"
	ScreenFinished       Screen = "finished"
)

// Action is the callback a screen exposes to the participant, named by the
// API operation that fulfils it.
type Action string

const (
	ActionNone         Action = ""
	ActionConsent      Action = "consent"
	ActionCreatePlayer Action = "create_player"
	ActionAdvanceStep  Action = "advance_step"
)

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Screen Screen
	Reason string
	Action Action
	// Resolving accompanies CreateIdentity so the form can show progress.
	Resolving bool
	// CaptureURLParams asks the caller to persist the current query string
	// onto the player. It never changes Screen.
	CaptureURLParams bool
}

func decide(s Screen, reason string) Decision {
	return Decision{Screen: s, Reason: reason}
}
