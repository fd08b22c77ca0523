package session

// Connection is the connectivity state reported by the sync layer.
type Connection struct {
	Transport   bool // backend reachable
	Participant bool // this participant's live channel is open
	Resolving   bool // identity creation in flight
}

// Globals is the experiment-wide configuration snapshot.
type Globals struct {
	ExperimentOpen bool
}

// Player is the participant's persistent record.
type Player struct {
	ID         string
	Identifier string
	Ended      bool
	GameID     string
	// URLParams is nil until captured. A captured empty query is a non-nil
	// empty map.
	URLParams map[string]string
	GameRef   string
	RoundRef  string
	StageRef  string
}

// Placed reports whether the player has been assigned into a game, round
// and stage.
func (p Player) Placed() bool {
	return p.GameRef != "" && p.RoundRef != "" && p.StageRef != ""
}

// Treatment carries the game's configured parameters.
type Treatment struct {
	// PlayerCount is nil when the treatment does not declare a headcount.
	PlayerCount *int
}

// Game is the game the participant is assigned to.
type Game struct {
	ID        string
	Status    string
	HasEnded  bool
	Treatment Treatment
}

// Started reports whether the game has left the lobby.
func (g Game) Started() bool { return g.Status != "" }

type Round struct{ ID string }

type Stage struct{ ID string }

// Flags are the deployment switches that relax the gates.
type Flags struct {
	UnmanagedGame           bool
	UnmanagedAssignment     bool
	DisableConsent          bool
	DisableNoGames          bool
	DisableURLParamsCapture bool
}

// Snapshot is one consistent view of every input the gates read.
type Snapshot struct {
	Conn      Connection
	Globals   Field[Globals]
	HasPlayer bool
	Player    Field[Player]
	Consented bool
	Game      Field[Game]
	Round     Field[Round]
	Stage     Field[Stage]
	Players   Field[[]Player]
}
