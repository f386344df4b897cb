package puzzle

// ModeID names a rule variant.
type ModeID string

const (
	ModeClassic ModeID = "classic"
	ModeSuper   ModeID = "super"
	ModeSage    ModeID = "sage"
	ModeSingle  ModeID = "single"
	ModeSavant  ModeID = "savant"
)

// Scoring holds the per-mode score deltas. The check/pass values drive
// two-player adjudication; CorrectPiece and WrongPiece drive self-resolved
// single-player placements.
type Scoring struct {
	CheckCorrect         int     `json:"checkCorrect"`
	CheckerSuccess       int     `json:"checkerSuccess"`
	CheckerFail          int     `json:"checkerFail"`
	PassWrong            int     `json:"passWrong"`
	StreakMultiplier     float64 `json:"streakMultiplier"`
	StreakBonusThreshold int     `json:"streakBonusThreshold"`
	CorrectPiece         int     `json:"correctPiece"`
	WrongPiece           int     `json:"wrongPiece"`
}

// Features are the flags the engine branches on. TurnsPerRound and
// ChecksPerTurn are 1 in every active mode and exist for future variants.
type Features struct {
	TurnsPerRound int  `json:"turnsPerRound"`
	ChecksPerTurn int  `json:"checksPerTurn"`
	Multiplayer   bool `json:"multiplayer"`
}

// Mode bundles one rule variant. The engine reads features and scoring and
// never branches on the id itself.
type Mode struct {
	ID       ModeID   `json:"id"`
	Name     string   `json:"name"`
	Enabled  bool     `json:"enabled"`
	Features Features `json:"features"`
	Scoring  Scoring  `json:"scoring"`
}

var modeTable = map[ModeID]Mode{
	ModeClassic: {
		ID:       ModeClassic,
		Name:     "Classic",
		Enabled:  true,
		Features: Features{TurnsPerRound: 1, ChecksPerTurn: 1, Multiplayer: true},
		Scoring: Scoring{
			CheckCorrect:         10,
			CheckerSuccess:       5,
			CheckerFail:          -2,
			PassWrong:            -3,
			StreakMultiplier:     1,
			StreakBonusThreshold: 3,
			CorrectPiece:         10,
			WrongPiece:           -2,
		},
	},
	ModeSuper: {
		ID:       ModeSuper,
		Name:     "Super",
		Enabled:  true,
		Features: Features{TurnsPerRound: 1, ChecksPerTurn: 1, Multiplayer: true},
		Scoring: Scoring{
			CheckCorrect:         15,
			CheckerSuccess:       8,
			CheckerFail:          -3,
			PassWrong:            -5,
			StreakMultiplier:     1.5,
			StreakBonusThreshold: 3,
			CorrectPiece:         15,
			WrongPiece:           -3,
		},
	},
	ModeSage: {
		ID:       ModeSage,
		Name:     "Sage",
		Enabled:  true,
		Features: Features{TurnsPerRound: 1, ChecksPerTurn: 1, Multiplayer: true},
		Scoring: Scoring{
			CheckCorrect:         20,
			CheckerSuccess:       10,
			CheckerFail:          -5,
			PassWrong:            -8,
			StreakMultiplier:     2,
			StreakBonusThreshold: 2,
			CorrectPiece:         20,
			WrongPiece:           -5,
		},
	},
	ModeSingle: {
		ID:       ModeSingle,
		Name:     "Single Player",
		Enabled:  true,
		Features: Features{TurnsPerRound: 1, ChecksPerTurn: 1},
		Scoring: Scoring{
			StreakMultiplier:     1,
			StreakBonusThreshold: 3,
			CorrectPiece:         10,
			WrongPiece:           -2,
		},
	},
	// Savant stays registered but disabled until its rules are settled.
	ModeSavant: {
		ID:   ModeSavant,
		Name: "Savant",
	},
}

// LookupMode resolves a mode id, falling back to Classic for unknown or
// disabled modes.
func LookupMode(id ModeID) Mode {
	if m, ok := modeTable[id]; ok && m.Enabled {
		return m
	}
	return modeTable[ModeClassic]
}

// Modes lists the selectable modes in a stable order.
func Modes() []Mode {
	order := []ModeID{ModeClassic, ModeSuper, ModeSage, ModeSingle}
	out := make([]Mode, 0, len(order))
	for _, id := range order {
		out = append(out, modeTable[id])
	}
	return out
}
