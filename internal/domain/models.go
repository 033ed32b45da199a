package domain

import "time"

// PointsPerTier is the value step between consecutive board rows.
const PointsPerTier = 200

// Question is one cell of the board, identified by (Category, Points).
type Question struct {
	Category string `json:"category"`
	Points   int    `json:"points"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	ImageURL string `json:"imageUrl,omitempty"`
	Answered bool   `json:"isAnswered"`
}

// Team is a scoring unit. Scores are signed and unbounded.
type Team struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Settings controls board presentation and sound.
type Settings struct {
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	FontFamily      string `json:"fontFamily"`
	SoundEnabled    bool   `json:"soundEnabled"`
}

// Phase is the coarse stage of a game.
type Phase string

const (
	PhaseUpload Phase = "upload"
	PhaseSetup  Phase = "setup"
	PhasePlay   Phase = "play"
)

// GameState is the persisted snapshot of one game.
type GameState struct {
	ID         string     `json:"id"`
	Teams      []Team     `json:"teams"`
	Questions  []Question `json:"questions"`
	Categories []string   `json:"categories"`
	Title      string     `json:"title"`
	Settings   Settings   `json:"settings"`
	Phase      Phase      `json:"phase"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// DefaultTitle is used for new and restarted games.
const DefaultTitle = "Trivia Night"

// DefaultSettings mirrors the stock board colours.
func DefaultSettings() Settings {
	return Settings{
		BackgroundColor: "#1A365D",
		TextColor:       "#EDF2EF",
		FontFamily:      "Inter",
		SoundEnabled:    true,
	}
}

// NewGameState returns an empty game waiting for an upload.
func NewGameState(id string) GameState {
	return GameState{
		ID:         id,
		Teams:      []Team{},
		Questions:  []Question{},
		Categories: []string{},
		Title:      DefaultTitle,
		Settings:   DefaultSettings(),
		Phase:      PhaseUpload,
	}
}

// ResumePhase picks the phase a restored snapshot should continue from.
func (g GameState) ResumePhase() Phase {
	switch {
	case len(g.Questions) > 0 && len(g.Teams) > 0:
		return PhasePlay
	case len(g.Questions) > 0:
		return PhaseSetup
	default:
		return PhaseUpload
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (g GameState) Clone() GameState {
	out := g
	out.Teams = append([]Team(nil), g.Teams...)
	out.Questions = append([]Question(nil), g.Questions...)
	out.Categories = append([]string(nil), g.Categories...)
	return out
}

// FindQuestion returns the index of the question at (category, points), or -1.
func (g GameState) FindQuestion(category string, points int) int {
	for i := range g.Questions {
		if g.Questions[i].Category == category && g.Questions[i].Points == points {
			return i
		}
	}
	return -1
}

// FindTeam returns the index of the team with id, or -1.
func (g GameState) FindTeam(id string) int {
	for i := range g.Teams {
		if g.Teams[i].ID == id {
			return i
		}
	}
	return -1
}

// TeamIDs lists team ids in roster order.
func (g GameState) TeamIDs() []string {
	ids := make([]string, 0, len(g.Teams))
	for _, t := range g.Teams {
		ids = append(ids, t.ID)
	}
	return ids
}

// CategoriesOf projects questions onto their distinct categories in first-seen order.
func CategoriesOf(questions []Question) []string {
	seen := make(map[string]struct{}, len(questions))
	categories := make([]string, 0)
	for _, q := range questions {
		if _, ok := seen[q.Category]; ok {
			continue
		}
		seen[q.Category] = struct{}{}
		categories = append(categories, q.Category)
	}
	return categories
}

// ValidationReport is the outcome of one CSV ingestion.
type ValidationReport struct {
	Accepted      bool     `json:"accepted"`
	Message       string   `json:"message"`
	Details       []string `json:"details,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	QuestionCount int      `json:"questionCount,omitempty"`
	CategoryCount int      `json:"categoryCount,omitempty"`
}

// UploadResult is returned to the upload surface.
type UploadResult struct {
	Report     ValidationReport `json:"report"`
	Generation uint64           `json:"generation"`
	Superseded bool             `json:"superseded"`
}

// Cue names a sound the presentation layer may play.
type Cue string

const (
	CueTheme     Cue = "theme"
	CueThink     Cue = "think"
	CueCorrect   Cue = "correct"
	CueIncorrect Cue = "incorrect"
)

// CueEvent is delivered to subscribers when the game wants a sound started or stopped.
type CueEvent struct {
	Cue     Cue  `json:"cue"`
	Playing bool `json:"playing"`
	Loop    bool `json:"loop,omitempty"`
}

// Update is what subscribers of a game receive: a fresh view, or a cue.
type Update struct {
	View *GameView `json:"view,omitempty"`
	Cue  *CueEvent `json:"cue,omitempty"`
}
