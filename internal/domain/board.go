package domain

// BoardCell is one slot of the tier x category grid. Empty cells have Present == false.
type BoardCell struct {
	Category string `json:"category"`
	Points   int    `json:"points"`
	Present  bool   `json:"present"`
	Answered bool   `json:"answered"`
	HasImage bool   `json:"hasImage"`
}

// BoardRow is one tier of the board.
type BoardRow struct {
	Points int         `json:"points"`
	Cells  []BoardCell `json:"cells"`
}

// Board is what the board surface renders.
type Board struct {
	Categories []string   `json:"categories"`
	Rows       []BoardRow `json:"rows"`
}

// BuildBoard lays questions out by tier (rows) and category (columns).
// The row count is derived from the highest point value present.
func BuildBoard(categories []string, questions []Question) Board {
	maxPoints := 0
	index := make(map[string]map[int]Question, len(categories))
	for _, q := range questions {
		if q.Points > maxPoints {
			maxPoints = q.Points
		}
		byPoints, ok := index[q.Category]
		if !ok {
			byPoints = make(map[int]Question)
			index[q.Category] = byPoints
		}
		byPoints[q.Points] = q
	}

	tiers := maxPoints / PointsPerTier
	board := Board{
		Categories: append([]string(nil), categories...),
		Rows:       make([]BoardRow, 0, tiers),
	}
	for tier := 1; tier <= tiers; tier++ {
		points := tier * PointsPerTier
		row := BoardRow{Points: points, Cells: make([]BoardCell, 0, len(categories))}
		for _, category := range categories {
			cell := BoardCell{Category: category, Points: points}
			if q, ok := index[category][points]; ok {
				cell.Present = true
				cell.Answered = q.Answered
				cell.HasImage = q.ImageURL != ""
			}
			row.Cells = append(row.Cells, cell)
		}
		board.Rows = append(board.Rows, row)
	}
	return board
}

// RoundView describes the question currently open on the board.
type RoundView struct {
	Category  string   `json:"category"`
	Points    int      `json:"points"`
	Question  string   `json:"question"`
	ImageURL  string   `json:"imageUrl,omitempty"`
	Answer    string   `json:"answer,omitempty"`
	State     string   `json:"state"`
	Current   string   `json:"currentTeamId,omitempty"`
	Available []Team   `json:"availableTeams"`
	Attempted []string `json:"attemptedTeamIds"`
}

// GameView is the full picture sent to clients.
type GameView struct {
	Game  GameState  `json:"game"`
	Board Board      `json:"board"`
	Round *RoundView `json:"round,omitempty"`
}
