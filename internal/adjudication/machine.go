// Package adjudication sequences one open question: pick a team, judge its answer,
// and either score the round or move on until every team has tried.
package adjudication

import "trivia-board-service/internal/domain"

// State is the stage of an open question.
type State int

const (
	// AwaitingTeamSelection means no team is answering and at least one is still available.
	AwaitingTeamSelection State = iota
	// AwaitingJudgment means the current team gave an answer that has not been judged yet.
	AwaitingJudgment
	// AnswerRevealed means every team answered wrong (or none existed) and the answer is shown.
	AnswerRevealed
	// Scored means a correct answer closed the round.
	Scored
)

func (s State) String() string {
	switch s {
	case AwaitingTeamSelection:
		return "awaitingTeamSelection"
	case AwaitingJudgment:
		return "awaitingJudgment"
	case AnswerRevealed:
		return "answerRevealed"
	case Scored:
		return "scored"
	default:
		return "unknown"
	}
}

// Outcome reports the effect of one judgment. The caller applies Delta to TeamID's score.
type Outcome struct {
	TeamID   string
	Delta    int
	State    State
	Answered bool
}

// Machine holds the state of one open question. It is not safe for concurrent use;
// the owning session serializes access.
type Machine struct {
	question  domain.Question
	teams     []string
	attempted []string
	tried     map[string]struct{}
	current   string
	state     State
	answered  bool
}

// New opens question for the given roster. With no teams the answer is revealed at once.
func New(question domain.Question, teamIDs []string) *Machine {
	m := &Machine{
		question: question,
		teams:    append([]string(nil), teamIDs...),
		tried:    make(map[string]struct{}, len(teamIDs)),
		state:    AwaitingTeamSelection,
	}
	m.settle()
	return m
}

func (m *Machine) Question() domain.Question { return m.question }

func (m *Machine) State() State { return m.state }

// Current is the team being judged, or "" outside AwaitingJudgment.
func (m *Machine) Current() string { return m.current }

// Answered reports whether the question must now be marked answered on the board.
func (m *Machine) Answered() bool { return m.answered }

// Done reports whether no further scoring can happen.
func (m *Machine) Done() bool {
	return m.state == AnswerRevealed || m.state == Scored
}

// Attempted lists teams that answered wrong, in the order they tried.
func (m *Machine) Attempted() []string {
	return append([]string(nil), m.attempted...)
}

// Available lists teams that have not tried yet, in roster order.
func (m *Machine) Available() []string {
	out := make([]string, 0, len(m.teams))
	for _, id := range m.teams {
		if _, ok := m.tried[id]; !ok && id != m.current {
			out = append(out, id)
		}
	}
	return out
}

// SelectTeam hands the question to teamID.
func (m *Machine) SelectTeam(teamID string) error {
	if m.Done() {
		return domain.ErrRoundOver
	}
	if m.state == AwaitingJudgment {
		return domain.ErrAttemptInProgress
	}
	if !m.member(teamID) {
		return domain.ErrTeamNotFound
	}
	if _, ok := m.tried[teamID]; ok {
		return domain.ErrTeamUnavailable
	}
	m.current = teamID
	m.state = AwaitingJudgment
	return nil
}

// Judge scores the current team. A correct answer ends the round; a wrong one
// deducts the points and excludes the team from this question.
func (m *Machine) Judge(correct bool) (Outcome, error) {
	if m.Done() {
		return Outcome{}, domain.ErrRoundOver
	}
	if m.state != AwaitingJudgment {
		return Outcome{}, domain.ErrNoCurrentAttempt
	}

	team := m.current
	m.current = ""
	if correct {
		m.state = Scored
		m.answered = true
		return Outcome{TeamID: team, Delta: m.question.Points, State: m.state, Answered: true}, nil
	}

	m.tried[team] = struct{}{}
	m.attempted = append(m.attempted, team)
	m.state = AwaitingTeamSelection
	m.settle()
	return Outcome{TeamID: team, Delta: -m.question.Points, State: m.state, Answered: m.answered}, nil
}

// settle reveals the answer once nobody is left to try.
func (m *Machine) settle() {
	if m.state == AwaitingTeamSelection && len(m.Available()) == 0 {
		m.state = AnswerRevealed
		m.answered = true
	}
}

func (m *Machine) member(teamID string) bool {
	for _, id := range m.teams {
		if id == teamID {
			return true
		}
	}
	return false
}
