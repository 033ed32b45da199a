package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"trivia-board-service/internal/adjudication"
	"trivia-board-service/internal/domain"
	"trivia-board-service/internal/ingest"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Get(gameID string) (*Session, bool)
	// Put stores session unless one already exists for its id, and returns the stored one.
	Put(session *Session) *Session
	Delete(gameID string)
	IdleSince(cutoff time.Time) []string
}

// GameStore persists game snapshots. Load of an unknown id returns domain.ErrGameNotFound.
type GameStore interface {
	Load(ctx context.Context, gameID string) (domain.GameState, error)
	Save(ctx context.Context, state domain.GameState) error
	Delete(ctx context.Context, gameID string) error
}

// Ingester turns uploaded text into questions.
type Ingester interface {
	Ingest(ctx context.Context, text string) (ingest.Result, error)
}

// GameService contains the game use cases. Every mutation is persisted and broadcast.
type GameService struct {
	sessions SessionRepository
	games    GameStore
	ingester Ingester
	cues     AudioCues
	now      func() time.Time
	sf       singleflight.Group
}

// NewGameService wires the service. A nil cues port forwards cues to subscribers.
func NewGameService(sessions SessionRepository, games GameStore, ingester Ingester, cues AudioCues) *GameService {
	if cues == nil {
		cues = NewSubscriberCues(sessions)
	}
	return &GameService{
		sessions: sessions,
		games:    games,
		ingester: ingester,
		cues:     cues,
		now:      time.Now,
	}
}

// SetClock is test-only for deterministic timestamps.
func (s *GameService) SetClock(now func() time.Time) {
	s.now = now
}

// View returns the current picture of a game, restoring it from the store if needed.
func (s *GameService) View(ctx context.Context, gameID string) (domain.GameView, error) {
	session, err := s.session(ctx, gameID)
	if err != nil {
		return domain.GameView{}, err
	}
	session.mu.RLock()
	defer session.mu.RUnlock()
	return session.viewLocked(), nil
}

// State returns a copy of the game snapshot.
func (s *GameService) State(ctx context.Context, gameID string) (domain.GameState, error) {
	view, err := s.View(ctx, gameID)
	if err != nil {
		return domain.GameState{}, err
	}
	return view.Game, nil
}

func (s *GameService) Board(ctx context.Context, gameID string) (domain.Board, error) {
	view, err := s.View(ctx, gameID)
	if err != nil {
		return domain.Board{}, err
	}
	return view.Board, nil
}

// Upload validates a question file. Only the latest upload of a game may load its
// questions; a slower, older one comes back marked Superseded and changes nothing.
func (s *GameService) Upload(ctx context.Context, gameID, filename, contentType, text string) (domain.UploadResult, error) {
	session, err := s.session(ctx, gameID)
	if err != nil {
		return domain.UploadResult{}, err
	}

	// every upload attempt supersedes earlier ones, even one rejected for its file type
	session.mu.Lock()
	phase := session.state.Phase
	if phase == domain.PhaseUpload {
		session.generation++
	}
	generation := session.generation
	session.mu.Unlock()

	if !isCSV(filename, contentType) {
		return domain.UploadResult{Generation: generation, Report: domain.ValidationReport{
			Message: "Invalid file type",
			Details: []string{"Please upload a CSV file."},
		}}, nil
	}
	if phase != domain.PhaseUpload {
		return domain.UploadResult{}, domain.ErrWrongPhase
	}

	res, err := s.ingester.Ingest(ctx, text)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("ingest upload: %w", err)
	}
	result := domain.UploadResult{Report: res.Report, Generation: generation}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.generation != generation || session.state.Phase != domain.PhaseUpload {
		result.Superseded = true
		return result, nil
	}
	if !res.Report.Accepted {
		return result, nil
	}

	session.state.Questions = res.Questions
	session.state.Categories = res.Categories
	session.state.Phase = domain.PhaseSetup
	s.commitLocked(ctx, session)
	return result, nil
}

// SetupTeams creates one team per name and starts play.
func (s *GameService) SetupTeams(ctx context.Context, gameID string, names []string) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		if len(session.state.Questions) == 0 {
			return domain.ErrNoQuestionsLoaded
		}
		if session.state.Phase == domain.PhasePlay {
			return domain.ErrWrongPhase
		}
		if len(names) == 0 {
			return domain.ErrNoTeams
		}
		teams := make([]domain.Team, 0, len(names))
		for _, name := range names {
			teams = append(teams, domain.Team{ID: uuid.NewString(), Name: name})
		}
		session.state.Teams = teams
		session.state.Phase = domain.PhasePlay
		s.cues.Play(gameID, domain.CueTheme)
		return nil
	})
}

// AddTeam appends a team during play. An empty name defaults to "Team N".
func (s *GameService) AddTeam(ctx context.Context, gameID, name string) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		if session.state.Phase != domain.PhasePlay {
			return domain.ErrWrongPhase
		}
		if session.round != nil {
			return domain.ErrQuestionInProgress
		}
		if name == "" {
			name = fmt.Sprintf("Team %d", len(session.state.Teams)+1)
		}
		session.state.Teams = append(session.state.Teams, domain.Team{ID: uuid.NewString(), Name: name})
		return nil
	})
}

// RenameTeam sets a team's name. Empty names are allowed.
func (s *GameService) RenameTeam(ctx context.Context, gameID, teamID, name string) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		i := session.state.FindTeam(teamID)
		if i < 0 {
			return domain.ErrTeamNotFound
		}
		session.state.Teams[i].Name = name
		return nil
	})
}

// RemoveTeam deletes a team. The roster is frozen while a question is open.
func (s *GameService) RemoveTeam(ctx context.Context, gameID, teamID string) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		if session.round != nil {
			return domain.ErrQuestionInProgress
		}
		i := session.state.FindTeam(teamID)
		if i < 0 {
			return domain.ErrTeamNotFound
		}
		session.state.Teams = append(session.state.Teams[:i], session.state.Teams[i+1:]...)
		return nil
	})
}

// AdjustScore applies a manual signed correction to a team's score.
func (s *GameService) AdjustScore(ctx context.Context, gameID, teamID string, delta int) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		i := session.state.FindTeam(teamID)
		if i < 0 {
			return domain.ErrTeamNotFound
		}
		session.state.Teams[i].Score += delta
		return nil
	})
}

func (s *GameService) SetTitle(ctx context.Context, gameID, title string) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		session.state.Title = title
		return nil
	})
}

func (s *GameService) UpdateSettings(ctx context.Context, gameID string, settings domain.Settings) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		session.state.Settings = settings
		if !settings.SoundEnabled {
			s.cues.Stop(gameID, domain.CueThink)
			s.cues.Stop(gameID, domain.CueTheme)
		}
		s.cues.SetEnabled(gameID, settings.SoundEnabled)
		return nil
	})
}

// Restart wipes the game back to an empty upload and deletes its snapshot.
func (s *GameService) Restart(ctx context.Context, gameID string) (domain.GameView, error) {
	session, err := s.session(ctx, gameID)
	if err != nil {
		return domain.GameView{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.round != nil {
		s.cues.Stop(gameID, domain.CueThink)
	}
	session.round = nil
	session.generation++
	session.state = domain.NewGameState(gameID)
	session.touchLocked()
	s.cues.SetEnabled(gameID, session.state.Settings.SoundEnabled)

	if err := s.games.Delete(ctx, gameID); err != nil {
		log.Printf("delete game %s: %v", gameID, err)
	}
	view := session.viewLocked()
	session.publish(domain.Update{View: &view})
	return view, nil
}

// SelectQuestion opens the board cell at (category, points).
func (s *GameService) SelectQuestion(ctx context.Context, gameID, category string, points int) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		if session.state.Phase != domain.PhasePlay {
			return domain.ErrWrongPhase
		}
		if session.round != nil {
			return domain.ErrQuestionInProgress
		}
		i := session.state.FindQuestion(category, points)
		if i < 0 {
			return domain.ErrQuestionNotFound
		}
		if session.state.Questions[i].Answered {
			return domain.ErrQuestionAnswered
		}
		session.round = adjudication.New(session.state.Questions[i], session.state.TeamIDs())
		markAnsweredLocked(session)
		s.cues.Play(gameID, domain.CueThink)
		return nil
	})
}

// ChooseTeam hands the open question to a team.
func (s *GameService) ChooseTeam(ctx context.Context, gameID, teamID string) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		if session.round == nil {
			return domain.ErrNoQuestionOpen
		}
		return session.round.SelectTeam(teamID)
	})
}

// Judge scores the current team's answer. A correct answer closes the question.
func (s *GameService) Judge(ctx context.Context, gameID string, correct bool) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		if session.round == nil {
			return domain.ErrNoQuestionOpen
		}
		outcome, err := session.round.Judge(correct)
		if err != nil {
			return err
		}
		if i := session.state.FindTeam(outcome.TeamID); i >= 0 {
			session.state.Teams[i].Score += outcome.Delta
		}
		markAnsweredLocked(session)

		if correct {
			s.cues.Play(gameID, domain.CueCorrect)
		} else {
			s.cues.Play(gameID, domain.CueIncorrect)
		}
		if outcome.State == adjudication.Scored {
			session.round = nil
			s.cues.Stop(gameID, domain.CueThink)
		}
		return nil
	})
}

// CloseQuestion returns to the board. A question closed before it was scored or
// revealed stays playable; deductions already applied stand.
func (s *GameService) CloseQuestion(ctx context.Context, gameID string) (domain.GameView, error) {
	return s.mutate(ctx, gameID, func(session *Session) error {
		if session.round == nil {
			return domain.ErrNoQuestionOpen
		}
		markAnsweredLocked(session)
		session.round = nil
		s.cues.Stop(gameID, domain.CueThink)
		return nil
	})
}

// Subscribe returns a channel that receives game updates, starting with the current view.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context, gameID string) (<-chan domain.Update, func(), error) {
	session, err := s.session(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Evict drops sessions idle since before cutoff. Their snapshots stay in the store.
func (s *GameService) Evict(cutoff time.Time) int {
	ids := s.sessions.IdleSince(cutoff)
	for _, id := range ids {
		if session, ok := s.sessions.Get(id); ok {
			session.closeSubscribers()
		}
		s.sessions.Delete(id)
	}
	return len(ids)
}

// RunReaper evicts idle sessions every interval until ctx is done.
func (s *GameService) RunReaper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(s.now().Add(-idle)); n > 0 {
				log.Printf("evicted %d idle games", n)
			}
		}
	}
}

func (s *GameService) mutate(ctx context.Context, gameID string, fn func(*Session) error) (domain.GameView, error) {
	session, err := s.session(ctx, gameID)
	if err != nil {
		return domain.GameView{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if err := fn(session); err != nil {
		return domain.GameView{}, err
	}
	return s.commitLocked(ctx, session), nil
}

// commitLocked stamps, persists and broadcasts the session state. Save failures are
// logged; the in-memory game carries on.
func (s *GameService) commitLocked(ctx context.Context, session *Session) domain.GameView {
	session.touchLocked()
	if err := s.games.Save(ctx, session.state.Clone()); err != nil {
		log.Printf("save game %s: %v", session.id, err)
	}
	view := session.viewLocked()
	session.publish(domain.Update{View: &view})
	return view
}

// session returns the live session for gameID, restoring it from the store on first use.
// Concurrent first uses share one load.
func (s *GameService) session(ctx context.Context, gameID string) (*Session, error) {
	if gameID == "" {
		return nil, domain.ErrGameNotFound
	}
	if session, ok := s.sessions.Get(gameID); ok {
		return session, nil
	}

	result, err, _ := s.sf.Do(gameID, func() (interface{}, error) {
		if session, ok := s.sessions.Get(gameID); ok {
			return session, nil
		}

		state, err := s.games.Load(ctx, gameID)
		switch {
		case errors.Is(err, domain.ErrGameNotFound):
			state = domain.NewGameState(gameID)
		case err != nil:
			return nil, fmt.Errorf("load game: %w", err)
		default:
			state.ID = gameID
			state.Phase = state.ResumePhase()
		}

		session := s.sessions.Put(NewSessionWithClock(state, s.now))
		session.mu.RLock()
		enabled := session.state.Settings.SoundEnabled
		session.mu.RUnlock()
		s.cues.SetEnabled(gameID, enabled)
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Session), nil
}

func markAnsweredLocked(session *Session) {
	if session.round == nil || !session.round.Answered() {
		return
	}
	q := session.round.Question()
	if i := session.state.FindQuestion(q.Category, q.Points); i >= 0 {
		session.state.Questions[i].Answered = true
	}
}

func isCSV(filename, contentType string) bool {
	if strings.HasSuffix(filename, ".csv") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/csv"
}
