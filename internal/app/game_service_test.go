package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"trivia-board-service/internal/app"
	"trivia-board-service/internal/domain"
	"trivia-board-service/internal/infra/memory"
	"trivia-board-service/internal/ingest"
)

const sampleCSV = "Math,Science\n" +
	"What is 2+2?,What is H2O?\n" +
	"4,Water\n" +
	"none,none\n" +
	"What is 3x3?,What planet is known as the Red Planet?\n" +
	"9,Mars\n" +
	"none,none\n"

func TestUploadSetupAndPlay(t *testing.T) {
	ctx := context.Background()
	service, _, cues := newTestService()

	result, err := service.Upload(ctx, "g1", "board.csv", "", sampleCSV)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !result.Report.Accepted || result.Superseded {
		t.Fatalf("expected accepted upload, got %+v", result)
	}

	state, _ := service.State(ctx, "g1")
	if state.Phase != domain.PhaseSetup || len(state.Questions) != 4 {
		t.Fatalf("expected setup with 4 questions, got %s/%d", state.Phase, len(state.Questions))
	}

	view, err := service.SetupTeams(ctx, "g1", []string{"Team 1", "Team 2"})
	if err != nil {
		t.Fatalf("setup teams: %v", err)
	}
	if view.Game.Phase != domain.PhasePlay || len(view.Game.Teams) != 2 {
		t.Fatalf("expected play with 2 teams, got %+v", view.Game)
	}
	if view.Game.Teams[0].ID == view.Game.Teams[1].ID {
		t.Fatalf("expected unique team ids")
	}
	if !cues.played(domain.CueTheme) {
		t.Fatalf("expected theme cue")
	}
}

func TestAllTeamsWrongRevealsAnswer(t *testing.T) {
	ctx := context.Background()
	service, _, cues := newTestService()
	teams := startGame(t, service, "g1", "A", "B", "C")

	view, err := service.SelectQuestion(ctx, "g1", "Science", 400)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if view.Round == nil || view.Round.Answer != "" || len(view.Round.Available) != 3 {
		t.Fatalf("unexpected round %+v", view.Round)
	}

	for _, team := range teams {
		if _, err := service.ChooseTeam(ctx, "g1", team.ID); err != nil {
			t.Fatalf("choose %s: %v", team.Name, err)
		}
		if view, err = service.Judge(ctx, "g1", false); err != nil {
			t.Fatalf("judge %s: %v", team.Name, err)
		}
	}

	if view.Round == nil || view.Round.State != "answerRevealed" || view.Round.Answer != "Mars" {
		t.Fatalf("expected revealed answer, got %+v", view.Round)
	}
	sum := 0
	for _, team := range view.Game.Teams {
		sum += team.Score
	}
	if sum != -400*3 {
		t.Fatalf("expected total delta -1200, got %d", sum)
	}
	q := view.Game.Questions[view.Game.FindQuestion("Science", 400)]
	if !q.Answered {
		t.Fatalf("expected question answered")
	}
	if !cues.played(domain.CueIncorrect) {
		t.Fatalf("expected incorrect cue")
	}

	view, err = service.CloseQuestion(ctx, "g1")
	if err != nil || view.Round != nil {
		t.Fatalf("close: %v %+v", err, view.Round)
	}
	if !cues.stopped(domain.CueThink) {
		t.Fatalf("expected think music stopped")
	}
}

func TestCorrectAnswerClosesRound(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	teams := startGame(t, service, "g1", "A", "B")

	_, _ = service.SelectQuestion(ctx, "g1", "Math", 200)
	_, _ = service.ChooseTeam(ctx, "g1", teams[0].ID)
	_, _ = service.Judge(ctx, "g1", false)
	_, _ = service.ChooseTeam(ctx, "g1", teams[1].ID)
	view, err := service.Judge(ctx, "g1", true)
	if err != nil {
		t.Fatalf("judge: %v", err)
	}

	if view.Round != nil {
		t.Fatalf("expected round closed after correct answer")
	}
	if view.Game.Teams[0].Score != -200 || view.Game.Teams[1].Score != 200 {
		t.Fatalf("unexpected scores %+v", view.Game.Teams)
	}
	if _, err := service.Judge(ctx, "g1", true); !errors.Is(err, domain.ErrNoQuestionOpen) {
		t.Fatalf("expected no question open, got %v", err)
	}
	if _, err := service.SelectQuestion(ctx, "g1", "Math", 200); !errors.Is(err, domain.ErrQuestionAnswered) {
		t.Fatalf("expected answered question rejected, got %v", err)
	}
}

func TestCloseEarlyLeavesQuestionPlayable(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	teams := startGame(t, service, "g1", "A", "B")

	_, _ = service.SelectQuestion(ctx, "g1", "Math", 400)
	_, _ = service.ChooseTeam(ctx, "g1", teams[0].ID)
	_, _ = service.Judge(ctx, "g1", false)
	view, err := service.CloseQuestion(ctx, "g1")
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if view.Game.Questions[view.Game.FindQuestion("Math", 400)].Answered {
		t.Fatalf("expected question still playable")
	}
	if view.Game.Teams[0].Score != -400 {
		t.Fatalf("expected deduction to stand, got %d", view.Game.Teams[0].Score)
	}
	if _, err := service.SelectQuestion(ctx, "g1", "Math", 400); err != nil {
		t.Fatalf("expected reopen, got %v", err)
	}
}

func TestRosterFrozenDuringQuestion(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	teams := startGame(t, service, "g1", "A", "B")

	_, _ = service.SelectQuestion(ctx, "g1", "Math", 200)
	if _, err := service.RemoveTeam(ctx, "g1", teams[0].ID); !errors.Is(err, domain.ErrQuestionInProgress) {
		t.Fatalf("expected remove rejected, got %v", err)
	}
	if _, err := service.AddTeam(ctx, "g1", ""); !errors.Is(err, domain.ErrQuestionInProgress) {
		t.Fatalf("expected add rejected, got %v", err)
	}
	if _, err := service.RenameTeam(ctx, "g1", teams[0].ID, ""); err != nil {
		t.Fatalf("rename should be allowed: %v", err)
	}
	if _, err := service.AdjustScore(ctx, "g1", teams[1].ID, 100); err != nil {
		t.Fatalf("adjust should be allowed: %v", err)
	}

	_, _ = service.CloseQuestion(ctx, "g1")
	view, err := service.AddTeam(ctx, "g1", "")
	if err != nil {
		t.Fatalf("add team: %v", err)
	}
	if got := view.Game.Teams[2].Name; got != "Team 3" {
		t.Fatalf("expected default name Team 3, got %q", got)
	}
	if view.Game.Teams[0].Name != "" || view.Game.Teams[1].Score != 100 {
		t.Fatalf("unexpected teams %+v", view.Game.Teams)
	}
	view, err = service.RemoveTeam(ctx, "g1", teams[0].ID)
	if err != nil || len(view.Game.Teams) != 2 {
		t.Fatalf("remove: %v %+v", err, view.Game.Teams)
	}
}

func TestPhaseGuards(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	if _, err := service.SetupTeams(ctx, "g1", []string{"A"}); !errors.Is(err, domain.ErrNoQuestionsLoaded) {
		t.Fatalf("expected no questions loaded, got %v", err)
	}
	if _, err := service.SelectQuestion(ctx, "g1", "Math", 200); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected wrong phase, got %v", err)
	}
	if _, err := service.Upload(ctx, "g1", "board.csv", "", sampleCSV); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := service.SetupTeams(ctx, "g1", nil); !errors.Is(err, domain.ErrNoTeams) {
		t.Fatalf("expected no teams, got %v", err)
	}
	if _, err := service.Upload(ctx, "g1", "board.csv", "", sampleCSV); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected upload rejected outside upload phase, got %v", err)
	}
}

func TestUploadRejectsWrongFileType(t *testing.T) {
	service, _, _ := newTestService()
	result, err := service.Upload(context.Background(), "g1", "board.xlsx", "application/vnd.ms-excel", sampleCSV)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Report.Accepted || result.Report.Message != "Invalid file type" {
		t.Fatalf("unexpected report %+v", result.Report)
	}

	result, _ = service.Upload(context.Background(), "g1", "export", "text/csv; charset=utf-8", sampleCSV)
	if !result.Report.Accepted {
		t.Fatalf("expected text/csv content type accepted, got %+v", result.Report)
	}
}

func TestSupersededUploadIsDiscarded(t *testing.T) {
	ctx := context.Background()
	gate := newGatedIngester()
	sessions := memory.NewSessionStore()
	service := app.NewGameService(sessions, memory.NewGameStore(), gate, nil)

	slow := strings.Replace(sampleCSV, "Math", "Slow", 1)
	done := make(chan domain.UploadResult, 1)
	go func() {
		res, err := service.Upload(ctx, "g1", "slow.csv", "", slow)
		if err != nil {
			t.Errorf("slow upload: %v", err)
		}
		done <- res
	}()
	<-gate.started

	fast, err := service.Upload(ctx, "g1", "fast.csv", "", sampleCSV)
	if err != nil {
		t.Fatalf("fast upload: %v", err)
	}
	close(gate.release)
	stale := <-done

	if fast.Superseded || !stale.Superseded {
		t.Fatalf("expected only the older upload superseded: fast=%+v stale=%+v", fast, stale)
	}
	if stale.Generation >= fast.Generation {
		t.Fatalf("expected increasing generations, got %d then %d", stale.Generation, fast.Generation)
	}
	state, _ := service.State(ctx, "g1")
	if state.Categories[0] != "Math" {
		t.Fatalf("stale upload must not replace questions, got %v", state.Categories)
	}
}

func TestWrongFileTypeSupersedesPendingUpload(t *testing.T) {
	ctx := context.Background()
	gate := newGatedIngester()
	service := app.NewGameService(memory.NewSessionStore(), memory.NewGameStore(), gate, nil)

	done := make(chan domain.UploadResult, 1)
	go func() {
		res, err := service.Upload(ctx, "g1", "board.csv", "", sampleCSV)
		if err != nil {
			t.Errorf("pending upload: %v", err)
		}
		done <- res
	}()
	<-gate.started

	wrong, err := service.Upload(ctx, "g1", "notes.txt", "text/plain", "hello")
	if err != nil {
		t.Fatalf("wrong type upload: %v", err)
	}
	if wrong.Report.Accepted || wrong.Report.Message != "Invalid file type" {
		t.Fatalf("expected invalid file type report, got %+v", wrong.Report)
	}
	close(gate.release)
	stale := <-done

	if !stale.Superseded {
		t.Fatalf("expected pending upload superseded, got %+v", stale)
	}
	state, _ := service.State(ctx, "g1")
	if state.Phase != domain.PhaseUpload || len(state.Questions) != 0 {
		t.Fatalf("expected no questions loaded, got %s/%d", state.Phase, len(state.Questions))
	}
}

func TestResumeFromSnapshot(t *testing.T) {
	ctx := context.Background()
	games := memory.NewGameStore()
	service := app.NewGameService(memory.NewSessionStore(), games, ingest.New(nil), nil)

	if _, err := service.Upload(ctx, "g1", "board.csv", "", sampleCSV); err != nil {
		t.Fatalf("upload: %v", err)
	}
	restarted := app.NewGameService(memory.NewSessionStore(), games, ingest.New(nil), nil)
	state, _ := restarted.State(ctx, "g1")
	if state.Phase != domain.PhaseSetup {
		t.Fatalf("expected resume at setup, got %s", state.Phase)
	}

	if _, err := service.SetupTeams(ctx, "g1", []string{"A"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	restarted = app.NewGameService(memory.NewSessionStore(), games, ingest.New(nil), nil)
	state, _ = restarted.State(ctx, "g1")
	if state.Phase != domain.PhasePlay || len(state.Teams) != 1 {
		t.Fatalf("expected resume in play, got %s with %d teams", state.Phase, len(state.Teams))
	}
}

func TestRestartClearsGame(t *testing.T) {
	ctx := context.Background()
	service, games, _ := newTestService()
	startGame(t, service, "g1", "A")
	_, _ = service.SetTitle(ctx, "g1", "Friday")

	view, err := service.Restart(ctx, "g1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if view.Game.Phase != domain.PhaseUpload || len(view.Game.Questions) != 0 || view.Game.Title != domain.DefaultTitle {
		t.Fatalf("expected fresh game, got %+v", view.Game)
	}
	if _, err := games.Load(ctx, "g1"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected snapshot deleted, got %v", err)
	}
}

func TestSaveFailureDoesNotBlockPlay(t *testing.T) {
	ctx := context.Background()
	service := app.NewGameService(memory.NewSessionStore(), failingStore{}, ingest.New(nil), nil)

	result, err := service.Upload(ctx, "g1", "board.csv", "", sampleCSV)
	if err != nil || !result.Report.Accepted {
		t.Fatalf("expected upload to succeed despite store, got %v %+v", err, result.Report)
	}
	if _, err := service.SetupTeams(ctx, "g1", []string{"A"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
}

func TestSubscribeReceivesUpdatesAndCues(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore()
	service := app.NewGameService(sessions, memory.NewGameStore(), ingest.New(nil), nil)

	ch, cancel, err := service.Subscribe(ctx, "g1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch // initial view

	if _, err := service.Upload(ctx, "g1", "board.csv", "", sampleCSV); err != nil {
		t.Fatalf("upload: %v", err)
	}
	update := <-ch
	if update.View == nil || update.View.Game.Phase != domain.PhaseSetup {
		t.Fatalf("expected setup view, got %+v", update)
	}

	_, _ = service.SetupTeams(ctx, "g1", []string{"A"})
	update = <-ch
	if update.Cue == nil || update.Cue.Cue != domain.CueTheme || !update.Cue.Playing {
		t.Fatalf("expected theme cue, got %+v", update)
	}
	<-ch // play view

	settings := domain.DefaultSettings()
	settings.SoundEnabled = false
	_, _ = service.UpdateSettings(ctx, "g1", settings)
	drain(ch)

	_, _ = service.SelectQuestion(ctx, "g1", "Math", 200)
	update = <-ch
	if update.Cue != nil {
		t.Fatalf("expected no cue while sound disabled, got %+v", update.Cue)
	}
}

func TestEvictIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sessions := memory.NewSessionStore()
	service := app.NewGameService(sessions, memory.NewGameStore(), ingest.New(nil), nil)
	service.SetClock(func() time.Time { return now })

	if _, err := service.View(ctx, "idle"); err != nil {
		t.Fatalf("view: %v", err)
	}
	_, cancel, _ := service.Subscribe(ctx, "watched")
	defer cancel()

	now = now.Add(3 * time.Hour)
	if n := service.Evict(now.Add(-2 * time.Hour)); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if _, ok := sessions.Get("idle"); ok {
		t.Fatalf("expected idle session evicted")
	}
	if _, ok := sessions.Get("watched"); !ok {
		t.Fatalf("expected watched session kept")
	}
}

func newTestService() (*app.GameService, *memory.GameStore, *recordingCues) {
	games := memory.NewGameStore()
	cues := &recordingCues{}
	return app.NewGameService(memory.NewSessionStore(), games, ingest.New(nil), cues), games, cues
}

func startGame(t *testing.T, service *app.GameService, gameID string, names ...string) []domain.Team {
	t.Helper()
	ctx := context.Background()
	if _, err := service.Upload(ctx, gameID, "board.csv", "", sampleCSV); err != nil {
		t.Fatalf("upload: %v", err)
	}
	view, err := service.SetupTeams(ctx, gameID, names)
	if err != nil {
		t.Fatalf("setup teams: %v", err)
	}
	return view.Game.Teams
}

func drain(ch <-chan domain.Update) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type recordingCues struct {
	mu     sync.Mutex
	events []domain.CueEvent
}

func (c *recordingCues) Play(_ string, cue domain.Cue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, domain.CueEvent{Cue: cue, Playing: true})
}

func (c *recordingCues) Stop(_ string, cue domain.Cue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, domain.CueEvent{Cue: cue})
}

func (c *recordingCues) SetEnabled(string, bool) {}

func (c *recordingCues) played(cue domain.Cue) bool { return c.has(cue, true) }

func (c *recordingCues) stopped(cue domain.Cue) bool { return c.has(cue, false) }

func (c *recordingCues) has(cue domain.Cue, playing bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Cue == cue && e.Playing == playing {
			return true
		}
	}
	return false
}

// gatedIngester holds the first ingestion until release is closed.
type gatedIngester struct {
	inner   *ingest.Ingester
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGatedIngester() *gatedIngester {
	return &gatedIngester{
		inner:   ingest.New(nil),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedIngester) Ingest(ctx context.Context, text string) (ingest.Result, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-g.release
	}
	return g.inner.Ingest(ctx, text)
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (domain.GameState, error) {
	return domain.GameState{}, domain.ErrGameNotFound
}

func (failingStore) Save(context.Context, domain.GameState) error {
	return errors.New("disk full")
}

func (failingStore) Delete(context.Context, string) error { return nil }
