package domain

import "errors"

var (
	// ErrGameNotFound is returned by stores when no snapshot exists for a game id.
	ErrGameNotFound = errors.New("game not found")
	// ErrQuestionNotFound indicates no question exists at the requested board cell.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionAnswered indicates the requested board cell was already played.
	ErrQuestionAnswered = errors.New("question already answered")
	// ErrQuestionInProgress is returned when an action needs the board to be idle.
	ErrQuestionInProgress = errors.New("a question is in progress")
	// ErrNoQuestionOpen is returned for round actions with no open question.
	ErrNoQuestionOpen = errors.New("no question is open")
	// ErrTeamNotFound indicates an unknown team id.
	ErrTeamNotFound = errors.New("team not found")
	// ErrTeamUnavailable indicates the team already attempted the open question.
	ErrTeamUnavailable = errors.New("team is not available for this question")
	// ErrNoCurrentAttempt is returned when judging before a team was picked.
	ErrNoCurrentAttempt = errors.New("no team is currently answering")
	// ErrAttemptInProgress is returned when picking a team while another is being judged.
	ErrAttemptInProgress = errors.New("a team is already answering")
	// ErrRoundOver is returned for actions on a finished round.
	ErrRoundOver = errors.New("round is over")
	// ErrNoQuestionsLoaded is returned when teams are set up before an upload.
	ErrNoQuestionsLoaded = errors.New("no questions loaded")
	// ErrNoTeams is returned when team setup is attempted with an empty roster.
	ErrNoTeams = errors.New("at least one team is required")
	// ErrWrongPhase is returned when an action does not fit the game's phase.
	ErrWrongPhase = errors.New("action not allowed in current phase")
)
