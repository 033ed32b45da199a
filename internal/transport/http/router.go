package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"trivia-board-service/internal/app"
	"trivia-board-service/internal/buildinfo"
	"trivia-board-service/internal/domain"
)

// NewRouter exposes the game service over REST and WebSocket routes. QR codes link to
// publicURL, or to the requesting host when it is blank.
func NewRouter(service *app.GameService, publicURL string) http.Handler {
	api := NewAPIHandler(service)
	ws := NewWSHandler(service)
	qr := NewQRHandler(publicURL)

	mux := httprouter.New()
	mux.GET("/healthz", serveHealthCheck)
	mux.GET("/version", serveVersion)
	mux.GET("/games/:gameid", api.ServeView)
	mux.GET("/games/:gameid/board", api.ServeBoard)
	mux.POST("/games/:gameid/upload", api.ServeUpload)
	mux.GET("/games/:gameid/qr", qr.ServeQR)
	mux.GET("/games/:gameid/ws", ws.ServeWS)
	return mux
}

func securityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

func serveHealthCheck(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	securityHeaders(w)
	_, _ = w.Write([]byte("ok"))
}

func serveVersion(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	securityHeaders(w)
	_, _ = w.Write([]byte("trivia-board-service v" + buildinfo.Version + "\n"))
}

type errorPayload struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	securityHeaders(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorPayload{Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrGameNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrTeamNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWrongPhase),
		errors.Is(err, domain.ErrQuestionInProgress),
		errors.Is(err, domain.ErrQuestionAnswered),
		errors.Is(err, domain.ErrNoQuestionOpen),
		errors.Is(err, domain.ErrTeamUnavailable),
		errors.Is(err, domain.ErrNoCurrentAttempt),
		errors.Is(err, domain.ErrAttemptInProgress),
		errors.Is(err, domain.ErrRoundOver),
		errors.Is(err, domain.ErrNoQuestionsLoaded),
		errors.Is(err, domain.ErrNoTeams):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
