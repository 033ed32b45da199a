package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	qrDefaultSize = 320
	qrMinSize     = 128
	qrMaxSize     = 1024
)

// QRHandler renders join codes that open a game's board page.
type QRHandler struct {
	publicURL string
}

// NewQRHandler links codes to publicURL. A blank publicURL is derived from each request.
func NewQRHandler(publicURL string) *QRHandler {
	return &QRHandler{publicURL: strings.TrimSpace(publicURL)}
}

// ServeQR writes a PNG QR code for the game. ?size= picks the edge length in pixels.
func (h *QRHandler) ServeQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	size := qrDefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < qrMinSize || n > qrMaxSize {
			http.Error(w, "size must be between 128 and 1024", http.StatusBadRequest)
			return
		}
		size = n
	}

	link, err := h.boardLink(r, gameID)
	if err != nil {
		http.Error(w, "invalid public url", http.StatusInternalServerError)
		return
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	securityHeaders(w)
	_, _ = w.Write(png)
}

// boardLink is the board page with the game selected through the "game" query parameter.
func (h *QRHandler) boardLink(r *http.Request, gameID string) (string, error) {
	base := h.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host + "/"
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("game", gameID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
