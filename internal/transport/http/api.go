package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"trivia-board-service/internal/app"
)

const maxUploadBytes = 5 << 20

// APIHandler serves the read-only game views and the upload surface.
type APIHandler struct {
	service *app.GameService
}

func NewAPIHandler(service *app.GameService) *APIHandler {
	return &APIHandler{service: service}
}

func (h *APIHandler) ServeView(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	view, err := h.service.View(r.Context(), ps.ByName("gameid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) ServeBoard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	board, err := h.service.Board(r.Context(), ps.ByName("gameid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ServeUpload accepts a multipart "file" field, or a raw body named by ?filename=.
// Accepted reports answer 200, rejected ones 422 and superseded ones 409.
func (h *APIHandler) ServeUpload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	filename, contentType, text, err := readUpload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: err.Error()})
		return
	}

	result, err := h.service.Upload(r.Context(), ps.ByName("gameid"), filename, contentType, text)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	switch {
	case result.Superseded:
		status = http.StatusConflict
	case !result.Report.Accepted:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func readUpload(r *http.Request) (filename, contentType, text string, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", "", "", err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", "", "", err
		}
		return header.Filename, header.Header.Get("Content-Type"), string(data), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", "", "", err
	}
	return r.URL.Query().Get("filename"), r.Header.Get("Content-Type"), string(data), nil
}
