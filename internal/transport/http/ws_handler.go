package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"trivia-board-service/internal/app"
	"trivia-board-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type uploadPayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type teamsPayload struct {
	Names []string `json:"names"`
}

type teamPayload struct {
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
	Delta  int    `json:"delta"`
}

type titlePayload struct {
	Title string `json:"title"`
}

type questionPayload struct {
	Category string `json:"category"`
	Points   int    `json:"points"`
}

type judgePayload struct {
	Correct bool `json:"correct"`
}

// ServeWS upgrades the request and lets the client drive one game. Every client of a
// game receives state and cue updates; upload reports and errors go to the sender only.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	updates, cancel, err := h.service.Subscribe(ctx, gameID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var uploads sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// unblocks the read loop
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if !enqueue(send, closeSignals, writerDone, updateMessage(update)) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		// uploads may wait on image probes; run them aside so a newer upload can supersede
		if inbound.Type == "upload" {
			uploads.Add(1)
			go func(raw json.RawMessage) {
				defer uploads.Done()
				enqueue(send, closeSignals, writerDone, h.upload(ctx, gameID, raw))
			}(inbound.Payload)
			continue
		}

		if err := h.dispatch(ctx, gameID, inbound); err != nil {
			msg := outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			if !enqueue(send, closeSignals, writerDone, msg) {
				break
			}
		}
	}

	close(closeSignals)
	uploads.Wait()
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer. It gives up once the connection is closing or the
// writer has stopped, so a dead client never blocks the handler.
func enqueue(send chan<- outboundMessage[any], closing, writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-closing:
		return false
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) upload(ctx context.Context, gameID string, raw json.RawMessage) outboundMessage[any] {
	var payload uploadPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid upload payload"}}
	}
	result, err := h.service.Upload(ctx, gameID, payload.Filename, payload.ContentType, payload.Content)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}
	return outboundMessage[any]{Type: "uploadReport", Payload: result}
}

// dispatch applies one command. The resulting state reaches the client through its subscription.
func (h *WSHandler) dispatch(ctx context.Context, gameID string, inbound inboundMessage) error {
	var err error
	switch inbound.Type {
	case "setupTeams":
		var p teamsPayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.SetupTeams(ctx, gameID, p.Names)
		}
	case "addTeam":
		var p teamPayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.AddTeam(ctx, gameID, p.Name)
		}
	case "renameTeam":
		var p teamPayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.RenameTeam(ctx, gameID, p.TeamID, p.Name)
		}
	case "removeTeam":
		var p teamPayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.RemoveTeam(ctx, gameID, p.TeamID)
		}
	case "adjustScore":
		var p teamPayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.AdjustScore(ctx, gameID, p.TeamID, p.Delta)
		}
	case "setTitle":
		var p titlePayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.SetTitle(ctx, gameID, p.Title)
		}
	case "updateSettings":
		var p domain.Settings
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.UpdateSettings(ctx, gameID, p)
		}
	case "restart":
		_, err = h.service.Restart(ctx, gameID)
	case "selectQuestion":
		var p questionPayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.SelectQuestion(ctx, gameID, p.Category, p.Points)
		}
	case "chooseTeam":
		var p teamPayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.ChooseTeam(ctx, gameID, p.TeamID)
		}
	case "judge":
		var p judgePayload
		if err = decode(inbound, &p); err == nil {
			_, err = h.service.Judge(ctx, gameID, p.Correct)
		}
	case "closeQuestion":
		_, err = h.service.CloseQuestion(ctx, gameID)
	default:
		err = fmt.Errorf("unsupported message type %q", inbound.Type)
	}
	return err
}

func decode(inbound inboundMessage, target any) error {
	if len(inbound.Payload) == 0 {
		return fmt.Errorf("missing %s payload", inbound.Type)
	}
	if err := json.Unmarshal(inbound.Payload, target); err != nil {
		return fmt.Errorf("invalid %s payload", inbound.Type)
	}
	return nil
}

func updateMessage(update domain.Update) outboundMessage[any] {
	if update.Cue != nil {
		return outboundMessage[any]{Type: "cue", Payload: update.Cue}
	}
	return outboundMessage[any]{Type: "state", Payload: update.View}
}
