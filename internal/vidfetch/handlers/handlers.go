package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vidfetch/vidfetch/internal/common/requestid"
	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
	"github.com/vidfetch/vidfetch/internal/vidfetch/playback"
	"github.com/vidfetch/vidfetch/internal/vidfetch/scheduling"
)

// Response is the envelope every JSON endpoint answers with. On submission
// File carries the job id, which is what the clients expect.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

// Queue is the scheduling surface the HTTP API needs.
type Queue interface {
	Submit(request domain.JobRequest) (string, error)
	Snapshot() []domain.JobInfo
	Cancel(id string) error
	ClearFinished() int
}

// Artifacts lists finished downloads, newest first.
type Artifacts interface {
	List() ([]string, error)
}

// Pairing is the player pairing surface.
type Pairing interface {
	RequestChallenge(ctx context.Context, playerURL string) (string, error)
	VerifyCode(ctx context.Context, playerURL string, code string) error
	Forward(ctx context.Context, playerURL string, query url.Values) error
	Status(playerURL string) playback.Status
	Statuses() []playback.Status
	Register(playerURL string)
}

type API struct {
	queue     Queue
	artifacts Artifacts
	pairing   Pairing
	log       *log.Entry
}

func NewAPI(queue Queue, artifacts Artifacts, pairing Pairing) *API {
	return &API{
		queue:     queue,
		artifacts: artifacts,
		pairing:   pairing,
		log:       log.WithField("service", "api"),
	}
}

// Register installs every API route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/url", a.submit)
	mux.HandleFunc("/queue", a.queueStatus)
	mux.HandleFunc("/queue/clear", a.clearQueue)
	mux.HandleFunc("/cancel/", a.cancel)
	mux.HandleFunc("/list", a.list)
	mux.HandleFunc("/vlc/code", a.pairingChallenge)
	mux.HandleFunc("/vlc/verify-code", a.pairingVerify)
	mux.HandleFunc("/vlc/status", a.pairingStatus)
	mux.HandleFunc("/vlc/play", a.pairingPlay)
	mux.HandleFunc("/vlc/config", a.pairingConfig)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request domain.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	id, err := a.queue.Submit(request)
	switch {
	case err == nil:
	case errors.Is(err, scheduling.ErrQueueFull), errors.Is(err, scheduling.ErrSchedulerStopped):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	default:
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.log.WithFields(log.Fields{
		"requestId":  requestid.FromContextOrMissing(r.Context()),
		"downloadId": id,
		"url":        request.URL,
	}).Info("Submission accepted")
	writeSuccess(w, "Download queued", id)
}

func (a *API) queueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]domain.JobInfo{"queue": a.queue.Snapshot()})
}

func (a *API) clearQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	removed := a.queue.ClearFinished()
	writeSuccess(w, fmt.Sprintf("Removed %d finished jobs", removed), "")
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/cancel/")
	if id == "" {
		writeError(w, "Missing download id", http.StatusBadRequest)
		return
	}

	err := a.queue.Cancel(id)
	switch {
	case err == nil:
		writeSuccess(w, "Cancellation requested", id)
	case errors.Is(err, scheduling.ErrJobNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduling.ErrJobFinished):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	files, err := a.artifacts.List()
	if err != nil {
		a.log.WithError(err).Error("Listing artifacts failed")
		writeError(w, "Could not list artifacts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, files)
}

func (a *API) pairingChallenge(w http.ResponseWriter, r *http.Request) {
	playerURL := r.URL.Query().Get("vlc")
	if playerURL == "" {
		writeError(w, "Missing vlc parameter", http.StatusBadRequest)
		return
	}
	challenge, err := a.pairing.RequestChallenge(r.Context(), playerURL)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeSuccess(w, "Challenge received", challenge)
}

func (a *API) pairingVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerURL := r.URL.Query().Get("vlc")
	if playerURL == "" {
		writeError(w, "Missing vlc parameter", http.StatusBadRequest)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if body.Code == "" {
		writeError(w, "Missing code", http.StatusBadRequest)
		return
	}

	err := a.pairing.VerifyCode(r.Context(), playerURL, body.Code)
	switch {
	case err == nil:
		writeSuccess(w, "Player paired", "")
	case errors.Is(err, playback.ErrNoSession):
		writeError(w, "Pairing session expired, request a new code", http.StatusBadRequest)
	default:
		writeError(w, err.Error(), http.StatusBadGateway)
	}
}

func (a *API) pairingStatus(w http.ResponseWriter, r *http.Request) {
	playerURL := r.URL.Query().Get("vlc")
	if playerURL == "" {
		writeError(w, "Missing vlc parameter", http.StatusBadRequest)
		return
	}
	writeJSON(w, a.pairing.Status(playerURL))
}

func (a *API) pairingPlay(w http.ResponseWriter, r *http.Request) {
	playerURL := r.URL.Query().Get("vlc")
	if playerURL == "" {
		writeError(w, "Missing vlc parameter", http.StatusBadRequest)
		return
	}
	query := r.URL.Query()
	query.Del("vlc")

	err := a.pairing.Forward(r.Context(), playerURL, query)
	switch {
	case err == nil:
		writeSuccess(w, "Play command sent", "")
	case errors.Is(err, playback.ErrNoSession), errors.Is(err, playback.ErrNotPaired):
		writeError(w, "Player is not paired", http.StatusUnauthorized)
	default:
		writeError(w, err.Error(), http.StatusBadGateway)
	}
}

// pairingConfig lists known players on GET and remembers a new player URL
// on POST. Pairing itself still goes through the challenge flow.
func (a *API) pairingConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, a.pairing.Statuses())
	case http.MethodPost:
		var status playback.Status
		if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
			writeError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if status.URL == "" {
			writeError(w, "Missing player url", http.StatusBadRequest)
			return
		}
		a.pairing.Register(status.URL)
		writeSuccess(w, "Player url saved", "")
	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, message string, file string) {
	writeJSON(w, Response{Success: true, Message: message, File: file})
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: false, Message: message})
}
