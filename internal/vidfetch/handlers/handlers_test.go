package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
	"github.com/vidfetch/vidfetch/internal/vidfetch/playback"
	"github.com/vidfetch/vidfetch/internal/vidfetch/scheduling"
)

type fakeQueue struct {
	submitID   string
	submitErr  error
	snapshot   []domain.JobInfo
	cancelErr  error
	cleared    int
	lastSubmit domain.JobRequest
	lastCancel string
}

func (q *fakeQueue) Submit(request domain.JobRequest) (string, error) {
	q.lastSubmit = request
	if q.submitErr != nil {
		return "", q.submitErr
	}
	return q.submitID, nil
}

func (q *fakeQueue) Snapshot() []domain.JobInfo { return q.snapshot }

func (q *fakeQueue) Cancel(id string) error {
	q.lastCancel = id
	return q.cancelErr
}

func (q *fakeQueue) ClearFinished() int { return q.cleared }

type fakeArtifacts struct {
	files []string
	err   error
}

func (a *fakeArtifacts) List() ([]string, error) { return a.files, a.err }

type fakePairing struct {
	challenge    string
	challengeErr error
	verifyErr    error
	forwardErr   error
	status       playback.Status
	statuses     []playback.Status
	lastPlayer   string
	lastCode     string
	lastQuery    url.Values
	registered   []string
}

func (p *fakePairing) RequestChallenge(ctx context.Context, playerURL string) (string, error) {
	p.lastPlayer = playerURL
	return p.challenge, p.challengeErr
}

func (p *fakePairing) VerifyCode(ctx context.Context, playerURL string, code string) error {
	p.lastPlayer = playerURL
	p.lastCode = code
	return p.verifyErr
}

func (p *fakePairing) Forward(ctx context.Context, playerURL string, query url.Values) error {
	p.lastPlayer = playerURL
	p.lastQuery = query
	return p.forwardErr
}

func (p *fakePairing) Status(playerURL string) playback.Status { return p.status }

func (p *fakePairing) Statuses() []playback.Status { return p.statuses }

func (p *fakePairing) Register(playerURL string) {
	p.registered = append(p.registered, playerURL)
}

func newTestMux(queue Queue, artifacts Artifacts, pairing Pairing) *http.ServeMux {
	if queue == nil {
		queue = &fakeQueue{}
	}
	if artifacts == nil {
		artifacts = &fakeArtifacts{}
	}
	if pairing == nil {
		pairing = &fakePairing{}
	}
	mux := http.NewServeMux()
	NewAPI(queue, artifacts, pairing).Register(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method string, target string, body string) (*httptest.ResponseRecorder, Response) {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, request)

	var response Response
	if strings.Contains(recorder.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(recorder.Body.Bytes(), &response)
	}
	return recorder, response
}

func TestSubmitAccepted(t *testing.T) {
	queue := &fakeQueue{submitID: "01hv2k"}
	mux := newTestMux(queue, nil, nil)

	recorder, response := doRequest(t, mux, http.MethodPost, "/url",
		`{"url":"https://example.com/v","mode":"download","autoPlay":true,"vlcUrl":"http://player"}`)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, response.Success)
	assert.Equal(t, "01hv2k", response.File)
	assert.Equal(t, "https://example.com/v", queue.lastSubmit.URL)
	assert.Equal(t, domain.ModeDownload, queue.lastSubmit.Mode)
	assert.True(t, queue.lastSubmit.AutoPlay)
	assert.Equal(t, "http://player", queue.lastSubmit.PlayerURL)
}

func TestSubmitRejectsWrongMethod(t *testing.T) {
	recorder, response := doRequest(t, newTestMux(nil, nil, nil), http.MethodGet, "/url", "")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
	assert.False(t, response.Success)
}

func TestSubmitRejectsBadJSON(t *testing.T) {
	recorder, _ := doRequest(t, newTestMux(nil, nil, nil), http.MethodPost, "/url", "{not json")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSubmitValidationFailure(t *testing.T) {
	queue := &fakeQueue{submitErr: errors.New("url is required")}
	recorder, response := doRequest(t, newTestMux(queue, nil, nil), http.MethodPost, "/url", `{"url":""}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, response.Message, "url is required")
}

func TestSubmitWhenQueueFull(t *testing.T) {
	queue := &fakeQueue{submitErr: scheduling.ErrQueueFull}
	recorder, _ := doRequest(t, newTestMux(queue, nil, nil), http.MethodPost, "/url", `{"url":"https://example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestQueueStatusEnvelope(t *testing.T) {
	queue := &fakeQueue{snapshot: []domain.JobInfo{
		{ID: "01first", State: domain.JobRunning, Percent: 42},
		{ID: "01second", State: domain.JobQueued},
	}}
	recorder, _ := doRequest(t, newTestMux(queue, nil, nil), http.MethodGet, "/queue", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload map[string][]domain.JobInfo
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Len(t, payload["queue"], 2)
	assert.Equal(t, "01first", payload["queue"][0].ID)
	assert.Equal(t, "01second", payload["queue"][1].ID)

	// Clients key off these exact field names.
	body := recorder.Body.String()
	assert.Contains(t, body, `"downloadId"`)
	assert.Contains(t, body, `"status"`)
	assert.Contains(t, body, `"percent"`)
}

func TestClearQueue(t *testing.T) {
	queue := &fakeQueue{cleared: 3}
	mux := newTestMux(queue, nil, nil)

	recorder, response := doRequest(t, mux, http.MethodPost, "/queue/clear", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, response.Success)
	assert.Contains(t, response.Message, "3")

	recorder, _ = doRequest(t, mux, http.MethodGet, "/queue/clear", "")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestCancel(t *testing.T) {
	queue := &fakeQueue{}
	mux := newTestMux(queue, nil, nil)

	recorder, response := doRequest(t, mux, http.MethodPost, "/cancel/01abc", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, response.Success)
	assert.Equal(t, "01abc", queue.lastCancel)

	queue.cancelErr = scheduling.ErrJobNotFound
	recorder, _ = doRequest(t, mux, http.MethodPost, "/cancel/missing", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	queue.cancelErr = scheduling.ErrJobFinished
	recorder, _ = doRequest(t, mux, http.MethodPost, "/cancel/finished", "")
	assert.Equal(t, http.StatusConflict, recorder.Code)

	recorder, _ = doRequest(t, mux, http.MethodPost, "/cancel/", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestListArtifacts(t *testing.T) {
	artifacts := &fakeArtifacts{files: []string{"new.mp4", "old.mp4"}}
	recorder, _ := doRequest(t, newTestMux(nil, artifacts, nil), http.MethodGet, "/list", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var files []string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &files))
	assert.Equal(t, []string{"new.mp4", "old.mp4"}, files)
}

func TestListFailure(t *testing.T) {
	artifacts := &fakeArtifacts{err: errors.New("disk gone")}
	recorder, response := doRequest(t, newTestMux(nil, artifacts, nil), http.MethodGet, "/list", "")
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.False(t, response.Success)
}

func TestPairingChallenge(t *testing.T) {
	pairing := &fakePairing{challenge: "c4a1"}
	mux := newTestMux(nil, nil, pairing)

	recorder, response := doRequest(t, mux, http.MethodPost, "/vlc/code?vlc=http://player", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "c4a1", response.File)
	assert.Equal(t, "http://player", pairing.lastPlayer)

	recorder, _ = doRequest(t, mux, http.MethodPost, "/vlc/code", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	pairing.challengeErr = errors.New("connection refused")
	recorder, _ = doRequest(t, mux, http.MethodPost, "/vlc/code?vlc=http://player", "")
	assert.Equal(t, http.StatusBadGateway, recorder.Code)
}

func TestPairingVerify(t *testing.T) {
	pairing := &fakePairing{}
	mux := newTestMux(nil, nil, pairing)

	recorder, response := doRequest(t, mux, http.MethodPost, "/vlc/verify-code?vlc=http://player", `{"code":"1234"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, response.Success)
	assert.Equal(t, "1234", pairing.lastCode)

	recorder, _ = doRequest(t, mux, http.MethodPost, "/vlc/verify-code?vlc=http://player", `{}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder, _ = doRequest(t, mux, http.MethodGet, "/vlc/verify-code?vlc=http://player", "")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)

	pairing.verifyErr = playback.ErrNoSession
	recorder, _ = doRequest(t, mux, http.MethodPost, "/vlc/verify-code?vlc=http://player", `{"code":"1234"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestPairingStatus(t *testing.T) {
	pairing := &fakePairing{status: playback.Status{URL: "http://player", Authenticated: true}}
	recorder, _ := doRequest(t, newTestMux(nil, nil, pairing), http.MethodGet, "/vlc/status?vlc=http://player", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var status playback.Status
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.True(t, status.Authenticated)
}

func TestPairingPlayRelaysQuery(t *testing.T) {
	pairing := &fakePairing{}
	mux := newTestMux(nil, nil, pairing)

	recorder, _ := doRequest(t, mux, http.MethodGet, "/vlc/play?vlc=http://player&id=-1&path=x&type=stream", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "http://player", pairing.lastPlayer)
	assert.Equal(t, "x", pairing.lastQuery.Get("path"))
	assert.Empty(t, pairing.lastQuery.Get("vlc"))

	pairing.forwardErr = playback.ErrNotPaired
	recorder, _ = doRequest(t, mux, http.MethodGet, "/vlc/play?vlc=http://player&id=-1", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestPairingConfigListsPlayers(t *testing.T) {
	pairing := &fakePairing{statuses: []playback.Status{
		{URL: "http://player-a", Authenticated: true},
		{URL: "http://player-b"},
	}}

	recorder, _ := doRequest(t, newTestMux(nil, nil, pairing), http.MethodGet, "/vlc/config", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var statuses []playback.Status
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "http://player-a", statuses[0].URL)
}

func TestPairingConfigRegistersPlayer(t *testing.T) {
	pairing := &fakePairing{}
	mux := newTestMux(nil, nil, pairing)

	recorder, response := doRequest(t, mux, http.MethodPost, "/vlc/config", `{"url":"http://player:8091"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, response.Success)
	assert.Equal(t, []string{"http://player:8091"}, pairing.registered)

	recorder, _ = doRequest(t, mux, http.MethodPost, "/vlc/config", `{"url":""}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder, _ = doRequest(t, mux, http.MethodPost, "/vlc/config", "not json")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
