package playback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidfetch/vidfetch/internal/vidfetch/configuration"
)

// fakePlayer implements the pairing endpoints a real player exposes. The
// session cookie handed out on /code must come back on /verify-code and
// /play, which is exactly what trips up implementations that do not keep
// one client per pairing attempt.
type fakePlayer struct {
	mu           sync.Mutex
	challenge    string
	code         string
	ticketStatus int
	lastPlay     url.Values
	server       *httptest.Server
}

func newFakePlayer(t *testing.T) *fakePlayer {
	p := &fakePlayer{challenge: "c4a1b2", code: "1234", ticketStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/code", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "pending", Path: "/"})
		_, _ = w.Write([]byte(p.challenge))
	})
	mux.HandleFunc("/verify-code", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("session"); err != nil || cookie.Value != "pending" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		sum := sha256.Sum256([]byte(p.code + p.challenge))
		if r.PostFormValue("code") != hex.EncodeToString(sum[:]) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "paired", Path: "/"})
	})
	mux.HandleFunc("/play", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("session"); err != nil || cookie.Value != "paired" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		p.mu.Lock()
		p.lastPlay = r.URL.Query()
		p.mu.Unlock()
	})
	mux.HandleFunc("/wsticket", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		status := p.ticketStatus
		p.mu.Unlock()
		w.WriteHeader(status)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePlayer) playedPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPlay == nil {
		return ""
	}
	return p.lastPlay.Get("path")
}

// newFakeBackend serves HEAD /videos/<name> so reachability probes pass.
func newFakeBackend(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/videos" || r.URL.Path == "/videos/" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPairingFlow(t *testing.T) {
	player := newFakePlayer(t)
	manager := NewManager(configuration.PlaybackConfig{})

	challenge, err := manager.RequestChallenge(context.Background(), player.server.URL)
	require.NoError(t, err)
	assert.Equal(t, "c4a1b2", challenge)
	assert.False(t, manager.Status(player.server.URL).Authenticated)

	require.NoError(t, manager.VerifyCode(context.Background(), player.server.URL, "1234"))

	status := manager.Status(player.server.URL)
	assert.True(t, status.Authenticated)
	assert.NotEmpty(t, status.LastActivity)
}

func TestVerifyWithoutChallenge(t *testing.T) {
	manager := NewManager(configuration.PlaybackConfig{})
	err := manager.VerifyCode(context.Background(), "http://127.0.0.1:1", "1234")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRegisterRemembersPlayer(t *testing.T) {
	manager := NewManager(configuration.PlaybackConfig{})
	manager.Register("http://player:8091")

	statuses := manager.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "http://player:8091", statuses[0].URL)
	assert.False(t, statuses[0].Authenticated)

	// A registered player still has to go through the challenge flow.
	err := manager.VerifyCode(context.Background(), "http://player:8091", "1234")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRegisterKeepsExistingSession(t *testing.T) {
	player := newFakePlayer(t)
	manager := NewManager(configuration.PlaybackConfig{})

	challenge, err := manager.RequestChallenge(context.Background(), player.server.URL)
	require.NoError(t, err)
	require.NoError(t, manager.VerifyCode(context.Background(), player.server.URL, player.code))
	require.NotEmpty(t, challenge)

	manager.Register(player.server.URL)
	assert.True(t, manager.Status(player.server.URL).Authenticated)
}

func TestVerifyWrongCode(t *testing.T) {
	player := newFakePlayer(t)
	manager := NewManager(configuration.PlaybackConfig{})

	_, err := manager.RequestChallenge(context.Background(), player.server.URL)
	require.NoError(t, err)

	err = manager.VerifyCode(context.Background(), player.server.URL, "9999")
	require.Error(t, err)
	assert.False(t, manager.Status(player.server.URL).Authenticated)
}

func TestPlayRequiresPairing(t *testing.T) {
	player := newFakePlayer(t)
	manager := NewManager(configuration.PlaybackConfig{})

	err := manager.Play(context.Background(), player.server.URL, "video.mp4", "http://backend")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = manager.RequestChallenge(context.Background(), player.server.URL)
	require.NoError(t, err)
	err = manager.Play(context.Background(), player.server.URL, "video.mp4", "http://backend")
	assert.ErrorIs(t, err, ErrNotPaired)
}

func TestPlaySendsEncodedPath(t *testing.T) {
	player := newFakePlayer(t)
	backend := newFakeBackend(t)
	manager := NewManager(configuration.PlaybackConfig{})

	_, err := manager.RequestChallenge(context.Background(), player.server.URL)
	require.NoError(t, err)
	require.NoError(t, manager.VerifyCode(context.Background(), player.server.URL, "1234"))

	require.NoError(t, manager.Play(context.Background(), player.server.URL, "My Video.mp4", backend.URL))

	// The play query decodes once on the player's side; the %20 in the file
	// name must survive that first decode.
	assert.Equal(t, backend.URL+"/videos/My%20Video.mp4", player.playedPath())
}

func TestForwardRelaysQuery(t *testing.T) {
	player := newFakePlayer(t)
	manager := NewManager(configuration.PlaybackConfig{})

	_, err := manager.RequestChallenge(context.Background(), player.server.URL)
	require.NoError(t, err)
	require.NoError(t, manager.VerifyCode(context.Background(), player.server.URL, "1234"))

	query := url.Values{}
	query.Set("id", "-1")
	query.Set("path", "http://backend/videos/clip.mp4")
	query.Set("type", "stream")
	require.NoError(t, manager.Forward(context.Background(), player.server.URL, query))
	assert.Equal(t, "http://backend/videos/clip.mp4", player.playedPath())
}

func TestPairingSurvivesRestart(t *testing.T) {
	player := newFakePlayer(t)
	backend := newFakeBackend(t)
	stateFile := filepath.Join(t.TempDir(), "pairing", "state.json")

	first := NewManager(configuration.PlaybackConfig{StateFile: stateFile})
	_, err := first.RequestChallenge(context.Background(), player.server.URL)
	require.NoError(t, err)
	require.NoError(t, first.VerifyCode(context.Background(), player.server.URL, "1234"))

	restarted := NewManager(configuration.PlaybackConfig{StateFile: stateFile})
	status := restarted.Status(player.server.URL)
	require.True(t, status.Authenticated)

	// The restored cookie still authenticates play commands.
	require.NoError(t, restarted.Play(context.Background(), player.server.URL, "video.mp4", backend.URL))
}

func TestRejectedRestoreIsDropped(t *testing.T) {
	player := newFakePlayer(t)
	stateFile := filepath.Join(t.TempDir(), "state.json")

	first := NewManager(configuration.PlaybackConfig{StateFile: stateFile})
	_, err := first.RequestChallenge(context.Background(), player.server.URL)
	require.NoError(t, err)
	require.NoError(t, first.VerifyCode(context.Background(), player.server.URL, "1234"))

	player.mu.Lock()
	player.ticketStatus = http.StatusUnauthorized
	player.mu.Unlock()

	restarted := NewManager(configuration.PlaybackConfig{StateFile: stateFile})
	require.Eventually(t, func() bool {
		return !restarted.Status(player.server.URL).Authenticated
	}, 5*time.Second, 10*time.Millisecond)

	_, err = os.Stat(stateFile)
	assert.True(t, os.IsNotExist(err))
}
