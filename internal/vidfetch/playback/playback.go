package playback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vidfetch/vidfetch/internal/vidfetch/configuration"
)

var (
	ErrNoSession = errors.New("no pairing session for this player")
	ErrNotPaired = errors.New("player is not paired")
)

// session is the pairing state for one player URL. Sessions are replaced,
// never mutated, so readers need no locking beyond the cache's own.
type session struct {
	challenge     string
	client        *http.Client
	authenticated bool
	lastActivity  time.Time
	cookies       []*http.Cookie
}

// Status is the pairing state reported to clients.
type Status struct {
	URL           string `json:"url"`
	Authenticated bool   `json:"authenticated"`
	LastActivity  string `json:"lastActivity,omitempty"`
}

// Manager speaks the player's pairing protocol: request a challenge, send
// back sha256(code + challenge), then reuse the session cookie for play
// commands. Sessions idle longer than the TTL are evicted; an
// authenticated one is persisted so pairing survives restarts.
type Manager struct {
	sessions  *cache.Cache
	stateFile string
	timeout   time.Duration
	log       *log.Entry
}

func NewManager(config configuration.PlaybackConfig) *Manager {
	if config.SessionTTL <= 0 {
		config.SessionTTL = 24 * time.Hour
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	m := &Manager{
		sessions:  cache.New(config.SessionTTL, 10*time.Minute),
		stateFile: config.StateFile,
		timeout:   config.RequestTimeout,
		log:       log.WithField("service", "playback"),
	}
	m.restore()
	return m
}

// RequestChallenge asks the player for a pairing challenge. The
// cookie-backed client it keeps is the one the verification step reuses.
func (m *Manager) RequestChallenge(ctx context.Context, playerURL string) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", errors.WithStack(err)
	}
	client := &http.Client{Jar: jar, Timeout: m.timeout}

	form := url.Values{}
	form.Set("challenge", "")
	body, status, err := postForm(ctx, client, playerURL+"/code", form)
	if err != nil {
		return "", errors.Wrap(err, "requesting pairing challenge")
	}
	challenge := strings.TrimSpace(body)
	if status != http.StatusOK {
		return "", errors.Errorf("player returned %d: %s", status, challenge)
	}

	m.put(playerURL, &session{
		challenge:    challenge,
		client:       client,
		lastActivity: time.Now(),
	})
	m.log.WithField("playerUrl", playerURL).Info("Pairing challenge received")
	return challenge, nil
}

// VerifyCode completes pairing with the code the player displayed.
func (m *Manager) VerifyCode(ctx context.Context, playerURL string, code string) error {
	current, ok := m.get(playerURL)
	if !ok || current.client == nil {
		return ErrNoSession
	}

	sum := sha256.Sum256([]byte(code + current.challenge))
	form := url.Values{}
	form.Set("code", hex.EncodeToString(sum[:]))
	body, status, err := postForm(ctx, current.client, playerURL+"/verify-code", form)
	if err != nil {
		return errors.Wrap(err, "verifying pairing code")
	}
	if status != http.StatusOK {
		return errors.Errorf("player returned %d: %s", status, strings.TrimSpace(body))
	}

	paired := &session{
		client:        current.client,
		authenticated: true,
		lastActivity:  time.Now(),
	}
	if parsed, err := url.Parse(playerURL); err == nil {
		paired.cookies = current.client.Jar.Cookies(parsed)
	}
	m.put(playerURL, paired)
	if err := m.persist(playerURL, paired); err != nil {
		m.log.WithError(err).Warn("Failed to persist pairing state")
	}
	m.log.WithField("playerUrl", playerURL).Info("Player paired")
	return nil
}

// Status reports the pairing state for one player URL.
func (m *Manager) Status(playerURL string) Status {
	status := Status{URL: playerURL}
	if current, ok := m.get(playerURL); ok {
		status.Authenticated = current.authenticated
		status.LastActivity = current.lastActivity.Format(time.RFC3339)
	}
	return status
}

// Statuses reports every live pairing session.
func (m *Manager) Statuses() []Status {
	items := m.sessions.Items()
	statuses := make([]Status, 0, len(items))
	for playerURL := range items {
		statuses = append(statuses, m.Status(playerURL))
	}
	return statuses
}

// Register remembers a player URL without pairing it. The entry stays
// unauthenticated until the challenge flow completes.
func (m *Manager) Register(playerURL string) {
	if _, ok := m.get(playerURL); ok {
		return
	}
	m.put(playerURL, &session{lastActivity: time.Now()})
	m.log.WithField("playerUrl", playerURL).Info("Player registered")
}

// Forward relays a play query to a paired player with the session cookie
// attached.
func (m *Manager) Forward(ctx context.Context, playerURL string, query url.Values) error {
	current, ok := m.get(playerURL)
	if !ok {
		return ErrNoSession
	}
	if !current.authenticated {
		return ErrNotPaired
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, playerURL+"/play?"+query.Encode(), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	response, err := current.client.Do(request)
	if err != nil {
		return errors.Wrap(err, "sending play command")
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return errors.Errorf("player returned %d", response.StatusCode)
	}

	refreshed := *current
	refreshed.lastActivity = time.Now()
	m.put(playerURL, &refreshed)
	return nil
}

// Play tells a paired player to start one artifact. The artifact is probed
// over HTTP first; the player gives up immediately on a URL that is not
// reachable yet.
func (m *Manager) Play(ctx context.Context, playerURL string, fileName string, backendURL string) error {
	current, ok := m.get(playerURL)
	if !ok {
		return ErrNoSession
	}
	if !current.authenticated {
		return ErrNotPaired
	}
	if backendURL == "" {
		return errors.New("no backend url to serve the artifact from")
	}

	mediaURL := strings.TrimSuffix(backendURL, "/") + "/videos/" + url.PathEscape(strings.TrimPrefix(fileName, "/"))
	if err := waitReachable(ctx, current.client, mediaURL); err != nil {
		return errors.WithMessage(err, "artifact not reachable")
	}

	// The player decodes the path parameter twice; Encode supplies the
	// outer layer on top of the already escaped media URL.
	query := url.Values{}
	query.Set("id", "-1")
	query.Set("path", mediaURL)
	query.Set("type", "stream")
	if err := m.Forward(ctx, playerURL, query); err != nil {
		return err
	}
	m.log.WithField("playerUrl", playerURL).WithField("file", fileName).Info("Play command accepted")
	return nil
}

func (m *Manager) get(playerURL string) (*session, bool) {
	value, ok := m.sessions.Get(playerURL)
	if !ok {
		return nil, false
	}
	return value.(*session), true
}

func (m *Manager) put(playerURL string, s *session) {
	m.sessions.Set(playerURL, s, cache.DefaultExpiration)
}

func postForm(ctx context.Context, client *http.Client, target string, form url.Values) (string, int, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, errors.WithStack(err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	response, err := client.Do(request)
	if err != nil {
		return "", 0, err
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", response.StatusCode, errors.Wrap(err, "reading player response")
	}
	return string(body), response.StatusCode, nil
}

func waitReachable(ctx context.Context, client *http.Client, mediaURL string) error {
	return retry.Do(
		func() error {
			request, err := http.NewRequestWithContext(ctx, http.MethodHead, mediaURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			response, err := client.Do(request)
			if err != nil {
				return err
			}
			defer response.Body.Close()
			if response.StatusCode != http.StatusOK {
				return errors.Errorf("status %d", response.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(20),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// pairingState is the on-disk form of one authenticated session.
type pairingState struct {
	URL           string          `json:"url"`
	Authenticated bool            `json:"authenticated"`
	LastActivity  string          `json:"lastActivity"`
	Cookies       []pairingCookie `json:"cookies"`
}

type pairingCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Path   string `json:"path"`
	Domain string `json:"domain"`
}

func (m *Manager) persist(playerURL string, s *session) error {
	if m.stateFile == "" {
		return nil
	}
	state := pairingState{
		URL:           playerURL,
		Authenticated: s.authenticated,
		LastActivity:  s.lastActivity.Format(time.RFC3339),
	}
	for _, c := range s.cookies {
		state.Cookies = append(state.Cookies, pairingCookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
		})
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(m.stateFile), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(m.stateFile, data, 0o644))
}

func (m *Manager) restore() {
	if m.stateFile == "" {
		return
	}
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.WithError(err).Warn("Failed to read pairing state")
		}
		return
	}
	var state pairingState
	if err := json.Unmarshal(data, &state); err != nil {
		m.log.WithError(err).Warn("Pairing state file is corrupt, ignoring it")
		return
	}
	if !state.Authenticated || state.URL == "" {
		return
	}

	parsed, err := url.Parse(state.URL)
	if err != nil {
		m.log.WithError(err).Warn("Saved player url does not parse, ignoring it")
		return
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	cookies := make([]*http.Cookie, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
		})
	}
	jar.SetCookies(parsed, cookies)

	lastActivity, _ := time.Parse(time.RFC3339, state.LastActivity)
	m.put(state.URL, &session{
		client:        &http.Client{Jar: jar, Timeout: m.timeout},
		authenticated: true,
		lastActivity:  lastActivity,
		cookies:       cookies,
	})
	m.log.WithField("playerUrl", state.URL).Info("Pairing restored from disk")

	go m.revalidate(state.URL)
}

// revalidate probes a restored session. Only a definite 401 drops it; an
// unreachable player keeps its pairing.
func (m *Manager) revalidate(playerURL string) {
	current, ok := m.get(playerURL)
	if !ok {
		return
	}
	response, err := current.client.Get(playerURL + "/wsticket")
	if err != nil {
		m.log.WithError(err).Warn("Restored pairing could not be verified")
		return
	}
	defer response.Body.Close()
	if response.StatusCode == http.StatusUnauthorized {
		m.log.WithField("playerUrl", playerURL).Warn("Restored pairing is no longer accepted, dropping it")
		m.sessions.Delete(playerURL)
		_ = os.Remove(m.stateFile)
	}
}
