// Package session signs the user in against the auth service and keeps the
// access token fresh.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
	domain "github.com/bryanwahyu/trapscan/internal/domain/session"
)

// RefreshSkew refreshes tokens this long before they expire.
const RefreshSkew = 5 * time.Minute

var (
	errNotAuthenticated = apperr.New(apperr.KindAuth, "not authenticated, please sign in")
	errSessionExpired   = apperr.New(apperr.KindAuth, "session expired, please sign in again")
)

type Manager struct {
	Store   kv.Store
	HTTP    *http.Client
	AuthURL string
	AnonKey string
	Clock   application.Clock

	// refresh is single flight
	mu sync.Mutex
}

func NewManager(store kv.Store, httpClient *http.Client, authURL, anonKey string, clock application.Clock) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Manager{
		Store:   store,
		HTTP:    httpClient,
		AuthURL: strings.TrimRight(authURL, "/"),
		AnonKey: anonKey,
		Clock:   clock,
	}
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         domain.User `json:"user"`
}

type authError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (a authError) message() string {
	for _, s := range []string{a.ErrorDescription, a.Msg, a.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Current returns the stored session.
func (m *Manager) Current(ctx context.Context) (*domain.Session, error) {
	s, ok, err := kv.GetJSON[domain.Session](ctx, m.Store, kv.KeySession)
	if err != nil {
		return nil, err
	}
	if !ok || s.AccessToken == "" {
		return nil, errNotAuthenticated
	}
	return &s, nil
}

// Login signs in with email and password and stores the session.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]string{"email": email, "password": password}
	s, err := m.token(ctx, "password", body)
	if err != nil {
		return nil, err
	}
	log.Info().Str("user", s.User.Email).Msg("signed in")
	return s, nil
}

func (m *Manager) Logout(ctx context.Context) error {
	return m.Store.Remove(ctx, kv.KeySession)
}

// AccessToken returns a token valid for at least RefreshSkew, refreshing it
// when needed. An invalid refresh token clears the session.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	if !m.expiring(s) {
		return s.AccessToken, nil
	}
	if s.RefreshToken == "" {
		_ = m.Logout(ctx)
		return "", errSessionExpired
	}
	fresh, err := m.token(ctx, "refresh_token", map[string]string{"refresh_token": s.RefreshToken})
	if err != nil {
		return "", err
	}
	log.Debug().Msg("access token refreshed")
	return fresh.AccessToken, nil
}

func (m *Manager) expiring(s *domain.Session) bool {
	exp := ExpiryOf(s.AccessToken)
	if exp.IsZero() && s.ExpiresAt > 0 {
		exp = time.Unix(s.ExpiresAt, 0)
	}
	if exp.IsZero() {
		return false
	}
	return !m.Clock.Now().Add(RefreshSkew).Before(exp)
}

// ExpiryOf reads the exp claim without verifying the signature. Zero when
// absent or unparsable.
func ExpiryOf(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func (m *Manager) token(ctx context.Context, grant string, body map[string]string) (*domain.Session, error) {
	raw, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/auth/v1/token?grant_type=%s", m.AuthURL, grant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.AnonKey != "" {
		req.Header.Set("apikey", m.AnonKey)
	}

	resp, err := m.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOf(err), "auth service unreachable", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var ae authError
		_ = json.Unmarshal(data, &ae)
		if grant == "refresh_token" {
			log.Warn().Int("status", resp.StatusCode).Str("reason", ae.message()).Msg("refresh token rejected, clearing session")
			_ = m.Logout(ctx)
			return nil, errSessionExpired
		}
		msg := ae.message()
		if msg == "" {
			msg = "invalid login credentials"
		}
		return nil, &apperr.Error{Kind: apperr.KindAuth, Message: msg, Status: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		return nil, &apperr.Error{Kind: apperr.KindUnknown, Message: "auth service error", Status: resp.StatusCode}
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil || tr.AccessToken == "" {
		return nil, apperr.New(apperr.KindInvalid, "invalid auth response")
	}
	s := &domain.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    tr.ExpiresAt,
		User:         tr.User,
	}
	if s.ExpiresAt == 0 && tr.ExpiresIn > 0 {
		s.ExpiresAt = m.Clock.Now().Add(time.Duration(tr.ExpiresIn) * time.Second).Unix()
	}
	if s.RefreshToken == "" {
		if prev, err := m.Current(ctx); err == nil {
			s.RefreshToken = prev.RefreshToken
		}
	}
	if err := kv.SetJSON(ctx, m.Store, kv.KeySession, s); err != nil {
		return nil, err
	}
	return s, nil
}
