package httpserver

import (
	"net/http"
	"time"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/settings"
	domainusage "github.com/bryanwahyu/trapscan/internal/domain/usage"
	"github.com/bryanwahyu/trapscan/internal/middleware"
)

// GET /v1/usage
func (r *Router) handleUsage(w http.ResponseWriter, req *http.Request) error {
	c, err := r.Usage.Check(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, c)
}

// DELETE /v1/usage
func (r *Router) handleUsageReset(w http.ResponseWriter, req *http.Request) error {
	if err := r.Usage.Reset(req.Context()); err != nil {
		return err
	}
	return r.handleUsage(w, req)
}

// GET /v1/plans
func (r *Router) handlePlans(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, domainusage.Plans())
}

// GET /v1/subscription
func (r *Router) handleSubscription(w http.ResponseWriter, req *http.Request) error {
	s, err := r.Usage.Subscription(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s)
}

// PUT /v1/subscription
// Body: {"tier": "pro"}
func (r *Router) handleSubscribe(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Tier string `json:"tier"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	tier, err := middleware.ValidateTier(body.Tier)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalid, "invalid tier", err)
	}
	s, err := r.Usage.Subscribe(req.Context(), tier)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s)
}

// DELETE /v1/subscription
func (r *Router) handleCancelSubscription(w http.ResponseWriter, req *http.Request) error {
	s, err := r.Usage.Cancel(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s)
}

// GET /v1/ratelimit
func (r *Router) handleRateStatus(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.Queue.RateStatus(req.Context()))
}

// GET /v1/settings
func (r *Router) handleSettings(w http.ResponseWriter, req *http.Request) error {
	s, err := r.Settings.Get(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s)
}

// PUT /v1/settings
// Body is a partial settings object; absent fields are kept.
func (r *Router) handleUpdateSettings(w http.ResponseWriter, req *http.Request) error {
	var p settings.Patch
	if err := decode(req, &p); err != nil {
		return err
	}
	if p.CustomPrompt != nil {
		v := middleware.SanitizeString(*p.CustomPrompt)
		p.CustomPrompt = &v
	}
	s, err := r.Settings.Update(req.Context(), p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s)
}

// DELETE /v1/settings
func (r *Router) handleResetSettings(w http.ResponseWriter, req *http.Request) error {
	if err := r.Settings.Reset(req.Context()); err != nil {
		return err
	}
	return r.handleSettings(w, req)
}

// sessionView never exposes the tokens.
type sessionView struct {
	SignedIn  bool       `json:"signedIn"`
	Email     string     `json:"email,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// GET /v1/session
func (r *Router) handleSession(w http.ResponseWriter, req *http.Request) error {
	if r.Session == nil {
		return errDisabled
	}
	s, err := r.Session.Current(req.Context())
	if apperr.Is(err, apperr.KindAuth) {
		return writeJSON(w, http.StatusOK, sessionView{})
	}
	if err != nil {
		return err
	}
	v := sessionView{SignedIn: true, Email: s.User.Email, UserID: s.User.ID}
	if s.ExpiresAt > 0 {
		exp := time.Unix(s.ExpiresAt, 0).UTC()
		v.ExpiresAt = &exp
	}
	return writeJSON(w, http.StatusOK, v)
}

// POST /v1/session
// Body: {"email": "...", "password": "..."}
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) error {
	if r.Session == nil {
		return errDisabled
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if body.Email == "" || body.Password == "" {
		return apperr.New(apperr.KindInvalid, "email and password are required")
	}
	if _, err := r.Session.Login(req.Context(), body.Email, body.Password); err != nil {
		return err
	}
	return r.handleSession(w, req)
}

// DELETE /v1/session
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) error {
	if r.Session == nil {
		return errDisabled
	}
	if err := r.Session.Logout(req.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
