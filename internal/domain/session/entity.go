package session

import "context"

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the signed-in user's token pair. ExpiresAt is unix seconds.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// TokenSource hands out a bearer token for the analysis service.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}
