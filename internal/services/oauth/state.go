package oauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/secret"
)

const stateIssuer = "voice-forms-bot"

// StateSigner issues and verifies the OAuth state parameter.
// The state is an HS256 JWT: sub is the LINE user id, jti the pending
// authorization id, exp the end of the authorization window.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner derives the signing key from the session secret.
func NewStateSigner(sessionSecret string, ttl time.Duration) (*StateSigner, error) {
	key, err := secret.DeriveKey(sessionSecret, secret.PurposeState)
	if err != nil {
		return nil, err
	}
	return &StateSigner{key: key[:], ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed state for userID and the id embedded in it.
func (s *StateSigner) Issue(userID string) (state, id string, err error) {
	now := s.now()
	id = uuid.NewString()
	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		Subject:   userID,
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	state, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", "", err
	}
	return state, id, nil
}

// Verify checks signature, issuer and expiry and returns the user id and
// state id. Every failure is an ErrStateInvalid.
func (s *StateSigner) Verify(state string) (userID, id string, err error) {
	if state == "" {
		return "", "", apperr.State("missing state", nil)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", "", apperr.State("state rejected", err)
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return "", "", apperr.State("state is incomplete", nil)
	}
	return claims.Subject, claims.ID, nil
}
