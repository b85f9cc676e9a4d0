package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing access token")
	errInvalidToken = errors.New("invalid access token")
)

// Authenticator verifies HS256 user tokens and yields the subject as the
// user id.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// UserID returns the subject of a valid token.
func (a *Authenticator) UserID(token string) (string, error) {
	if token == "" {
		return "", errMissingToken
	}
	if len(a.secret) == 0 {
		return "", errInvalidToken
	}
	parsed, err := a.parser.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: no subject", errInvalidToken)
	}
	return sub, nil
}

// requestToken takes the token from the access_token query parameter, which
// EventSource clients must use, or from an Authorization Bearer header.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// authenticate resolves the requesting user or writes a 401.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := s.auth.UserID(requestToken(r))
	if err != nil {
		s.logger.Debug("stream auth rejected", "remote", r.RemoteAddr, "err", err)
		msg := "invalid token"
		if errors.Is(err, errMissingToken) {
			msg = "missing token"
		}
		writeError(w, http.StatusUnauthorized, msg)
		return "", false
	}
	return userID, true
}

// AdminMiddleware wraps an http.Handler and checks the Authorization header
// for the admin Bearer token.
func AdminMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "invalid authorization scheme")
			return
		}

		provided := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
