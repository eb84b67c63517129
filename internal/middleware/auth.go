package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"

	"gameshop-api/internal/model"
	"gameshop-api/internal/service"
	"gameshop-api/pkg/apierror"
)

// SessionKey is the key for storing the buyer session in request context.
const SessionKey contextKey = "session"

// SessionValidator resolves a session token.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*model.Session, error)
}

// RequireSession authenticates buyers by the X-Token header.
func RequireSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Token")
			if token == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-Token header."))
				return
			}

			sess, err := sessions.Validate(r.Context(), token)
			if errors.Is(err, service.ErrInvalidSession) {
				writeError(w, apierror.Unauthorized("Invalid or expired token"))
				return
			}
			if err != nil {
				log.Printf("[Auth] Session lookup failed: %v", err)
				writeError(w, apierror.ServiceUnavailable(""))
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAPIKey admits trusted back-ends by X-API-Key or a Bearer token.
// Falls back to API_KEYS / API_KEY from the environment when keys is empty.
func RequireAPIKey(keys []string) func(http.Handler) http.Handler {
	if len(keys) == 0 {
		keys = getAPIKeysFromEnv()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-API-Key header."))
				return
			}
			if !isValidKey(apiKey, keys) {
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireLoginKey guards admin endpoints with the X-Login-Key header.
// An empty loginKey disables the admin API.
func RequireLoginKey(loginKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if loginKey == "" {
				writeError(w, apierror.Forbidden("Admin API disabled"))
				return
			}
			if !isValidKey(r.Header.Get("X-Login-Key"), []string{loginKey}) {
				writeError(w, apierror.Unauthorized("Invalid login key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// getAPIKeysFromEnv returns API keys from environment variables.
func getAPIKeysFromEnv() []string {
	keysEnv := os.Getenv("API_KEYS")
	if keysEnv == "" {
		singleKey := os.Getenv("API_KEY")
		if singleKey != "" {
			return []string{singleKey}
		}
		return nil
	}

	keys := strings.Split(keysEnv, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	if key == "" {
		return false
	}
	for _, valid := range validKeys {
		if valid != "" && subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

// GetSessionFromContext retrieves the buyer session from request context.
func GetSessionFromContext(ctx context.Context) *model.Session {
	if sess, ok := ctx.Value(SessionKey).(*model.Session); ok {
		return sess
	}
	return nil
}
