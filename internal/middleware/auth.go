package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/database"
)

// SettingAdminTokenHash is the settings key holding the bcrypt hash of the
// admin API token.
const SettingAdminTokenHash = "admin_token_hash"

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health": true,
}

// AdminToken returns middleware that gates requests behind a bearer token
// checked against the bcrypt hash stored in settings. When no hash has been
// configured (fresh install, token set via the admin CLI) all requests pass
// through.
func AdminToken(store database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			hash, ok := tokenHash(r.Context(), store)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential from the Authorization header, or,
// for WebSocket upgrades where headers are awkward, the token query param.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, found := strings.CutPrefix(auth, "Bearer "); found {
			return token
		}
		return ""
	}
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("token")
	}
	return ""
}

func tokenHash(ctx context.Context, store database.Store) (string, bool) {
	raw, err := store.GetSetting(ctx, SettingAdminTokenHash)
	if err != nil {
		return "", false
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil || hash == "" {
		return "", false
	}
	return hash, true
}
