package auth

import (
	"net/http"
	"strings"
)

// ExtractToken pulls the bearer token from the Authorization header,
// falling back to X-API-Key.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	if header != "" {
		return header
	}
	return r.Header.Get("X-API-Key")
}

// Middleware guards scope-keyed routes. The scope is read per request;
// requests without a valid token get 401 with a WWW-Authenticate challenge.
func Middleware(verifier Verifier, scopeFrom func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			scope := scopeFrom(r)

			if err := verifier.Verify(r.Context(), scope, token); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="castwatch"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PathScope reads the {scope} path value populated by the router.
func PathScope(r *http.Request) string {
	return r.PathValue("scope")
}
