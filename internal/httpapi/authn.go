package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"nemprice.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var errMalformedAuthHeader = errors.New("missing or malformed bearer token")

// requireBearer admits requests carrying a valid token and stores the
// verified payload in the request context.
func (a *API) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nemprice"`)
			writeError(w, r, http.StatusUnauthorized, CodeAuthHeaderMissing, err.Error())
			return
		}

		payload, err := a.auth.VerifyToken(token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				internalError(w, r, "verify_token", err)
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="nemprice", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithPayload(r.Context(), payload)))
	})
}

// extractBearerToken accepts exactly "Bearer <token>": the scheme is
// case-sensitive, followed by one space and a token without whitespace.
func extractBearerToken(header string) (string, error) {
	token, ok := strings.CutPrefix(header, bearer)
	if !ok || token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", errMalformedAuthHeader
	}
	return token, nil
}
