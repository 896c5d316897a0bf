package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"parley.chat/internal/auth"
	"parley.chat/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// authenticate runs the bearer extraction and the token pipeline for one
// request. On failure the rejection has already been written and the
// returned grant is nil. The returned request carries the grant in its
// context for audit logging.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Grant, *http.Request) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		a.deny(w, r, auth.Unauthorized(err.Error()))
		return nil, r
	}
	g, err := a.authz.Authenticate(r.Context(), token)
	if err != nil {
		a.deny(w, r, err)
		return nil, r
	}
	return g, r.WithContext(auth.WithGrant(r.Context(), g))
}

// deny writes a pipeline rejection. 401s carry the WWW-Authenticate
// challenge; anything that is not a denial is an internal error.
func (a *API) deny(w http.ResponseWriter, r *http.Request, err error) {
	var d *auth.Denial
	if !errors.As(err, &d) {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	obs.DenialRecorded(d.Class())
	if d.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeError(w, r, d.Status, d.Message)
}
