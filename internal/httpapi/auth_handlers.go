package httpapi

import (
	"net/http"
	"strings"

	"parley.chat/internal/audit"
	"parley.chat/internal/auth"
	"parley.chat/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// readLoginRequest accepts both JSON and form-encoded credentials; the
// latter keeps OAuth2-style password clients working.
func readLoginRequest(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return loginRequest{}, err
		}
		return loginRequest{
			Username: r.PostFormValue("username"),
			Password: r.PostFormValue("password"),
		}, nil
	}
	var req loginRequest
	err := decodeJSON(w, r, &req)
	return req, err
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	req, err := readLoginRequest(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	tok, user, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.deny(w, r, err)
		return
	}
	obs.TokenIssued("password")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, tok)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.svc.Logout(r.Context(), g); err != nil {
		a.deny(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"username": g.Principal.Username,
	})
	// Proxies must never serve a logged-out session from cache.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Successfully logged out",
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req auth.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, user, err := a.svc.Refresh(r.Context(), req)
	if err != nil {
		a.deny(w, r, err)
		return
	}
	obs.TokenIssued("refresh_token")
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, tok)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	g, _ := a.authenticate(w, r)
	if g == nil {
		return
	}
	writeJSON(w, http.StatusOK, g.Principal)
}
