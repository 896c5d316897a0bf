package httpapi

import (
	"net/http"
	"strings"

	"parley.chat/internal/audit"
	"parley.chat/internal/auth"
	"parley.chat/internal/ids"
)

type createUserRequest struct {
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	FullName string    `json:"full_name,omitempty"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
	Disabled bool      `json:"disabled,omitempty"`
}

type updateUserRequest struct {
	Email    *string    `json:"email,omitempty"`
	FullName *string    `json:"full_name,omitempty"`
	Password *string    `json:"password,omitempty"`
	Role     *auth.Role `json:"role,omitempty"`
	Disabled *bool      `json:"disabled,omitempty"`
}

// --- platform surface ---

func (a *API) handlePlatformUsers(w http.ResponseWriter, r *http.Request) {
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.authz.PlatformScope(g); err != nil {
		a.deny(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if err := a.authz.RequirePermissions(g, auth.PermReadPlatformUser); err != nil {
			a.deny(w, r, err)
			return
		}
		opts, err := parseListOptions(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		page, err := a.store.Users().List(r.Context(), auth.UserFilter{PlatformOnly: true}, opts)
		if err != nil {
			handleStoreError(w, r, err, "users not found")
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		if err := a.authz.RequirePermissions(g, auth.PermCreatePlatformUser); err != nil {
			a.deny(w, r, err)
			return
		}
		a.createUser(w, r, g, "", auth.PlatformRoles)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePlatformUser(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/platform/users/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.authz.PlatformScope(g); err != nil {
		a.deny(w, r, err)
		return
	}
	if err := a.authz.UserManagingScope(r.Context(), g, id); err != nil {
		a.deny(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if err := a.authz.RequirePermissions(g, auth.PermReadPlatformUser); err != nil {
			a.deny(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g.Target)
	case http.MethodPatch:
		if err := a.authz.RequirePermissions(g, auth.PermUpdatePlatformUser); err != nil {
			a.deny(w, r, err)
			return
		}
		a.updateUser(w, r, g, auth.PlatformRoles)
	case http.MethodDelete:
		if err := a.authz.RequirePermissions(g, auth.PermDeletePlatformUser); err != nil {
			a.deny(w, r, err)
			return
		}
		a.deleteUser(w, r, g)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- shared user operations ---

// createUser creates a user under orgID ("" for platform tier). The new
// role must be assignable on this surface and must not outrank the caller.
func (a *API) createUser(w http.ResponseWriter, r *http.Request, g *auth.Grant, orgID string, allowed []auth.Role) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := auth.ValidateUsername(req.Username); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !auth.RoleAssignable(req.Role, allowed) {
		writeError(w, r, http.StatusBadRequest, "role not assignable here")
		return
	}
	if auth.AuthorityLevel(req.Role) > auth.AuthorityLevel(g.Principal.Role) {
		a.deny(w, r, auth.Forbidden("cannot assign a role of higher authority"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	user := &auth.User{
		ID:             ids.New(),
		Username:       strings.TrimSpace(req.Username),
		Email:          strings.TrimSpace(req.Email),
		FullName:       strings.TrimSpace(req.FullName),
		OrganizationID: orgID,
		Role:           req.Role,
		Disabled:       req.Disabled,
		HashedPassword: hash,
	}
	if err := a.store.Users().Create(r.Context(), user); err != nil {
		handleStoreError(w, r, err, "user not found")
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{
		"user_id":         user.ID,
		"role":            string(user.Role),
		"organization_id": user.OrganizationID,
	})
	writeJSON(w, http.StatusCreated, user)
}

// updateUser applies a partial update to g.Target.
func (a *API) updateUser(w http.ResponseWriter, r *http.Request, g *auth.Grant, allowed []auth.Role) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user := *g.Target
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Password != nil {
		if err := auth.ValidatePassword(*req.Password); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		user.HashedPassword = hash
	}
	if req.Role != nil && *req.Role != user.Role {
		if !auth.RoleAssignable(*req.Role, allowed) {
			writeError(w, r, http.StatusBadRequest, "role not assignable here")
			return
		}
		if auth.AuthorityLevel(*req.Role) > auth.AuthorityLevel(g.Principal.Role) {
			a.deny(w, r, auth.Forbidden("cannot assign a role of higher authority"))
			return
		}
		user.Role = *req.Role
	}
	if req.Disabled != nil {
		user.Disabled = *req.Disabled
	}
	if err := a.store.Users().Update(r.Context(), &user); err != nil {
		handleStoreError(w, r, err, "user not found")
		return
	}
	// A disabled or demoted account must not keep its session.
	if (req.Disabled != nil && user.Disabled) || (req.Role != nil && *req.Role != g.Target.Role) {
		if err := a.store.Tokens().Logout(r.Context(), user.Username, true); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}
	_ = audit.LogEvent(r.Context(), "user.update", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, &user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, g *auth.Grant) {
	permanent := r.URL.Query().Get("permanent") == "true"
	if err := a.store.Users().Delete(r.Context(), g.Target.ID, !permanent); err != nil {
		handleStoreError(w, r, err, "user not found")
		return
	}
	// Either way the session dies with the account.
	if err := a.store.Tokens().Logout(r.Context(), g.Target.Username, true); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{
		"user_id":   g.Target.ID,
		"permanent": permanent,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "user deleted"})
}
