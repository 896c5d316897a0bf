package httpapi

import (
	"net/http"
	"strings"

	"parley.chat/internal/audit"
	"parley.chat/internal/auth"
	"parley.chat/internal/ids"
	"parley.chat/internal/obs"
)

type createOrgRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

type updateOrgRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	OwnerID     *string `json:"owner_id,omitempty"`
	Disabled    *bool   `json:"disabled,omitempty"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if err := a.authz.RequirePermissions(g, auth.PermReadOrg); err != nil {
			a.deny(w, r, err)
			return
		}
		opts, err := parseListOptions(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		filter := auth.OrganizationFilter{}
		// Organization-tier principals only ever see their own tenant.
		if !g.Principal.Role.PlatformTier() {
			filter.IDs = []string{g.Principal.OrganizationID}
		}
		page, err := a.store.Organizations().List(r.Context(), filter, opts)
		if err != nil {
			handleStoreError(w, r, err, "organizations not found")
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		if err := a.authz.PlatformScope(g); err != nil {
			a.deny(w, r, err)
			return
		}
		if err := a.authz.RequirePermissions(g, auth.PermCreateOrg); err != nil {
			a.deny(w, r, err)
			return
		}
		a.createOrganization(w, r, g)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request, g *auth.Grant) {
	var req createOrgRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	org := &auth.Organization{
		ID:          ids.New(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		OwnerID:     strings.TrimSpace(req.OwnerID),
	}
	if org.OwnerID == "" {
		org.OwnerID = g.Principal.ID
	}
	if err := a.store.Organizations().Create(r.Context(), org); err != nil {
		handleStoreError(w, r, err, "organization not found")
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.create", map[string]any{
		"organization_id": org.ID,
		"name":            org.Name,
	})
	writeJSON(w, http.StatusCreated, org)
}

// handleOrganizationScoped dispatches everything under /organizations/{id}.
func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/organizations/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	orgID := parts[0]

	if len(parts) == 1 {
		a.handleOrganizationItem(w, r, orgID)
		return
	}
	switch parts[1] {
	case "users":
		switch {
		case len(parts) == 2:
			a.handleOrgUsers(w, r, orgID)
		case len(parts) == 3 && parts[2] == "register":
			a.handleRegister(w, r, orgID)
		case len(parts) == 3:
			a.handleOrgUser(w, r, orgID, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "conversations":
		switch {
		case len(parts) == 2:
			a.handleConversations(w, r, orgID)
		case len(parts) == 3 && parts[2] == "me":
			a.handleMyConversations(w, r, orgID)
		case len(parts) == 3:
			a.handleConversation(w, r, orgID, parts[2])
		case len(parts) == 4 && parts[3] == "messages":
			a.handleMessages(w, r, orgID, parts[2])
		case len(parts) == 5 && parts[3] == "messages":
			a.handleMessage(w, r, orgID, parts[2], parts[4])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrganizationItem(w http.ResponseWriter, r *http.Request, orgID string) {
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.authz.OrganizationScope(r.Context(), g, orgID); err != nil {
		a.deny(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if err := a.authz.RequirePermissions(g, auth.PermReadOrg); err != nil {
			a.deny(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g.Organization)
	case http.MethodPatch:
		if err := a.authz.RequirePermissions(g, auth.PermUpdateOrg); err != nil {
			a.deny(w, r, err)
			return
		}
		a.updateOrganization(w, r, g)
	case http.MethodDelete:
		if err := a.authz.RequirePermissions(g, auth.PermDeleteOrg); err != nil {
			a.deny(w, r, err)
			return
		}
		permanent := r.URL.Query().Get("permanent") == "true"
		if err := a.store.Organizations().Delete(r.Context(), g.Organization.ID, !permanent); err != nil {
			handleStoreError(w, r, err, "organization not found")
			return
		}
		_ = audit.LogEvent(r.Context(), "organization.delete", map[string]any{
			"organization_id": g.Organization.ID,
			"permanent":       permanent,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "organization deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) updateOrganization(w http.ResponseWriter, r *http.Request, g *auth.Grant) {
	var req updateOrgRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org := *g.Organization
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "name must not be empty")
			return
		}
		org.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		org.Description = strings.TrimSpace(*req.Description)
	}
	if req.OwnerID != nil {
		org.OwnerID = strings.TrimSpace(*req.OwnerID)
	}
	if req.Disabled != nil {
		// Re-enabling a tenant is a platform decision.
		if *req.Disabled != org.Disabled && !g.Principal.Role.PlatformTier() {
			a.deny(w, r, auth.Forbidden("only platform staff may toggle an organization"))
			return
		}
		org.Disabled = *req.Disabled
	}
	if err := a.store.Organizations().Update(r.Context(), &org); err != nil {
		handleStoreError(w, r, err, "organization not found")
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.update", map[string]any{
		"organization_id": org.ID,
	})
	writeJSON(w, http.StatusOK, &org)
}

// --- organization users ---

func (a *API) handleOrgUsers(w http.ResponseWriter, r *http.Request, orgID string) {
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.authz.OrganizationScope(r.Context(), g, orgID); err != nil {
		a.deny(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if err := a.authz.RequirePermissions(g, auth.PermReadOrgUser); err != nil {
			a.deny(w, r, err)
			return
		}
		opts, err := parseListOptions(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		page, err := a.store.Users().List(r.Context(),
			auth.UserFilter{OrganizationID: g.Organization.ID}, opts)
		if err != nil {
			handleStoreError(w, r, err, "users not found")
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		if err := a.authz.RequirePermissions(g, auth.PermCreateOrgUser); err != nil {
			a.deny(w, r, err)
			return
		}
		if g.Organization.Disabled {
			writeError(w, r, http.StatusBadRequest, "organization is disabled")
			return
		}
		a.createUser(w, r, g, g.Organization.ID, auth.OrganizationRoles)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleOrgUser(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.authz.OrgUserManagingScope(r.Context(), g, orgID, userID); err != nil {
		a.deny(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if err := a.authz.RequirePermissions(g, auth.PermReadOrgUser); err != nil {
			a.deny(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g.Target)
	case http.MethodPatch:
		if err := a.authz.RequirePermissions(g, auth.PermUpdateOrgUser); err != nil {
			a.deny(w, r, err)
			return
		}
		if g.Organization.Disabled {
			writeError(w, r, http.StatusBadRequest, "organization is disabled")
			return
		}
		a.updateUser(w, r, g, auth.OrganizationRoles)
	case http.MethodDelete:
		if err := a.authz.RequirePermissions(g, auth.PermDeleteOrgUser); err != nil {
			a.deny(w, r, err)
			return
		}
		a.deleteUser(w, r, g)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// handleRegister is the public guest signup under an organization.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	org, err := a.store.Organizations().Retrieve(r.Context(), orgID)
	if err != nil {
		handleStoreError(w, r, err, "organization not found")
		return
	}
	if org.Disabled {
		writeError(w, r, http.StatusBadRequest, "organization is disabled")
		return
	}
	var reg auth.GuestRegistration
	if err := decodeJSON(w, r, &reg); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, user, err := a.svc.Register(r.Context(), org.ID, reg)
	if err != nil {
		a.deny(w, r, err)
		return
	}
	obs.TokenIssued("register")
	_ = audit.LogEvent(r.Context(), "user.register", map[string]any{
		"user_id":         user.ID,
		"organization_id": org.ID,
	})
	writeJSON(w, http.StatusCreated, tok)
}
