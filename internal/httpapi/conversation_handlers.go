package httpapi

import (
	"net/http"

	"parley.chat/internal/audit"
	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
)

func (a *API) handleConversations(w http.ResponseWriter, r *http.Request, orgID string) {
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
		if err := a.authz.RequirePermissions(g, auth.PermReadOrgContent); err != nil {
			a.deny(w, r, err)
			return
		}
		opts, err := parseListOptions(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		page, err := a.chat.List(r.Context(), chat.Filter{OrganizationID: g.Organization.ID}, opts)
		if err != nil {
			handleStoreError(w, r, err, "conversations not found")
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		if err := a.authz.RequirePermissions(g, auth.PermCreateOrgContent); err != nil {
			a.deny(w, r, err)
			return
		}
		if g.Organization.Disabled {
			writeError(w, r, http.StatusBadRequest, "organization is disabled")
			return
		}
		a.createConversation(w, r, g)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createConversation(w http.ResponseWriter, r *http.Request, g *auth.Grant) {
	var req chat.Create
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Every participant must be a member of this organization.
	for _, id := range req.ParticipantIDs {
		member, err := a.store.Users().Retrieve(r.Context(), id)
		if err != nil {
			handleStoreError(w, r, err, "participant not found")
			return
		}
		if member.OrganizationID != g.Organization.ID {
			writeError(w, r, http.StatusBadRequest, "participants must belong to the organization")
			return
		}
	}
	conv, err := a.chat.Create(r.Context(), g.Organization.ID, req)
	if err != nil {
		handleStoreError(w, r, err, "conversation not found")
		return
	}
	_ = audit.LogEvent(r.Context(), "conversation.create", map[string]any{
		"conversation_id": conv.ID,
		"organization_id": conv.OrganizationID,
		"type":            string(conv.Type),
	})
	writeJSON(w, http.StatusCreated, conv)
}

// handleMyConversations lists the conversations the caller participates in.
// It only needs use_org_content, so org_client accounts can reach it.
func (a *API) handleMyConversations(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.authz.OrganizationScope(r.Context(), g, orgID); err != nil {
		a.deny(w, r, err)
		return
	}
	if err := a.authz.RequirePermissions(g, auth.PermUseOrgContent); err != nil {
		a.deny(w, r, err)
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := a.chat.List(r.Context(), chat.Filter{
		OrganizationID: g.Organization.ID,
		Participant:    g.Principal.ID,
	}, opts)
	if err != nil {
		handleStoreError(w, r, err, "conversations not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleConversation(w http.ResponseWriter, r *http.Request, orgID, convID string) {
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
		conv, err := a.chat.Retrieve(r.Context(), g.Organization.ID, convID)
		if err != nil {
			handleStoreError(w, r, err, "conversation not found")
			return
		}
		if err := a.canReadConversation(g, conv); err != nil {
			a.deny(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	case http.MethodPatch:
		if err := a.authz.RequirePermissions(g, auth.PermUpdateOrgContent); err != nil {
			a.deny(w, r, err)
			return
		}
		if g.Organization.Disabled {
			writeError(w, r, http.StatusBadRequest, "organization is disabled")
			return
		}
		var req chat.Update
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		conv, err := a.chat.Update(r.Context(), g.Organization.ID, convID, req)
		if err != nil {
			handleStoreError(w, r, err, "conversation not found")
			return
		}
		_ = audit.LogEvent(r.Context(), "conversation.update", map[string]any{
			"conversation_id": conv.ID,
		})
		writeJSON(w, http.StatusOK, conv)
	case http.MethodDelete:
		if err := a.authz.RequirePermissions(g, auth.PermDeleteOrgContent); err != nil {
			a.deny(w, r, err)
			return
		}
		permanent := r.URL.Query().Get("permanent") == "true"
		if err := a.chat.Delete(r.Context(), g.Organization.ID, convID, !permanent); err != nil {
			handleStoreError(w, r, err, "conversation not found")
			return
		}
		_ = audit.LogEvent(r.Context(), "conversation.delete", map[string]any{
			"conversation_id": convID,
			"permanent":       permanent,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "conversation deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
