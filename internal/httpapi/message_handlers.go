package httpapi

import (
	"net/http"

	"parley.chat/internal/audit"
	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
)

// canReadConversation mirrors the conversation read rule: staff readers
// hold read_org_content, participants get by with use_org_content.
func (a *API) canReadConversation(g *auth.Grant, conv *chat.Conversation) error {
	if err := a.authz.RequirePermissions(g, auth.PermReadOrgContent); err != nil {
		if !conv.IsParticipant(g.Principal.ID) {
			return err
		}
		return a.authz.RequirePermissions(g, auth.PermUseOrgContent)
	}
	return nil
}

func (a *API) handleMessages(w http.ResponseWriter, r *http.Request, orgID, convID string) {
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.authz.OrganizationScope(r.Context(), g, orgID); err != nil {
		a.deny(w, r, err)
		return
	}
	conv, err := a.chat.Retrieve(r.Context(), g.Organization.ID, convID)
	if err != nil {
		handleStoreError(w, r, err, "conversation not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if err := a.canReadConversation(g, conv); err != nil {
			a.deny(w, r, err)
			return
		}
		opts, err := parseListOptions(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		page, err := a.chat.ListMessages(r.Context(), conv.ID, opts)
		if err != nil {
			handleStoreError(w, r, err, "messages not found")
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		if err := a.authz.RequirePermissions(g, auth.PermUseOrgContent); err != nil {
			a.deny(w, r, err)
			return
		}
		// Only members of the conversation may post into it.
		if !conv.IsParticipant(g.Principal.ID) {
			a.deny(w, r, auth.Forbidden("not a participant of this conversation"))
			return
		}
		if g.Organization.Disabled || conv.Disabled {
			writeError(w, r, http.StatusBadRequest, "conversation is disabled")
			return
		}
		var req chat.CreateMessage
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		msg, err := a.chat.CreateMessage(r.Context(), conv, g.Principal.ID, req)
		if err != nil {
			handleStoreError(w, r, err, "message not found")
			return
		}
		_ = audit.LogEvent(r.Context(), "message.create", map[string]any{
			"message_id":      msg.ID,
			"conversation_id": conv.ID,
			"type":            string(msg.Type),
		})
		writeJSON(w, http.StatusCreated, msg)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleMessage(w http.ResponseWriter, r *http.Request, orgID, convID, msgID string) {
	g, r := a.authenticate(w, r)
	if g == nil {
		return
	}
	if err := a.authz.OrganizationScope(r.Context(), g, orgID); err != nil {
		a.deny(w, r, err)
		return
	}
	conv, err := a.chat.Retrieve(r.Context(), g.Organization.ID, convID)
	if err != nil {
		handleStoreError(w, r, err, "conversation not found")
		return
	}
	msg, err := a.chat.RetrieveMessage(r.Context(), conv.ID, msgID)
	if err != nil {
		handleStoreError(w, r, err, "message not found")
		return
	}
	// Authors manage their own messages; everyone else needs the
	// moderation permission for the method.
	author := msg.SenderID == g.Principal.ID && conv.IsParticipant(g.Principal.ID)
	switch r.Method {
	case http.MethodGet:
		if err := a.canReadConversation(g, conv); err != nil {
			a.deny(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	case http.MethodPatch:
		if author {
			if err := a.authz.RequirePermissions(g, auth.PermUseOrgContent); err != nil {
				a.deny(w, r, err)
				return
			}
		} else if err := a.authz.RequirePermissions(g, auth.PermUpdateOrgContent); err != nil {
			a.deny(w, r, err)
			return
		}
		if g.Organization.Disabled || conv.Disabled {
			writeError(w, r, http.StatusBadRequest, "conversation is disabled")
			return
		}
		var req chat.UpdateMessage
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.chat.UpdateMessage(r.Context(), conv.ID, msg.ID, req)
		if err != nil {
			handleStoreError(w, r, err, "message not found")
			return
		}
		_ = audit.LogEvent(r.Context(), "message.update", map[string]any{
			"message_id":      updated.ID,
			"conversation_id": conv.ID,
		})
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if author {
			if err := a.authz.RequirePermissions(g, auth.PermUseOrgContent); err != nil {
				a.deny(w, r, err)
				return
			}
		} else if err := a.authz.RequirePermissions(g, auth.PermDeleteOrgContent); err != nil {
			a.deny(w, r, err)
			return
		}
		permanent := r.URL.Query().Get("permanent") == "true"
		if err := a.chat.DeleteMessage(r.Context(), conv.ID, msg.ID, !permanent); err != nil {
			handleStoreError(w, r, err, "message not found")
			return
		}
		_ = audit.LogEvent(r.Context(), "message.delete", map[string]any{
			"message_id":      msg.ID,
			"conversation_id": conv.ID,
			"permanent":       permanent,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "message deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
