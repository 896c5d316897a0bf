package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// User is a principal record. Platform-tier users carry an empty
// OrganizationID.
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	FullName       string `json:"full_name,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	Role           Role   `json:"role"`
	Disabled       bool   `json:"disabled"`
	HashedPassword string `json:"-"`
}

// Organization is a tenant boundary for users and conversations.
type Organization struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	Disabled    bool   `json:"disabled"`
}

// Token is an issued access/refresh pair as returned to clients.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Hash is a content digest over both token strings. The token store keys
// cache eviction on it so that only the exact cached pair is dropped.
func (t Token) Hash() string {
	sum := sha256.Sum256([]byte(t.AccessToken + "." + t.RefreshToken))
	return hex.EncodeToString(sum[:])
}

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateUsername enforces the username charset and length bounds.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) < 4 || len(username) > 32 {
		return fmt.Errorf("username must be between 4 and 32 characters")
	}
	if !usernameRE.MatchString(username) {
		return fmt.Errorf("username may contain only letters, digits, underscore and hyphen")
	}
	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}
