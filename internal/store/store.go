// Package store holds the vocabulary shared by all storage backends:
// sentinel errors, list options and the cursor page envelope.
package store

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrInvalidInput  = errors.New("store: invalid input")
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListOptions carries the common cursor-pagination parameters. Start and
// Before are entity ids; since ids are lexicographically sortable, cursor
// comparisons are plain string comparisons.
type ListOptions struct {
	Disabled *bool
	Sort     string
	Start    string
	Before   string
	Limit    int
}

// Normalize clamps the limit into [1, max] (defaulting to def) and
// canonicalizes the sort order.
func (o ListOptions) Normalize(def, max int) ListOptions {
	if o.Limit <= 0 {
		o.Limit = def
	}
	if o.Limit > max {
		o.Limit = max
	}
	if strings.ToLower(o.Sort) == SortDesc {
		o.Sort = SortDesc
	} else {
		o.Sort = SortAsc
	}
	return o
}

// InWindow reports whether id falls inside the cursor window for the
// configured sort order.
func (o ListOptions) InWindow(id string) bool {
	if o.Sort == SortDesc {
		if o.Start != "" && id > o.Start {
			return false
		}
		if o.Before != "" && id <= o.Before {
			return false
		}
		return true
	}
	if o.Start != "" && id < o.Start {
		return false
	}
	if o.Before != "" && id >= o.Before {
		return false
	}
	return true
}

// Page is the list envelope returned by every collection endpoint.
type Page[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	FirstID string `json:"first_id,omitempty"`
	LastID  string `json:"last_id,omitempty"`
	HasMore bool   `json:"has_more"`
}

// NewPage truncates items to limit and fills the envelope. The id function
// extracts the cursor id of an item.
func NewPage[T any](items []T, limit int, id func(T) string) Page[T] {
	page := Page[T]{Object: "list", Data: items}
	if limit > 0 && len(items) > limit {
		page.Data = items[:limit]
		page.HasMore = true
	}
	if len(page.Data) > 0 {
		page.FirstID = id(page.Data[0])
		page.LastID = id(page.Data[len(page.Data)-1])
	}
	return page
}
