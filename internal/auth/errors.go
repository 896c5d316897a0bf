package auth

import (
	"errors"
	"net/http"
)

// ErrInvalidToken is the single failure returned by Codec.Verify for any
// malformed, tampered or wrongly signed token. Callers cannot distinguish
// the cases, which keeps the outward rejection uniform.
var ErrInvalidToken = errors.New("auth: invalid token")

// Messages surfaced to clients by the authorization pipeline. They are
// deliberately generic so rejections do not leak which check failed.
const (
	MsgCredentials  = "could not validate credentials"
	MsgTokenExpired = "token expired"
	MsgInactiveUser = "inactive user"
	MsgBadLogin     = "incorrect username or password"
)

// Denial is a pipeline rejection carrying the HTTP status to map it to.
type Denial struct {
	Status  int
	Message string
}

func (d *Denial) Error() string { return d.Message }

// Class buckets the denial for metrics.
func (d *Denial) Class() string {
	switch d.Status {
	case http.StatusUnauthorized:
		return "credentials"
	case http.StatusForbidden:
		return "authorization"
	default:
		return "request"
	}
}

func Unauthorized(msg string) *Denial {
	return &Denial{Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Denial {
	return &Denial{Status: http.StatusForbidden, Message: msg}
}

func BadRequest(msg string) *Denial {
	return &Denial{Status: http.StatusBadRequest, Message: msg}
}

func NotFound(msg string) *Denial {
	return &Denial{Status: http.StatusNotFound, Message: msg}
}
