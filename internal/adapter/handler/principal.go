package handler

import (
	"net/http"
	"strings"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

// Identity is resolved by the gateway in front of this service and forwarded
// in these headers. The same keys are read from gRPC metadata in lower case.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

func principalFromRequest(r *http.Request) domain.Principal {
	return newPrincipal(
		r.Header.Get(HeaderUserID),
		r.Header.Get(HeaderUserName),
		r.Header.Get(HeaderUserEmail),
		r.Header.Get(HeaderUserRole),
	)
}

func newPrincipal(id, name, email, role string) domain.Principal {
	return domain.Principal{
		ID:       strings.TrimSpace(id),
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Operator: isOperatorRole(role),
	}
}

func isOperatorRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "operator", "admin":
		return true
	}
	return false
}
