package testutil

import (
	"net/http"

	id "irpf/pkg/domain"
	"irpf/pkg/requestcontext"
)

// WithOwner adds an authenticated owner to the request context, the way the
// auth middleware does for a valid bearer token.
func WithOwner(req *http.Request, owner id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), owner))
}

// WithAdmin marks the request as carrying the admin capability.
func WithAdmin(req *http.Request, owner id.UserID) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), owner)
	return req.WithContext(requestcontext.WithAdmin(ctx, true))
}
