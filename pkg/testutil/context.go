package testutil

import (
	"net/http"

	id "cityledger/pkg/domain"
	"cityledger/pkg/requestcontext"
)

// WithSubmitter attaches an authenticated participant to the request context,
// as the auth middleware would.
func WithSubmitter(req *http.Request, submitter id.Ref) *http.Request {
	return req.WithContext(requestcontext.WithSubmitter(req.Context(), submitter))
}
