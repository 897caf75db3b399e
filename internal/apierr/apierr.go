// Package apierr defines the machine readable error codes the HTTP boundary
// returns and clients key their behavior off.
package apierr

// Error codes carried in the "error" field of JSON error responses.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeUnauthorized      = "unauthorized"
	CodeReauthRequired    = "reauth_required"
	CodeRefreshInProgress = "refresh_in_progress"
	CodePublishFailed     = "publish_failed"
	CodeServerError       = "server_error"
)

// Response is the JSON body of every error the service emits.
type Response struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}
