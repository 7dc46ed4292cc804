package errorx

import (
	"encoding/json"
	"errors"
	"net/http"
)

type OAuth2Error struct {
	ErrorType        string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	// MessageID is the translation key of ErrorDescription, empty for dynamic text
	MessageID  string `json:"-"`
	HTTPStatus int    `json:"-"`
}

func (e *OAuth2Error) Error() string {
	out, _ := json.Marshal(e)
	return string(out)
}

// Is matches errors of the same kind regardless of their description
func (e *OAuth2Error) Is(target error) bool {
	t, ok := target.(*OAuth2Error)
	if !ok {
		return false
	}
	return e.ErrorType == t.ErrorType && e.ErrorCode == t.ErrorCode
}

// WithDescription returns a copy carrying a dynamic description
func (e *OAuth2Error) WithDescription(desc string) *OAuth2Error {
	cp := *e
	cp.ErrorDescription = desc
	cp.MessageID = ""
	return &cp
}

// WithMessage returns a copy carrying a translatable description
func (e *OAuth2Error) WithMessage(messageID, desc string) *OAuth2Error {
	cp := *e
	cp.ErrorDescription = desc
	cp.MessageID = messageID
	return &cp
}

var (
	ErrInvalidRequest = &OAuth2Error{
		ErrorType:  "invalid_request",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingClientID = &OAuth2Error{
		ErrorType:        "invalid_request",
		ErrorCode:        "missing_client_id",
		ErrorDescription: "Missing client_id parameter.",
		MessageID:        "ErrorMissingClientID",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrInvalidClientID = &OAuth2Error{
		ErrorType:        "invalid_request",
		ErrorCode:        "invalid_client_id",
		ErrorDescription: "Invalid client_id parameter value.",
		MessageID:        "ErrorInvalidClientID",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrInvalidClient = &OAuth2Error{
		ErrorType:        "invalid_client",
		ErrorDescription: "Client authentication failed.",
		MessageID:        "ErrorInvalidClient",
		HTTPStatus:       http.StatusUnauthorized,
	}

	ErrUnauthorizedClient = &OAuth2Error{
		ErrorType:        "unauthorized_client",
		ErrorDescription: "The client is not authorized to use this grant type.",
		MessageID:        "ErrorUnauthorizedClient",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrUnsupportedGrantType = &OAuth2Error{
		ErrorType:        "unsupported_grant_type",
		ErrorDescription: "Unsupported grant type.",
		MessageID:        "ErrorUnsupportedGrantType",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrInvalidScope = &OAuth2Error{
		ErrorType:        "invalid_scope",
		ErrorDescription: "The requested scope is invalid or exceeds the granted scope.",
		MessageID:        "ErrorInvalidScope",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrInvalidGrant = &OAuth2Error{
		ErrorType:  "invalid_grant",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrAccessDenied = &OAuth2Error{
		ErrorType:  "access_denied",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrAccessTokenMissing = &OAuth2Error{
		ErrorType:        "invalid_grant",
		ErrorCode:        "access_token_missing",
		ErrorDescription: "The access token of your Refresh Token does not exist.",
		MessageID:        "ErrorAccessTokenMissing",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrApplicationNotFound = &OAuth2Error{
		ErrorType:        "invalid_request",
		ErrorCode:        "application_not_found",
		ErrorDescription: "The application linked to the provided client_id could not be found.",
		MessageID:        "ErrorApplicationNotFound",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrIdentityConflict = &OAuth2Error{
		ErrorType:        "error",
		ErrorCode:        "identity_conflict",
		ErrorDescription: "A user with this email already exists.",
		MessageID:        "ErrorIdentityConflict",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrUnauthenticated = &OAuth2Error{
		ErrorType:        "detail",
		ErrorCode:        "not_authenticated",
		ErrorDescription: "Authentication credentials were not provided.",
		MessageID:        "ErrorNotAuthenticated",
		HTTPStatus:       http.StatusForbidden,
	}

	ErrServerError = &OAuth2Error{
		ErrorType:        "error",
		ErrorCode:        "server_error",
		ErrorDescription: "An unexpected error occurred.",
		MessageID:        "ErrorServerError",
		HTTPStatus:       http.StatusInternalServerError,
	}
)

// ConvertToOAuth2Error converts any error to OAuth2Error.
// Errors outside the taxonomy become ErrServerError and carry no internal detail.
func ConvertToOAuth2Error(err error) *OAuth2Error {
	var oauthErr *OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ErrServerError
}

// IsInternal reports whether err is outside the OAuth2 taxonomy
func IsInternal(err error) bool {
	return ConvertToOAuth2Error(err) == ErrServerError
}
