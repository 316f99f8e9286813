/*
Package resp provides helper functions for sending HTTP JSON responses from the development relay.

Success payloads are written as-is so that endpoints can honor the fixed chat
contract (a bare message array, a {"success": bool} object). Errors use a
unified {code, message} envelope built from a CustomError.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"chatline/internal/pkg/errs"
	"chatline/internal/pkg/logx"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	// Code is the business error code (see errs package).
	Code int `json:"code"`

	// Message is the client-friendly error message.
	Message string `json:"message"`
}

// RespondJSON sets the Content-Type and sends the JSON payload with httpStatus.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(
			err,
			"Error encoding JSON response",
			"http_status", httpStatus,
			"path", r.URL.Path,
		)

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondOK sends payload with HTTP 200.
func RespondOK(w http.ResponseWriter, r *http.Request, payload any) {
	RespondJSON(w, r, http.StatusOK, payload)
}

// RespondError sends the code and message of customErr with its HTTP status.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	RespondJSON(w, r, customErr.Status, ErrorResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}
