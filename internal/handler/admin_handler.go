/*
Package handler provides the HTTP surface of the development relay.

This file contains the admin password check behind POST /api/verify-admin.
*/
package handler

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"chatline/internal/pkg/errs"
	"chatline/internal/pkg/logx"
	"chatline/internal/pkg/req"
	"chatline/internal/pkg/resp"
)

type VerifyAdminRequest struct {
	Password string `json:"password"`
}

type VerifyAdminResponse struct {
	Success bool `json:"success"`
}

// HandleVerifyAdmin answers whether the submitted password is the admin password.
// A wrong password is a 200 with success=false.
func HandleVerifyAdmin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body VerifyAdminRequest
		if bindErr := req.BindJSON(w, r, &body); bindErr != nil {
			logx.Warn("Verify-admin request rejected: invalid body.", "code", bindErr.Code)
			resp.RespondError(w, r, bindErr)
			return
		}

		if body.Password == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		err := bcrypt.CompareHashAndPassword(deps.AdminHash, []byte(body.Password))
		switch {
		case err == nil:
			logx.Info("Admin password verified.")
			resp.RespondOK(w, r, VerifyAdminResponse{Success: true})
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			logx.Info("Admin password rejected.")
			resp.RespondOK(w, r, VerifyAdminResponse{Success: false})
		default:
			logx.Error(err, "Failed to compare admin password hash")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		}
	}
}
