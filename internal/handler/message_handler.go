package handler

import (
	"net/http"

	"chatline/internal/pkg/resp"
)

// HandleListMessages returns the stored history as a bare array, oldest first.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondOK(w, r, deps.Hub.History())
	}
}
