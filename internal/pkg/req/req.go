/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes JSON bodies strictly (known fields only, a single value, bounded size)
and reports failures as CustomError values the resp package can render.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"chatline/internal/pkg/errs"
)

// MaxJSONBodySize is the largest request body BindJSON will read.
const MaxJSONBodySize int64 = 64 << 10 // 64 KB

// BindJSON decodes the JSON request body into dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
