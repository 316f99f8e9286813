package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/pkg/errs"
)

type passwordBody struct {
	Password string `json:"password"`
}

func newJSONRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/verify-admin", strings.NewReader(body))
	r.Header.Set("Content-Type", contentType)
	return r
}

func TestBindJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantCode    int
	}{
		{name: "valid", body: `{"password":"x"}`, contentType: "application/json; charset=utf-8"},
		{name: "wrong media type", body: `{"password":"x"}`, contentType: "text/plain", wantCode: errs.ErrUnsupportedMediaType},
		{name: "broken json", body: `{"password":`, contentType: "application/json", wantCode: errs.ErrInvalidJSONFormat},
		{name: "unknown field", body: `{"pass":"x"}`, contentType: "application/json", wantCode: errs.ErrInvalidJSONFormat},
		{name: "trailing value", body: `{"password":"x"}{"password":"y"}`, contentType: "application/json", wantCode: errs.ErrExtraContentInBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst passwordBody
			err := BindJSON(httptest.NewRecorder(), newJSONRequest(tt.body, tt.contentType), &dst)

			if tt.wantCode == 0 {
				require.Nil(t, err)
				assert.Equal(t, "x", dst.Password)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
		})
	}
}
