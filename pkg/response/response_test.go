package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gameshop-api/pkg/apierror"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestFields(t *testing.T) {
	rec := httptest.NewRecorder()
	Fields(rec, http.StatusOK, map[string]interface{}{"found": true, "status": "PENDING"})

	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, true, body["found"])
	require.Equal(t, "PENDING", body["status"])
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestError(t *testing.T) {
	t.Run("ok, wrapped api error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := fmt.Errorf("tear: %w", apierror.Conflict("pool is empty").WithCode("POOL_EXHAUSTED"))
		Error(rec, err)

		require.Equal(t, http.StatusConflict, rec.Code)
		body := decode(t, rec)
		require.Equal(t, false, body["success"])
		errBody := body["error"].(map[string]interface{})
		require.Equal(t, "POOL_EXHAUSTED", errBody["code"])
		require.Equal(t, "pool is empty", errBody["message"])
	})

	t.Run("ok, unknown error hides details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Error(rec, fmt.Errorf("db password is hunter2"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotContains(t, rec.Body.String(), "hunter2")
	})
}
