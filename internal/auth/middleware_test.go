package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// okHandler writes 200 "ok".
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func call(t *testing.T, h http.Handler, target, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if key != "" {
		r.Header.Set(header, key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestAPIKey_ModeNone_PassesThrough(t *testing.T) {
	h := APIKey("none", "X-API-Key", "secret")(okHandler)
	// No key on the request; should still pass because mode != "apikey".
	require.Equal(t, http.StatusOK, call(t, h, "/", "", "").Code)
}

func TestAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	h := APIKey("apikey", "X-API-Key", "")(okHandler)
	require.Equal(t, http.StatusOK, call(t, h, "/", "", "").Code)
}

func TestAPIKey_CorrectKey_Passes(t *testing.T) {
	h := APIKey("apikey", "X-API-Key", "supersecret")(okHandler)
	w := call(t, h, "/", "X-API-Key", "supersecret")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestAPIKey_WrongKey_Unauthorized(t *testing.T) {
	h := APIKey("apikey", "X-API-Key", "supersecret")(okHandler)
	w := call(t, h, "/", "X-API-Key", "wrong")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid api key")
}

func TestAPIKey_MissingHeader_Unauthorized(t *testing.T) {
	h := APIKey("apikey", "X-API-Key", "supersecret")(okHandler)
	w := call(t, h, "/", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "missing api key")
}

func TestAPIKey_QueryParam(t *testing.T) {
	h := APIKey("apikey", "X-API-Key", "mytoken")(okHandler)
	require.Equal(t, http.StatusOK, call(t, h, "/ws/lobbies/1?api_key=mytoken", "", "").Code)
	require.Equal(t, http.StatusUnauthorized, call(t, h, "/ws/lobbies/1?api_key=nope", "", "").Code)
}

func TestAPIKey_CustomHeader(t *testing.T) {
	h := APIKey("apikey", "X-Lobby-Token", "mytoken")(okHandler)
	require.Equal(t, http.StatusOK, call(t, h, "/", "X-Lobby-Token", "mytoken").Code)
}
