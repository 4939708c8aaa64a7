package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRedactBody(t *testing.T) {
	body := []byte(`{"quote_id":"q1","sig":"0xdead","nested":{"signature":"0xbeef","private_key":"k"}}`)
	out := redactBody("/v1/trades", body)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Equal(t, "q1", data["quote_id"])
	assert.Equal(t, "***", data["sig"])
	nested := data["nested"].(map[string]any)
	assert.Equal(t, "***", nested["signature"])
	assert.Equal(t, "***", nested["private_key"])

	assert.Equal(t, `{"ok":true}`, redactBody("/health", []byte(`{"ok":true}`)))
	assert.Equal(t, "[redacted]", redactBody("/v1/trades", []byte("not-json")))
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(), ErrorHandler())
	r.Use(handlers...)
	r.GET("/v1/markets", func(c *gin.Context) { c.JSON(http.StatusOK, []string{"WETH/DAI"}) })
	r.POST("/v1/quotes", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/trades", func(c *gin.Context) {
		_ = c.Error(apperrors.New(apperrors.ErrQuoteExpired, "quote q1 expired", nil))
	})
	return r
}

func serve(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	w := serve(newRouter(), http.MethodPost, "/v1/trades", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "QUOTE_EXPIRED", body["code"])
	assert.Equal(t, "Request a fresh quote.", body["suggestion"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	w := serve(newRouter(), http.MethodGet, "/v1/markets", http.Header{HeaderRequestID: {"abc"}})
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware("secret"))

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/v1/markets", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/v1/markets", http.Header{HeaderGatewayKey: {"nope"}}).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/markets", http.Header{HeaderGatewayKey: {"secret"}}).Code)

	open := newRouter(AuthMiddleware(""))
	assert.Equal(t, http.StatusOK, serve(open, http.MethodGet, "/v1/markets", nil).Code)
}

func TestReadOnlyMiddleware(t *testing.T) {
	r := newRouter(ReadOnlyMiddleware(true))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/markets", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/v1/quotes", nil).Code)

	w := serve(r, http.MethodPost, "/v1/trades", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "READ_ONLY")
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newRouter(RateLimitMiddleware(NewClientLimiter(0.001, 2)))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/markets", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/markets", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/v1/markets", nil).Code)

	unlimited := newRouter(RateLimitMiddleware(NewClientLimiter(0, 0)))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(unlimited, http.MethodGet, "/v1/markets", nil).Code)
	}
}
