package validation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expense-validation-svc/src/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	png []byte
	err error
}

func (r *stubRenderer) Render(url string) ([]byte, error) {
	return r.png, r.err
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		App: config.Application{
			Name:    "expense-validation-svc",
			Timeout: 30,
			BaseUrl: "https://validator.example.com",
		},
		Session: config.SessionConfig{
			ExpirationMinutes: 10,
			MobilePath:        "/mobile",
		},
	}
}

func newHandlerFixture(t *testing.T) (*serviceFixture, *stubRenderer, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newServiceFixture(t)
	renderer := &stubRenderer{png: []byte("png-bytes")}
	h := NewHandler(testConfig(), f.service, f.store, renderer)

	router := gin.New()
	router.POST("/api/v1/validation/session/create", h.CreateSession)
	router.GET("/api/v1/validation/session/:id", h.GetSession)
	router.POST("/api/v1/validation/analyze", h.Analyze)
	router.GET("/api/v1/admin/sessions", h.GetActiveSessions)
	router.GET("/api/v1/admin/validations", h.GetRecentValidations)

	return f, renderer, router
}

func TestCreateSessionEndpoint(t *testing.T) {
	_, _, router := newHandlerFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validation/session/create", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Len(t, resp.SessionID, 32)
	assert.NotContains(t, resp.SessionID, "-")
	assert.Equal(t, StatusCreated, resp.Status)
	assert.Equal(t, "https://validator.example.com/mobile?session="+resp.SessionID, resp.MobileUrl)

	decoded, err := base64.StdEncoding.DecodeString(resp.QrCodeBase64)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), decoded)

	assert.Equal(t, resp.CreatedAt.Add(10*time.Minute), resp.ExpiresAt)
}

func TestCreateSessionEndpointRendererFailure(t *testing.T) {
	_, renderer, router := newHandlerFixture(t)
	renderer.png = nil
	renderer.err = errors.New("encode failed")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validation/session/create", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CREATE_SESSION_ERROR", resp.ErrorCode)
	assert.True(t, resp.IsRecoverable)
	assert.NotEmpty(t, resp.SuggestedAction)
}

func TestGetSessionEndpoint(t *testing.T) {
	f, _, router := newHandlerFixture(t)
	_, err := f.store.Create("abc123", "conn-admin")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/validation/session/abc123", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["exists"])
	assert.Equal(t, StatusCreated, resp["status"])
}

func TestGetSessionEndpointNotFound(t *testing.T) {
	_, _, router := newHandlerFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/validation/session/missing", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeSessionNotFound, resp.ErrorCode)
	assert.Equal(t, "missing", resp.SessionID)
	assert.False(t, resp.IsRecoverable)
	assert.Equal(t, "Scan a new QR code", resp.SuggestedAction)
}

func TestAnalyzeEndpoint(t *testing.T) {
	f, _, router := newHandlerFixture(t)
	_, err := f.store.Create("abc123", "conn-admin")
	require.NoError(t, err)

	body := `{"sessionId":"abc123","imageBase64":"aGVsbG8=","description":"chair"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validation/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var verdict Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verdict))
	assert.Equal(t, "Office chair", verdict.ProductName)
	assert.True(t, verdict.IsDeductible)
}

func TestAnalyzeEndpointEmptyImage(t *testing.T) {
	f, _, router := newHandlerFixture(t)
	_, err := f.store.Create("abc123", "conn-admin")
	require.NoError(t, err)

	body := `{"sessionId":"abc123","imageBase64":""}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validation/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeInvalidImage, resp.ErrorCode)
	assert.True(t, resp.IsRecoverable)
}

func TestAnalyzeEndpointUnknownSession(t *testing.T) {
	_, _, router := newHandlerFixture(t)

	body := `{"sessionId":"missing","imageBase64":"aGVsbG8="}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validation/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeSessionNotFound, resp.ErrorCode)
	assert.False(t, resp.IsRecoverable)
}

func TestAnalyzeEndpointAnalyzerFailureStillOK(t *testing.T) {
	f, _, router := newHandlerFixture(t)
	f.analyzer.result = nil
	f.analyzer.err = errors.New("upstream timeout")

	_, err := f.store.Create("abc123", "conn-admin")
	require.NoError(t, err)

	body := `{"sessionId":"abc123","imageBase64":"aGVsbG8="}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validation/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var verdict Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verdict))
	assert.True(t, verdict.RequiresManualReview)
}

func TestGetActiveSessionsEndpoint(t *testing.T) {
	f, _, router := newHandlerFixture(t)
	_, err := f.store.Create("abc123", "conn-admin")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/sessions", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool    `json:"success"`
		Data    []*Info `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "abc123", resp.Data[0].SessionID)
}

func TestGetRecentValidationsEndpoint(t *testing.T) {
	f, _, router := newHandlerFixture(t)
	f.audit.records = []*AuditRecord{
		{ValidationID: "v-1", SessionID: "abc123", ProductName: "Laptop"},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/validations?limit=10", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool           `json:"success"`
		Data    []*AuditRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "v-1", resp.Data[0].ValidationID)
}
