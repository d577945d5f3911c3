package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"engagement-ledger/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

func serve(t *testing.T, err error) (*httptest.ResponseRecorder, errorBody) {
	t.Helper()

	r := gin.New()
	r.Use(Error())
	r.GET("/", func(c *gin.Context) { _ = c.Error(err) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestErrorRendersBaseError(t *testing.T) {
	be := errutil.BaseError{Code: errutil.StatusConflict, Reason: "ALREADY_PERFORMED", Message: "action already rewarded"}

	w, body := serve(t, be)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "CONFLICT", body.Error.Code)
	require.Equal(t, "ALREADY_PERFORMED", body.Error.Reason)
}

func TestErrorRendersTooManyRequests(t *testing.T) {
	w, body := serve(t, errutil.TooManyRequest("slow down", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "slow down", body.Error.Message)
}

func TestErrorHidesUnknownErrors(t *testing.T) {
	w, body := serve(t, errors.New("pq: connection refused"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "internal error", body.Error.Message)
}

func TestErrorLogsRejectedRequestWithBody(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	payload := `{"amount":0,"reference_id":"promo-7"}`
	var seen string

	r := gin.New()
	r.Use(Error())
	r.POST("/v1/accounts/:id/grants", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		seen = string(b)
		_ = c.Error(errutil.BaseError{Code: errutil.StatusBadRequest, Reason: "INVALID_ARGUMENT", Message: "amount: must be a positive integer"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/accounts/acc-1/grants", strings.NewReader(payload)))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, payload, seen)

	rejected := logs.FilterMessage("request rejected").All()
	require.Len(t, rejected, 1)
	require.Equal(t, zapcore.WarnLevel, rejected[0].Level)

	fields := rejected[0].ContextMap()
	require.Equal(t, "INVALID_ARGUMENT", fields["reason"])
	require.Equal(t, "/v1/accounts/:id/grants", fields["path"])
	require.Equal(t, payload, fields["body"])
	require.Equal(t, map[string]string{"id": "acc-1"}, fields["params"])
}

func TestErrorKeepsLongBodiesIntact(t *testing.T) {
	payload := strings.Repeat("x", maxLoggedBody*2)
	var seen int

	r := gin.New()
	r.Use(Error())
	r.POST("/", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		seen = len(b)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload)))

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, len(payload), seen)
}
