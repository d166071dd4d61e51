package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"licensing-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func newRouter(err error) *gin.Engine {
	r := gin.New()
	r.Use(Error())
	r.GET("/", func(c *gin.Context) {
		_ = c.Error(err)
	})
	return r
}

func TestErrorRendersBaseError(t *testing.T) {
	r := newRouter(errutil.PreconditionFailed("payment required", nil, errutil.WithReason("precondition_failed")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusPreconditionFailed, w.Code)

	var body struct {
		Error struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "precondition_failed", body.Error.Reason)
	require.Equal(t, string(errutil.StatusPreconditionFailed), body.Error.Code)
}

func TestErrorHidesUnknownErrors(t *testing.T) {
	r := newRouter(errors.New("secret detail"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "secret detail")
}
