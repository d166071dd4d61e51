package licence

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"licensing-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
)

func newTestRouter(env *testEnv) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(env.issuer, env.verifier, env.repo, env.artifacts, env.keys).Register(r)
	return r
}

func serve(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code   string `json:"code"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func TestHandlerIssueAndVerify(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()
	r := newTestRouter(env)

	w := serve(r, http.MethodPost, "/v1/councils/C1/requests/R1/licence", "", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var lic Licence
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lic))
	require.Equal(t, StatusActive, lic.Status)

	w = serve(r, http.MethodGet, "/v1/licences/"+lic.LicenceNo+"/verify", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res VerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Valid)
	require.Equal(t, StatusActive, res.Status)

	w = serve(r, http.MethodGet, "/v1/licences/"+lic.LicenceNo+"/artifact", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, ContentTypePDF, w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), strings.ToLower(lic.LicenceNo)+".pdf")
	require.Equal(t, lic.PDFHash, HashBytes(w.Body.Bytes()))
}

func TestHandlerIssueWithDates(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, true)
	env.expectDispatch()
	r := newTestRouter(env)

	w := serve(r, http.MethodPost, "/v1/councils/C1/requests/R1/licence",
		`{"issue_date":"2026-03-01T00:00:00Z","expiry_date":"2026-09-01T00:00:00Z"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var lic Licence
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lic))
	require.Contains(t, lic.LicenceNo, "LIC-2026-")
	require.Equal(t, "2026-09-01", lic.ExpiryDate.Format("2006-01-02"))
}

func TestHandlerIssueErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, false)
	r := newTestRouter(env)

	cases := []struct {
		name   string
		path   string
		body   string
		actor  string
		status int
		reason string
	}{
		{"unpaid", "/v1/councils/C1/requests/R1/licence", "", "applicant", http.StatusPreconditionFailed, ReasonPrecondition},
		{"unknown request", "/v1/councils/C1/requests/R9/licence", "", "applicant", http.StatusNotFound, ReasonNotFound},
		{"bad body", "/v1/councils/C1/requests/R1/licence", `{"issue_date":"yesterday"}`, "applicant", http.StatusBadRequest, ReasonValidation},
		{"bad dates", "/v1/councils/C1/requests/R1/licence", `{"issue_date":"2026-03-01T00:00:00Z","expiry_date":"2026-01-01T00:00:00Z"}`, "council_admin", http.StatusBadRequest, ReasonValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(r, http.MethodPost, tc.path, tc.body, map[string]string{ActorRoleHeader: tc.actor})
			require.Equal(t, tc.status, w.Code, w.Body.String())

			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, tc.reason, body.Error.Reason)
		})
	}
}

func TestHandlerIssueBypassHeader(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, false)
	env.expectDispatch()
	r := newTestRouter(env)

	w := serve(r, http.MethodPost, "/v1/councils/C1/requests/R1/licence", "", map[string]string{ActorRoleHeader: "system_admin"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHandlerVerifyUnknown(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)

	w := serve(r, http.MethodGet, "/v1/licences/LIC-2026-0000/verify", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res VerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.False(t, res.Valid)
	require.Equal(t, StatusNotFound, res.Status)

	w = serve(r, http.MethodGet, "/v1/licences/LIC-2026-0000/artifact", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerJWKS(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)

	w := serve(r, http.MethodGet, "/v1/councils/C1/jwks", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	kp, err := env.keys.GetOrCreateKeyPair(t.Context(), "C1")
	require.NoError(t, err)

	w = serve(r, http.MethodGet, "/v1/councils/C1/jwks", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var set jose.JSONWebKeySet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	require.Equal(t, kp.KeyID, set.Keys[0].KeyID)
	require.Equal(t, JWKAlgorithm, set.Keys[0].Algorithm)
	require.Equal(t, "sig", set.Keys[0].Use)

	pub, err := ParsePublicKey(kp.PublicKeyPEM)
	require.NoError(t, err)
	require.True(t, pub.Equal(set.Keys[0].Key))
}
