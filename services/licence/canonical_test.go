package licence

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"testing"

	"licensing-controlplane/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func scenarioPayload() LicencePayload {
	return LicencePayload{
		LicenceNo:       "LIC-2026-1234",
		CouncilID:       "C1",
		RequestID:       "R1",
		IssueDate:       "2026-01-01T00:00:00.000Z",
		ExpiryDate:      "2027-01-01T00:00:00.000Z",
		TradingName:     "Acme",
		ApplicantName:   "Jane Doe",
		PremisesAddress: "Section 1 Lot 2",
		ServiceName:     "Trading Licence",
	}
}

func TestCanonicalizeScenarioDigest(t *testing.T) {
	c, err := Canonicalize(scenarioPayload())
	require.NoError(t, err)

	require.Equal(t,
		`{"applicantName":"Jane Doe","councilId":"C1","expiryDate":"2027-01-01T00:00:00.000Z","issueDate":"2026-01-01T00:00:00.000Z","licenceNo":"LIC-2026-1234","premisesAddress":"Section 1 Lot 2","requestId":"R1","serviceName":"Trading Licence","tradingName":"Acme"}`,
		string(c.JSON))
	require.Equal(t, "3d1fb014cfff9fe945530be58a46fe45572f3e1941a6b3b0f614443c92127675", c.Hash)
}

func TestCanonicalizeHashIsDigestOfJSON(t *testing.T) {
	c, err := Canonicalize(scenarioPayload())
	require.NoError(t, err)

	sum := sha256.Sum256(c.JSON)
	require.Equal(t, hex.EncodeToString(sum[:]), c.Hash)
	require.Len(t, c.Hash, 64)
}

func TestCanonicalizeKeyOrderIndependent(t *testing.T) {
	a := map[string]any{
		"b": 1,
		"a": map[string]any{"y": "2", "x": []any{map[string]any{"d": true, "c": nil}}},
	}
	b := map[string]any{
		"a": map[string]any{"x": []any{map[string]any{"c": nil, "d": true}}, "y": "2"},
		"b": 1,
	}

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)

	require.Equal(t, ca.Hash, cb.Hash)
	require.Equal(t, `{"a":{"x":[{"c":null,"d":true}],"y":"2"},"b":1}`, string(ca.JSON))
}

func TestCanonicalizeStructMatchesEquivalentMap(t *testing.T) {
	p := scenarioPayload()
	m := map[string]any{
		"tradingName":     p.TradingName,
		"serviceName":     p.ServiceName,
		"requestId":       p.RequestID,
		"premisesAddress": p.PremisesAddress,
		"licenceNo":       p.LicenceNo,
		"issueDate":       p.IssueDate,
		"expiryDate":      p.ExpiryDate,
		"councilId":       p.CouncilID,
		"applicantName":   p.ApplicantName,
	}

	cs, err := Canonicalize(p)
	require.NoError(t, err)
	cm, err := Canonicalize(m)
	require.NoError(t, err)
	require.Equal(t, cs.Hash, cm.Hash)
}

func TestCanonicalizeNullDiffersFromAbsent(t *testing.T) {
	withNull, err := Canonicalize(map[string]any{"a": 1, "b": nil})
	require.NoError(t, err)
	absent, err := Canonicalize(map[string]any{"a": 1})
	require.NoError(t, err)

	require.Equal(t, `{"a":1,"b":null}`, string(withNull.JSON))
	require.Equal(t, `{"a":1}`, string(absent.JSON))
	require.NotEqual(t, withNull.Hash, absent.Hash)
}

func TestCanonicalizeKeepsNumbersAndHTML(t *testing.T) {
	c, err := Canonicalize(map[string]any{"n": 12345678901234567, "f": 1.5, "s": "<a&b>"})
	require.NoError(t, err)
	require.Equal(t, `{"f":1.5,"n":12345678901234567,"s":"<a&b>"}`, string(c.JSON))
}

func TestCanonicalizeRejectsUnserializable(t *testing.T) {
	cases := map[string]any{
		"channel":  map[string]any{"c": make(chan int)},
		"function": func() {},
		"nan":      math.NaN(),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Canonicalize(v)
			require.Error(t, err)
			require.Equal(t, ReasonValidation, errutil.ReasonOf(err))
			require.Equal(t, errutil.StatusValidationFailed, errutil.CodeOf(err))
		})
	}
}
