package licence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TimestampLayout renders payload dates as UTC RFC 3339 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// LicencePayload is the content that is hashed, rendered and signed.
type LicencePayload struct {
	LicenceNo       string `json:"licenceNo"`
	CouncilID       string `json:"councilId"`
	RequestID       string `json:"requestId"`
	IssueDate       string `json:"issueDate"`
	ExpiryDate      string `json:"expiryDate"`
	TradingName     string `json:"tradingName"`
	ApplicantName   string `json:"applicantName"`
	PremisesAddress string `json:"premisesAddress"`
	ServiceName     string `json:"serviceName"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type Canonical struct {
	JSON []byte
	Hash string
}

// Canonicalize serialises v with keys sorted at every level and no
// insignificant whitespace, and returns the bytes with their SHA-256 digest.
func Canonicalize(v any) (Canonical, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Canonical{}, ValidationError("payload is not serializable", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return Canonical{}, ValidationError("payload is not serializable", err)
	}

	// encoding/json writes map keys in sorted order.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return Canonical{}, ValidationError("payload is not serializable", err)
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return Canonical{
		JSON: out,
		Hash: HashBytes(out),
	}, nil
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data ...[]byte) string {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return hex.EncodeToString(h.Sum(nil))
}
