package truststore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/novacore/fault"
)

// cursorVersion guards against decoding tokens from a future layout.
const cursorVersion = 1

type cursorPayload struct {
	Version int    `json:"v"`
	ID      string `json:"id"`
	TS      int64  `json:"ts,omitempty"` // unix millis
}

// CreateCursor encodes an opaque pagination token for the entry the
// next page starts after. ts may be zero.
func CreateCursor(id string, ts time.Time) string {
	p := cursorPayload{Version: cursorVersion, ID: id}
	if !ts.IsZero() {
		p.TS = ts.UnixMilli()
	}
	raw, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes a token produced by CreateCursor. Tokens are
// opaque to callers; anything malformed is MALFORMED_INPUT.
func ParseCursor(token string) (id string, ts time.Time, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", time.Time{}, fault.New(fault.ErrMalformedInput, "cursor.parse", "", err)
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", time.Time{}, fault.New(fault.ErrMalformedInput, "cursor.parse", "", err)
	}
	if p.Version != cursorVersion || p.ID == "" {
		return "", time.Time{}, fault.New(fault.ErrMalformedInput, "cursor.parse", "",
			fmt.Errorf("unsupported cursor"))
	}
	if p.TS != 0 {
		ts = time.UnixMilli(p.TS).UTC()
	}
	return p.ID, ts, nil
}
