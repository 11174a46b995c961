// Package verify evaluates factual claims against fetched sources. A
// claim is fingerprinted, checked against the verify:v1 cache, and on a
// miss fetched against trusted domains first, general sources second,
// with bounded concurrency and a hard per-request budget. Verification
// never fails its caller: every path, including exhausted budgets and
// fetch errors, produces a record.
package verify

import "time"

// Status is the verdict class.
type Status string

const (
	StatusVerified     Status = "verified"
	StatusLikelyTrue   Status = "likely_true"
	StatusUncertain    Status = "uncertain"
	StatusLikelyFalse  Status = "likely_false"
	StatusRefuted      Status = "refuted"
	StatusUnverifiable Status = "unverifiable"
)

// Source is one consulted origin.
type Source struct {
	Domain  string `json:"domain"`
	URL     string `json:"url"`
	Trusted bool   `json:"trusted"`
}

// Timing separates where the time went.
type Timing struct {
	TotalMs    int64 `json:"totalMs"`
	FetchMs    int64 `json:"fetchMs,omitempty"`
	AnalysisMs int64 `json:"analysisMs,omitempty"`
}

// Record is the verification result, cached at verify:v1:<claimHash>.
type Record struct {
	ClaimHash string `json:"claimHash"`
	Status    Status `json:"status"`
	// Confidence is in [0,1], monotonic in the number of corroborating
	// trusted sources.
	Confidence  float64   `json:"confidence"`
	Sources     []Source  `json:"sources"`
	Evidence    string    `json:"evidence,omitempty"`
	Explanation string    `json:"explanation"`
	Timing      Timing    `json:"timing"`
	CachedAt    time.Time `json:"cachedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	// CacheAgeMs is set on cache hits only; it is not stored.
	CacheAgeMs int64 `json:"-"`
}
