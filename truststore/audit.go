package truststore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/canonjson"
	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
)

// auditCap bounds each audit list; pushes trim eagerly so the lists
// never grow past it.
const auditCap = 1000

// AuditEntry is one recorded action.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// AuditPage is one page of entries with the cursor for the next.
type AuditPage struct {
	Entries []AuditEntry
	// NextCursor is empty on the last page.
	NextCursor string
}

// Audit keeps capped per-user and global action trails.
type Audit struct {
	kv    kv.Store
	clock clockwork.Clock
}

// NewAudit builds the audit log.
func NewAudit(store kv.Store, clock clockwork.Clock) *Audit {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Audit{kv: store, clock: clock}
}

func auditUserKey(userID string) string {
	return "audit:user:" + userID
}

const auditGlobalKey = "audit:global"

// Log records the entry in both the user trail and the global trail,
// assigning id and timestamp. Both lists are trimmed on push.
func (a *Audit) Log(ctx context.Context, userID, action string, details map[string]any) (AuditEntry, error) {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: a.clock.Now().UTC(),
		UserID:    userID,
		Action:    action,
		Details:   details,
	}
	raw, err := canonjson.Marshal(entry)
	if err != nil {
		return AuditEntry{}, fault.New(fault.ErrInternal, "audit.log", userID, err)
	}
	for _, key := range []string{auditUserKey(userID), auditGlobalKey} {
		if _, err := a.kv.LPush(ctx, key, string(raw)); err != nil {
			return AuditEntry{}, err
		}
		if err := a.kv.LTrim(ctx, key, 0, auditCap-1); err != nil {
			return AuditEntry{}, err
		}
	}
	return entry, nil
}

// ListUser pages through one user's trail, newest first.
func (a *Audit) ListUser(ctx context.Context, userID, cursor string, limit int) (AuditPage, error) {
	return a.list(ctx, auditUserKey(userID), cursor, limit)
}

// ListGlobal pages through the global trail, newest first.
func (a *Audit) ListGlobal(ctx context.Context, cursor string, limit int) (AuditPage, error) {
	return a.list(ctx, auditGlobalKey, cursor, limit)
}

// list paginates with opaque cursors: the cursor names the last entry
// of the previous page, and the next page starts after it. The lists
// are capped, so a full scan per page stays bounded.
func (a *Audit) list(ctx context.Context, key, cursor string, limit int) (AuditPage, error) {
	if limit <= 0 || limit > auditCap {
		limit = 50
	}
	raws, err := a.kv.LRange(ctx, key, 0, -1)
	if err != nil {
		return AuditPage{}, err
	}

	start := 0
	if cursor != "" {
		afterID, _, err := ParseCursor(cursor)
		if err != nil {
			return AuditPage{}, err
		}
		start = len(raws) // an aged-out cursor entry yields an empty page
		for i, raw := range raws {
			var probe AuditEntry
			if json.Unmarshal([]byte(raw), &probe) == nil && probe.ID == afterID {
				start = i + 1
				break
			}
		}
	}

	page := AuditPage{Entries: make([]AuditEntry, 0, limit)}
	for i := start; i < len(raws) && len(page.Entries) < limit; i++ {
		var entry AuditEntry
		if err := json.Unmarshal([]byte(raws[i]), &entry); err != nil {
			return AuditPage{}, fault.New(fault.ErrInternal, "audit.list", key, err)
		}
		page.Entries = append(page.Entries, entry)
	}

	if n := start + len(page.Entries); n < len(raws) && len(page.Entries) > 0 {
		last := page.Entries[len(page.Entries)-1]
		page.NextCursor = CreateCursor(last.ID, last.Timestamp)
	}
	return page, nil
}
