// Package queue implements the durable retry queue for events that
// failed transmission. Each item is one JSON file keyed by request ID.
// Items live in exactly one of three directories: pending/ (awaiting a
// retry), in-flight/ (claimed by a drain in progress), or dead/
// (exhausted or evicted). Moves between directories use os.Rename, so
// claiming an item is atomic: two concurrent drains can never both send
// the same item, and a crash mid-retry leaves the item recoverable in
// in-flight/ rather than lost.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hookline-systems/hookline/pkg/event"
)

const (
	dirPending  = "pending"
	dirInflight = "in-flight"
	dirDead     = "dead"

	// Claimed items older than this are treated as abandoned by a
	// crashed drain and returned to pending on Open.
	claimTTL = 10 * time.Minute
)

// DefaultBackoff is the escalating delay table applied between retry
// attempts. Index 0 applies to the first enqueue.
var DefaultBackoff = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
}

// ItemError captures why the last transmission attempt failed.
type ItemError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Item is one queued event plus its retry bookkeeping.
type Item struct {
	RequestID   string          `json:"requestId"`
	TraceID     string          `json:"traceId,omitempty"`
	Envelope    *event.Envelope `json:"envelope"`
	LastError   *ItemError      `json:"lastError,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	RetryCount  int             `json:"retryCount"`
	NextRetryAt time.Time       `json:"nextRetryAt"`
	LastRetryAt *time.Time      `json:"lastRetryAt,omitempty"`
	DeadReason  string          `json:"deadReason,omitempty"`
}

// Config controls queue bounds and the backoff schedule.
type Config struct {
	Dir        string
	MaxRetries int
	MaxDepth   int
	MaxAge     time.Duration
	Backoff    []time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 1000
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7 * 24 * time.Hour
	}
	if len(c.Backoff) == 0 {
		c.Backoff = DefaultBackoff
	}
}

// Queue is a file-backed retry queue. Safe for concurrent use across
// goroutines and across processes sharing the same directory.
type Queue struct {
	cfg Config
	now func() time.Time
}

// Open prepares the queue directories and recovers items abandoned in
// in-flight/ by a previous crash.
func Open(cfg Config) (*Queue, error) {
	cfg.applyDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("queue directory not set")
	}
	for _, d := range []string{dirPending, dirInflight, dirDead} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, d), 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory: %w", err)
		}
	}
	q := &Queue{cfg: cfg, now: time.Now}
	q.recoverAbandoned()
	return q, nil
}

// Enqueue durably records an envelope that failed transmission. The
// first retry becomes eligible after the initial backoff delay. When
// the queue is at capacity the oldest pending item is evicted to dead/
// so nothing is silently dropped.
func (q *Queue) Enqueue(env *event.Envelope, cause error) (*Item, error) {
	if env == nil || env.RequestID == "" {
		return nil, fmt.Errorf("envelope missing request id")
	}

	if err := q.enforceDepth(); err != nil {
		return nil, err
	}

	now := q.now()
	item := &Item{
		RequestID:   env.RequestID,
		TraceID:     env.TraceID,
		Envelope:    env,
		EnqueuedAt:  now,
		RetryCount:  0,
		NextRetryAt: now.Add(q.cfg.Backoff[0]),
	}
	if cause != nil {
		item.LastError = &ItemError{Message: cause.Error(), Code: errorCode(cause)}
	}

	if err := q.writeItem(dirPending, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Claim is an exclusive hold on one queued item. Exactly one of
// Succeeded, Failed, or Exhaust must be called to release it.
type Claim struct {
	Item *Item
	q    *Queue
}

// DrainEligible atomically claims every pending item whose retry time
// has arrived, oldest first. Items past the age bound move to dead/
// instead. Callers must release every returned claim.
func (q *Queue) DrainEligible() ([]*Claim, error) {
	items, err := q.readDir(dirPending)
	if err != nil {
		return nil, err
	}

	now := q.now()
	sort.Slice(items, func(i, j int) bool { return items[i].EnqueuedAt.Before(items[j].EnqueuedAt) })

	var claims []*Claim
	for _, item := range items {
		if now.Sub(item.EnqueuedAt) > q.cfg.MaxAge {
			item.DeadReason = "expired"
			q.moveToDead(dirPending, item)
			continue
		}
		if item.NextRetryAt.After(now) || item.RetryCount >= q.cfg.MaxRetries {
			continue
		}
		// Atomic claim: a concurrent drain racing on the same item
		// loses the rename and simply skips it.
		src := q.itemPath(dirPending, item.RequestID)
		dst := q.itemPath(dirInflight, item.RequestID)
		if err := os.Rename(src, dst); err != nil {
			continue
		}
		// Stamp the claim time on the file so crash recovery can tell
		// a live claim from an abandoned one.
		os.Chtimes(dst, now, now)
		claims = append(claims, &Claim{Item: item, q: q})
	}
	return claims, nil
}

// Succeeded removes the item: the event was delivered.
func (c *Claim) Succeeded() error {
	if err := os.Remove(c.q.itemPath(dirInflight, c.Item.RequestID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove delivered item: %w", err)
	}
	return nil
}

// Failed records another failed attempt. The retry count increases and
// the next eligibility follows the backoff table; once the retry limit
// is reached the item moves to dead/ instead of back to pending/.
func (c *Claim) Failed(cause error) error {
	item := c.Item
	now := c.q.now()
	item.RetryCount++
	item.LastRetryAt = &now
	if cause != nil {
		item.LastError = &ItemError{Message: cause.Error(), Code: errorCode(cause)}
	}

	if item.RetryCount >= c.q.cfg.MaxRetries {
		item.DeadReason = "max retries exceeded"
		return c.release(dirDead, item)
	}

	idx := item.RetryCount
	if idx >= len(c.q.cfg.Backoff) {
		idx = len(c.q.cfg.Backoff) - 1
	}
	item.NextRetryAt = now.Add(c.q.cfg.Backoff[idx])
	return c.release(dirPending, item)
}

// Exhaust force-moves the item to dead/ regardless of retry count,
// used when a retry came back permanently rejected.
func (c *Claim) Exhaust(reason string) error {
	c.Item.DeadReason = reason
	now := c.q.now()
	c.Item.LastRetryAt = &now
	return c.release(dirDead, c.Item)
}

func (c *Claim) release(dir string, item *Item) error {
	if err := c.q.writeItem(dir, item); err != nil {
		return err
	}
	if err := os.Remove(c.q.itemPath(dirInflight, item.RequestID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Depth counts items per directory.
type Depth struct {
	Pending  int `json:"pending"`
	InFlight int `json:"inFlight"`
	Dead     int `json:"dead"`
}

// Stats returns current queue depths.
func (q *Queue) Stats() (Depth, error) {
	var d Depth
	for _, pair := range []struct {
		dir string
		n   *int
	}{{dirPending, &d.Pending}, {dirInflight, &d.InFlight}, {dirDead, &d.Dead}} {
		entries, err := os.ReadDir(filepath.Join(q.cfg.Dir, pair.dir))
		if err != nil {
			return d, fmt.Errorf("read %s: %w", pair.dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				*pair.n++
			}
		}
	}
	return d, nil
}

// List returns up to limit items from the pending and dead areas,
// oldest first. limit <= 0 means no limit.
func (q *Queue) List(limit int) ([]*Item, error) {
	pending, err := q.readDir(dirPending)
	if err != nil {
		return nil, err
	}
	dead, err := q.readDir(dirDead)
	if err != nil {
		return nil, err
	}
	items := append(pending, dead...)
	sort.Slice(items, func(i, j int) bool { return items[i].EnqueuedAt.Before(items[j].EnqueuedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// PurgeDead deletes everything in dead/ and returns the count.
func (q *Queue) PurgeDead() (int, error) {
	entries, err := os.ReadDir(filepath.Join(q.cfg.Dir, dirDead))
	if err != nil {
		return 0, fmt.Errorf("read dead: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(q.cfg.Dir, dirDead, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (q *Queue) recoverAbandoned() {
	entries, err := os.ReadDir(filepath.Join(q.cfg.Dir, dirInflight))
	if err != nil {
		return
	}
	now := q.now()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		// The claim time was stamped on the file when it was moved
		// into in-flight; anything older than the TTL belongs to a
		// drain that died mid-retry.
		if now.Sub(info.ModTime()) < claimTTL {
			continue
		}
		src := filepath.Join(q.cfg.Dir, dirInflight, e.Name())
		dst := filepath.Join(q.cfg.Dir, dirPending, e.Name())
		os.Rename(src, dst)
	}
}

func (q *Queue) enforceDepth() error {
	items, err := q.readDir(dirPending)
	if err != nil {
		return err
	}
	if len(items) < q.cfg.MaxDepth {
		return nil
	}
	sort.Slice(items, func(i, j int) bool { return items[i].EnqueuedAt.Before(items[j].EnqueuedAt) })
	for i := 0; i <= len(items)-q.cfg.MaxDepth; i++ {
		items[i].DeadReason = "queue capacity exceeded"
		q.moveToDead(dirPending, items[i])
	}
	return nil
}

func (q *Queue) moveToDead(fromDir string, item *Item) {
	if err := q.writeItem(dirDead, item); err != nil {
		return
	}
	os.Remove(q.itemPath(fromDir, item.RequestID))
}

func (q *Queue) readDir(dir string) ([]*Item, error) {
	entries, err := os.ReadDir(filepath.Join(q.cfg.Dir, dir))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var items []*Item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(q.cfg.Dir, dir, e.Name()))
		if err != nil {
			continue
		}
		var item Item
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		// Correlation IDs are excluded from the envelope's JSON form,
		// so a disk round-trip loses them; restore from the item so a
		// retried send carries the original request identity.
		if item.Envelope != nil {
			item.Envelope.RequestID = item.RequestID
			item.Envelope.TraceID = item.TraceID
		}
		items = append(items, &item)
	}
	return items, nil
}

// writeItem writes via a temp file and rename so readers never observe
// a partially written item.
func (q *Queue) writeItem(dir string, item *Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	final := q.itemPath(dir, item.RequestID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write item: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("commit item: %w", err)
	}
	return nil
}

func (q *Queue) itemPath(dir, requestID string) string {
	return filepath.Join(q.cfg.Dir, dir, requestID+".json")
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
