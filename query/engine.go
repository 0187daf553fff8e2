package query

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voltgrid/receipt-engine/cache"
	"github.com/voltgrid/receipt-engine/common"
	"github.com/voltgrid/receipt-engine/index"
	"github.com/voltgrid/receipt-engine/receipt"
	"github.com/voltgrid/receipt-engine/scan"
	"github.com/voltgrid/receipt-engine/storage"
)

const (
	// DefaultLimit is the page size when the request carries none.
	DefaultLimit = 50

	// MaxLimit caps the page size.
	MaxLimit = 100
)

// Result is one page of a query.
type Result struct {
	Records      []*receipt.Metadata `json:"records"`
	ScannedDates []string            `json:"scanned_dates"`
	TotalCount   int                 `json:"total_count"`
	NextCursor   string              `json:"next_cursor,omitempty"`
	HasMore      bool                `json:"has_more"`
	PageSize     int                 `json:"page_size"`
}

// Engine answers filtered, cursor-paginated receipt queries by scanning
// date-partitioned index shards with bounded parallelism, pushing the
// predicate to the store where the SQL-over-objects facility accepts
// it and filtering client-side where it does not.
type Engine struct {
	store   storage.ObjectStore
	index   *index.Manager
	scanner *scan.Scanner
	cache   *ShardCache
	log     *logrus.Logger

	// now anchors the default date range; swappable for tests.
	now func() time.Time
}

// EngineOptions configures an Engine. Zero values select defaults:
// scanner workers 5, cache enabled with package defaults.
type EngineOptions struct {
	Workers      int
	CacheEnabled *bool
	CacheMaxSize int
	CacheTTL     time.Duration
	Logger       *logrus.Logger
}

// NewEngine builds an Engine over the given store.
func NewEngine(store storage.ObjectStore, idx *index.Manager, opts EngineOptions) (*Engine, error) {
	scanner, err := scan.New(opts.Workers)
	if err != nil {
		return nil, err
	}

	cacheEnabled := true
	if opts.CacheEnabled != nil {
		cacheEnabled = *opts.CacheEnabled
	}
	shardCache, err := NewShardCache(cache.Options{MaxSize: opts.CacheMaxSize, TTL: opts.CacheTTL}, cacheEnabled)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = common.Logger
	}

	return &Engine{
		store:   store,
		index:   idx,
		scanner: scanner,
		cache:   shardCache,
		log:     log,
		now:     time.Now,
	}, nil
}

// ClearCache drains the shard cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// Query returns one page of records matching the request, newest first.
func (e *Engine) Query(ctx context.Context, req *Request) (*Result, error) {
	limit := clampLimit(req.Limit)

	if !req.HasRequiredField() {
		return &Result{
			Records:      []*receipt.Metadata{},
			ScannedDates: []string{},
			PageSize:     limit,
		}, nil
	}

	dateRange, err := NewDateRange(req.DateFrom, req.DateTo, e.now())
	if err != nil {
		return nil, err
	}
	dates := dateRange.Dates()

	// Shards are visited in date order; the parallelism lives inside
	// each shard, across its part files.
	var records []*receipt.Metadata
	for _, date := range dates {
		shard, err := e.shardRecords(ctx, date, req)
		if err != nil {
			return nil, err
		}
		records = append(records, shard...)
	}

	// Total order: payment_date DESC, session_id DESC. Session IDs are
	// unique per the write invariant, so ties cannot occur.
	sort.Slice(records, func(i, j int) bool { return records[i].Less(records[j]) })

	start := cursorPosition(records, DecodeCursor(req.Cursor))
	end := start + limit
	if end > len(records) {
		end = len(records)
	}

	page := records[start:end]
	result := &Result{
		Records:      page,
		ScannedDates: dates,
		TotalCount:   len(records),
		HasMore:      end < len(records),
		PageSize:     limit,
	}
	if result.HasMore && len(page) > 0 {
		last := page[len(page)-1]
		result.NextCursor = EncodeCursor(last.PaymentDate, last.SessionID)
	}
	return result, nil
}

// shardRecords returns the filtered records of one date partition,
// serving from the cache when possible. On a miss every part file is
// scanned in parallel; each part first tries the pushdown predicate and
// falls back to a full read with client-side filtering.
func (e *Engine) shardRecords(ctx context.Context, date string, req *Request) ([]*receipt.Metadata, error) {
	cacheKey := e.cache.Key(date, req)
	if cached, ok := e.cache.Get(cacheKey); ok {
		return cached, nil
	}

	parts, err := e.index.ListParts(ctx, e.index.BuildPrefix(date))
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		e.cache.Set(cacheKey, nil)
		return nil, nil
	}

	expression := req.SQL()
	var logOnce sync.Once

	records, err := scan.ScanFlatten(ctx, e.scanner, parts, func(ctx context.Context, part string) ([]*receipt.Metadata, error) {
		matched, err := e.scanPart(ctx, part, expression, req)
		if err != nil {
			switch {
			case common.IsNotFound(err):
				// A part listed a moment ago can be gone by GET time.
				e.log.WithFields(logrus.Fields{"op": "scan_part", "key": part}).Debug("part vanished mid-query")
				return nil, nil
			case common.IsPushdown(err):
				logOnce.Do(func() {
					e.log.WithFields(logrus.Fields{
						"op":   "pushdown",
						"date": date,
						"kind": common.ErrorKind(err),
					}).Warn("pushdown unavailable, using client-side filter")
				})
				return e.clientScan(ctx, part, req)
			default:
				return nil, err
			}
		}
		return matched, nil
	})
	if err != nil {
		return nil, err
	}

	e.cache.Set(cacheKey, records)
	return records, nil
}

// scanPart evaluates the predicate server-side over one part object.
func (e *Engine) scanPart(ctx context.Context, part, expression string, req *Request) ([]*receipt.Metadata, error) {
	payload, err := e.store.Select(ctx, part, expression)
	if err != nil {
		return nil, err
	}
	records, err := index.DecodeConcatenatedJSON(payload)
	if err != nil {
		// A payload the engine cannot decode is a vendor quirk, not a
		// query failure; treat it like any other pushdown error.
		return nil, &common.PushdownError{Key: part, Err: err}
	}
	return records, nil
}

// clientScan reads a part in full and applies the predicate locally.
func (e *Engine) clientScan(ctx context.Context, part string, req *Request) ([]*receipt.Metadata, error) {
	all, err := e.index.ReadPartRecords(ctx, part)
	if err != nil {
		if common.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var matched []*receipt.Metadata
	for _, rec := range all {
		if req.Match(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// cursorPosition finds the index after the cursor's record in the
// descending-sorted slice. A nil cursor, or a cursor whose record is
// not present in the scan, starts from the beginning.
func cursorPosition(records []*receipt.Metadata, cursor *Cursor) int {
	if cursor == nil {
		return 0
	}
	target := &receipt.Metadata{PaymentDate: cursor.PaymentDate, SessionID: cursor.SessionID}
	idx := sort.Search(len(records), func(i int) bool {
		return !records[i].Less(target)
	})
	if idx < len(records) &&
		records[idx].PaymentDate == cursor.PaymentDate &&
		records[idx].SessionID == cursor.SessionID {
		return idx + 1
	}
	return 0
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
