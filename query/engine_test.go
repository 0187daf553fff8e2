package query

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/receipt-engine/cache"
	"github.com/voltgrid/receipt-engine/index"
	"github.com/voltgrid/receipt-engine/pipeline"
	"github.com/voltgrid/receipt-engine/receipt"
	"github.com/voltgrid/receipt-engine/storage"
)

func cacheOpts() cache.Options { return cache.Options{} }

type fixture struct {
	store  *storage.MockStore
	writer *pipeline.Writer
	engine *Engine
}

func newFixture(t *testing.T, opts EngineOptions) *fixture {
	t.Helper()
	store := storage.NewMockStore()
	idx := index.NewManager(store, nil)
	engine, err := NewEngine(store, idx, opts)
	require.NoError(t, err)
	engine.now = func() time.Time { return time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC) }
	return &fixture{
		store:  store,
		writer: pipeline.NewWriter(store, idx, nil),
		engine: engine,
	}
}

func (f *fixture) seed(t *testing.T, meta receipt.Metadata) {
	t.Helper()
	_, err := f.writer.Store(context.Background(), []byte("%PDF-1.4"), meta)
	require.NoError(t, err)
}

// ndjsonSelect simulates a server-side scan: it gunzips the part,
// decodes its lines, and emits the records matching the predicate as
// concatenated JSON, the S3 Select output shape.
func ndjsonSelect(match func(*receipt.Metadata) bool) func(string, string, []byte) ([]byte, error) {
	return func(key, expression string, body []byte) ([]byte, error) {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			return nil, err
		}
		records, err := index.DecodeNDJSON(raw)
		if err != nil {
			return nil, err
		}
		var out bytes.Buffer
		for _, rec := range records {
			if match(rec) {
				line, err := json.Marshal(rec)
				if err != nil {
					return nil, err
				}
				out.Write(line)
			}
		}
		return out.Bytes(), nil
	}
}

func TestQuery_WriteThenExactRead(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	f.seed(t, receipt.Metadata{
		SessionID:   "sess-001",
		ConsumerID:  "c-alice",
		PaymentDate: "2025-12-24",
		Amount:      "£25.50",
	})

	result, err := f.engine.Query(context.Background(), &Request{
		SessionID: "sess-001",
		DateFrom:  "2025-12-24",
		DateTo:    "2025-12-24",
	})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, "sess-001", rec.SessionID)
	assert.Equal(t, int64(2550), rec.AmountPence)
	assert.Equal(t, "pdfs/sess-001.pdf", rec.PDFKey)
	assert.Equal(t, "metadata/sess-001.json", rec.MetadataKey)
	assert.Equal(t, 1, result.TotalCount)
	assert.False(t, result.HasMore)
	assert.Empty(t, result.NextCursor)
}

func TestQuery_CardFilterAcrossShard(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	for i, card := range []string{"5555", "6666", "5555"} {
		f.seed(t, receipt.Metadata{
			SessionID:    fmt.Sprintf("sess-%03d", i),
			ConsumerID:   "c-card",
			PaymentDate:  "2025-12-24",
			CardLastFour: card,
			Amount:       "£10.00",
		})
	}

	result, err := f.engine.Query(context.Background(), &Request{
		CardLastFour: "5555",
		DateFrom:     "2025-12-24",
		DateTo:       "2025-12-24",
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.Equal(t, "5555", rec.CardLastFour)
	}
}

func TestQuery_DateRange(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	for _, date := range []string{"2025-12-20", "2025-12-21", "2025-12-22"} {
		f.seed(t, receipt.Metadata{
			SessionID:   "sess-" + date,
			ConsumerID:  "c-week",
			PaymentDate: date,
			Amount:      "£5.00",
		})
	}

	result, err := f.engine.Query(context.Background(), &Request{
		ConsumerID: "c-week",
		DateFrom:   "2025-12-20",
		DateTo:     "2025-12-22",
	})
	require.NoError(t, err)
	assert.Len(t, result.Records, 3)
	assert.Equal(t, []string{"2025-12-20", "2025-12-21", "2025-12-22"}, result.ScannedDates)
}

func TestQuery_SortNewestFirst(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	for _, date := range []string{"2025-12-21", "2025-12-23", "2025-12-22"} {
		f.seed(t, receipt.Metadata{
			SessionID:   "sess-" + date,
			ConsumerID:  "c-sort",
			PaymentDate: date,
			Amount:      "£5.00",
		})
	}
	// Same-date records order by session_id descending.
	f.seed(t, receipt.Metadata{SessionID: "sess-zzz", ConsumerID: "c-sort", PaymentDate: "2025-12-23", Amount: "£5.00"})

	result, err := f.engine.Query(context.Background(), &Request{
		ConsumerID: "c-sort",
		DateFrom:   "2025-12-21",
		DateTo:     "2025-12-23",
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 4)

	for i := 0; i < len(result.Records)-1; i++ {
		a, b := result.Records[i], result.Records[i+1]
		ordered := a.PaymentDate > b.PaymentDate ||
			(a.PaymentDate == b.PaymentDate && a.SessionID > b.SessionID)
		assert.True(t, ordered, "records[%d] must sort before records[%d]", i, i+1)
	}
	assert.Equal(t, "sess-zzz", result.Records[0].SessionID)
}

func TestQuery_Pagination(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	for day := 1; day <= 10; day++ {
		f.seed(t, receipt.Metadata{
			SessionID:   fmt.Sprintf("sess-%02d", day),
			ConsumerID:  "c-page",
			PaymentDate: fmt.Sprintf("2025-12-%02d", day),
			Amount:      "£5.00",
		})
	}

	req := &Request{ConsumerID: "c-page", DateFrom: "2025-12-01", DateTo: "2025-12-10", Limit: 3}

	first, err := f.engine.Query(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, first.Records, 3)
	assert.Equal(t, 10, first.TotalCount)
	assert.True(t, first.HasMore)
	assert.Equal(t, 3, first.PageSize)
	require.NotEmpty(t, first.NextCursor)

	seen := map[string]bool{}
	pages := []*Result{first}
	cursor := first.NextCursor
	for cursor != "" {
		next := *req
		next.Cursor = cursor
		page, err := f.engine.Query(context.Background(), &next)
		require.NoError(t, err)
		pages = append(pages, page)
		cursor = page.NextCursor
	}

	require.Len(t, pages, 4)
	for _, page := range pages {
		for _, rec := range page.Records {
			assert.False(t, seen[rec.SessionID], "record %s appeared twice", rec.SessionID)
			seen[rec.SessionID] = true
		}
	}
	assert.Len(t, seen, 10, "union of pages must be the full result set")
	assert.False(t, pages[len(pages)-1].HasMore)
}

func TestQuery_AmountBounds(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	for i, amount := range []string{"£10.00", "£25.00", "£50.00", "£75.00"} {
		f.seed(t, receipt.Metadata{
			SessionID:   fmt.Sprintf("sess-%d", i),
			ConsumerID:  "c-amount",
			PaymentDate: "2025-12-24",
			Amount:      amount,
		})
	}

	result, err := f.engine.Query(context.Background(), &Request{
		ConsumerID: "c-amount",
		DateFrom:   "2025-12-24",
		DateTo:     "2025-12-24",
		AmountMin:  f64(20),
		AmountMax:  f64(60),
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	amounts := []string{result.Records[0].Amount, result.Records[1].Amount}
	assert.ElementsMatch(t, []string{"£25.00", "£50.00"}, amounts)
}

func TestQuery_RequiredFieldGate(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	f.seed(t, receipt.Metadata{SessionID: "s", ConsumerID: "c", PaymentDate: "2025-12-24", Amount: "£1.00"})

	result, err := f.engine.Query(context.Background(), &Request{AmountMin: f64(10)})
	require.NoError(t, err)

	assert.Empty(t, result.Records)
	assert.Empty(t, result.ScannedDates)
	assert.Zero(t, result.TotalCount)
	assert.Equal(t, DefaultLimit, result.PageSize)
	assert.Empty(t, f.store.ListCalls, "the gate must reject before any scan")
}

func TestQuery_LimitClamping(t *testing.T) {
	f := newFixture(t, EngineOptions{})

	result, err := f.engine.Query(context.Background(), &Request{ConsumerID: "c", DateFrom: "2025-12-24", DateTo: "2025-12-24", Limit: -3})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, result.PageSize)

	result, err = f.engine.Query(context.Background(), &Request{ConsumerID: "c", DateFrom: "2025-12-24", DateTo: "2025-12-24", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, result.PageSize)
}

func TestQuery_UnknownCursorStartsFromBeginning(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	for i := 0; i < 3; i++ {
		f.seed(t, receipt.Metadata{
			SessionID:   fmt.Sprintf("sess-%d", i),
			ConsumerID:  "c-cur",
			PaymentDate: "2025-12-24",
			Amount:      "£5.00",
		})
	}

	result, err := f.engine.Query(context.Background(), &Request{
		ConsumerID: "c-cur",
		DateFrom:   "2025-12-24",
		DateTo:     "2025-12-24",
		Cursor:     "2025-11-01:sess-ghost",
	})
	require.NoError(t, err)
	assert.Len(t, result.Records, 3, "a cursor whose record is absent from the scan is ignored")
}

func TestQuery_MalformedCursorIgnored(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	f.seed(t, receipt.Metadata{SessionID: "s1", ConsumerID: "c", PaymentDate: "2025-12-24", Amount: "£5.00"})

	result, err := f.engine.Query(context.Background(), &Request{
		ConsumerID: "c",
		DateFrom:   "2025-12-24",
		DateTo:     "2025-12-24",
		Cursor:     "garbage",
	})
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}

func TestQuery_RollbackLeavesNothingVisible(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	f.store.FailPut["index/"] = fmt.Errorf("injected")

	_, err := f.writer.Store(context.Background(), []byte("%PDF"), receipt.Metadata{
		SessionID:   "sess-fail",
		ConsumerID:  "c-fail",
		PaymentDate: "2025-12-24",
		Amount:      "£9.99",
	})
	require.Error(t, err)
	delete(f.store.FailPut, "index/")

	result, err := f.engine.Query(context.Background(), &Request{
		SessionID: "sess-fail",
		DateFrom:  "2025-12-24",
		DateTo:    "2025-12-24",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Records)

	pdfs := storage.NewPDFStore(f.store)
	_, err = pdfs.GetPDF(context.Background(), "pdfs/sess-fail.pdf")
	assert.Error(t, err)
}

func TestQuery_CacheEquivalenceAndHit(t *testing.T) {
	enabled := newFixture(t, EngineOptions{})
	off := false
	disabled := newFixture(t, EngineOptions{CacheEnabled: &off})

	for _, f := range []*fixture{enabled, disabled} {
		for i := 0; i < 5; i++ {
			f.seed(t, receipt.Metadata{
				SessionID:   fmt.Sprintf("sess-%d", i),
				ConsumerID:  "c-eq",
				PaymentDate: "2025-12-24",
				Amount:      "£5.00",
			})
		}
	}

	req := &Request{ConsumerID: "c-eq", DateFrom: "2025-12-24", DateTo: "2025-12-24"}

	warm, err := enabled.engine.Query(context.Background(), req)
	require.NoError(t, err)
	cold, err := disabled.engine.Query(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, warm.Records, 5)
	require.Equal(t, len(cold.Records), len(warm.Records))
	for i := range warm.Records {
		assert.Equal(t, cold.Records[i].SessionID, warm.Records[i].SessionID)
	}

	// Second cached query must not hit the store again.
	listsBefore := len(enabled.store.ListCalls)
	again, err := enabled.engine.Query(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, again.Records, 5)
	assert.Equal(t, listsBefore, len(enabled.store.ListCalls))

	// Clearing the cache forces a rescan.
	enabled.engine.ClearCache()
	_, err = enabled.engine.Query(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, len(enabled.store.ListCalls), listsBefore)
}

func TestQuery_PushdownFallbackEquivalence(t *testing.T) {
	req := &Request{ConsumerID: "c-push", DateFrom: "2025-12-24", DateTo: "2025-12-24", AmountMin: f64(4)}

	// Fallback path: the mock store reports pushdown as unsupported.
	fallback := newFixture(t, EngineOptions{})
	// Pushdown path: the mock evaluates the predicate server-side.
	pushdown := newFixture(t, EngineOptions{})
	pushdown.store.SelectFunc = ndjsonSelect(req.Match)

	for _, f := range []*fixture{fallback, pushdown} {
		for i, amount := range []string{"£3.00", "£5.00", "£7.00"} {
			f.seed(t, receipt.Metadata{
				SessionID:   fmt.Sprintf("sess-%d", i),
				ConsumerID:  "c-push",
				PaymentDate: "2025-12-24",
				Amount:      amount,
			})
		}
	}

	viaFallback, err := fallback.engine.Query(context.Background(), req)
	require.NoError(t, err)
	viaPushdown, err := pushdown.engine.Query(context.Background(), req)
	require.NoError(t, err)

	require.NotEmpty(t, pushdown.store.SelectCalls, "pushdown path must be exercised")
	require.Equal(t, len(viaFallback.Records), len(viaPushdown.Records))
	for i := range viaFallback.Records {
		assert.Equal(t, viaFallback.Records[i].SessionID, viaPushdown.Records[i].SessionID)
	}
	assert.Len(t, viaPushdown.Records, 2)
}

func TestQuery_PushdownErrorFallsBack(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	f.store.SelectFunc = func(key, expression string, body []byte) ([]byte, error) {
		return nil, fmt.Errorf("vendor dialect rejection")
	}
	f.seed(t, receipt.Metadata{SessionID: "s1", ConsumerID: "c", PaymentDate: "2025-12-24", Amount: "£5.00"})

	result, err := f.engine.Query(context.Background(), &Request{
		ConsumerID: "c",
		DateFrom:   "2025-12-24",
		DateTo:     "2025-12-24",
	})
	require.NoError(t, err, "pushdown failures must never propagate")
	assert.Len(t, result.Records, 1)
}

func TestQuery_UndecodableSelectPayloadFallsBack(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	f.store.SelectFunc = func(key, expression string, body []byte) ([]byte, error) {
		return []byte("not json at all"), nil
	}
	f.seed(t, receipt.Metadata{SessionID: "s1", ConsumerID: "c", PaymentDate: "2025-12-24", Amount: "£5.00"})

	result, err := f.engine.Query(context.Background(), &Request{
		ConsumerID: "c",
		DateFrom:   "2025-12-24",
		DateTo:     "2025-12-24",
	})
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}

func TestQuery_Cancellation(t *testing.T) {
	f := newFixture(t, EngineOptions{})
	f.seed(t, receipt.Metadata{SessionID: "s1", ConsumerID: "c", PaymentDate: "2025-12-24", Amount: "£5.00"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Query(ctx, &Request{ConsumerID: "c", DateFrom: "2025-12-24", DateTo: "2025-12-24"})
	assert.Error(t, err)
}
