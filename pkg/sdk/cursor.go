package fedsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/sorting"
	"github.com/kailas-cloud/fedsearch/internal/usecase/cursor"
)

// Cursor walks the keys of one resource and materializes records on demand.
// Its key list can be exported and rebuilt in a later call.
type Cursor struct {
	cur *cursor.Cursor
}

// OpenCursor lists the keys of a resource in sort order.
func (c *Client) OpenCursor(ctx context.Context, resourceID, sort string) (_ *Cursor, err error) {
	start := time.Now()
	defer func() { c.obs.observe("open_cursor", start, err) }()

	if _, err = c.catalog.Resource(resourceID); err != nil {
		return nil, err
	}
	keys, err := sorting.Parse(sort)
	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	cur, err := c.cursorSvc.Open(ctx, resourceID, filter.Expression{}, keys)
	if err != nil {
		return nil, err
	}
	return &Cursor{cur: cur}, nil
}

// RestoreCursor rebuilds a cursor from an exported key list.
func (c *Client) RestoreCursor(resourceID string, data []byte) (*Cursor, error) {
	cur, err := c.cursorSvc.Rebuild(resourceID, data)
	if err != nil {
		return nil, err
	}
	return &Cursor{cur: cur}, nil
}

// Size returns the number of keys.
func (c *Cursor) Size() int { return c.cur.Size() }

// Truncated reports that more records matched than the cursor holds.
func (c *Cursor) Truncated() bool { return c.cur.Truncated() }

// Export returns the key list as JSON.
func (c *Cursor) Export() ([]byte, error) { return c.cur.ExportJSON() }

// Next advances and loads the next record. Returns nil, nil past the end.
// After a load error the cursor stays on the failed element, so Next skips it.
func (c *Cursor) Next(ctx context.Context) (*Record, error) {
	rec, err := c.cur.Next(ctx)
	return toRecord(rec, err)
}

// Last loads the final record without visiting the others.
func (c *Cursor) Last(ctx context.Context) (*Record, error) {
	rec, err := c.cur.Last(ctx)
	return toRecord(rec, err)
}

func toRecord(rec *record.Record, err error) (*Record, error) {
	if err != nil || rec == nil {
		return nil, err
	}
	return &Record{Resource: rec.Ref().ResourceID, Key: rec.Key(), Fields: plain(rec.Fields())}, nil
}
