// Package cursor implements single-resource iteration without column federation.
package cursor

import (
	"context"
	"fmt"
	"slices"

	jsoniter "github.com/json-iterator/go"

	"github.com/kailas-cloud/fedsearch/internal/domain/record"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is the iteration state of a Cursor.
type State uint8

// Cursor states.
const (
	Unpositioned State = iota
	Positioned
	Exhausted
)

func (s State) String() string {
	switch s {
	case Positioned:
		return "positioned"
	case Exhausted:
		return "exhausted"
	default:
		return "unpositioned"
	}
}

// Cursor iterates the records of one resource by an ordered id list.
// Records are materialized one at a time; a failure is scoped to that element.
type Cursor struct {
	resourceID string
	ids        []string
	loader     RecordLoader
	pos        int
	state      State
	truncated  bool
}

// FromIDs rebuilds a cursor from an exported id list.
func FromIDs(resourceID string, ids []string, loader RecordLoader) *Cursor {
	return &Cursor{resourceID: resourceID, ids: slices.Clone(ids), loader: loader, pos: -1}
}

// FromJSON rebuilds a cursor from the JSON array produced by ExportJSON.
func FromJSON(resourceID string, data []byte, loader RecordLoader) (*Cursor, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode id list: %w", err)
	}
	return FromIDs(resourceID, ids, loader), nil
}

// ResourceID returns the iterated resource.
func (c *Cursor) ResourceID() string { return c.resourceID }

// Size returns the number of reachable records.
func (c *Cursor) Size() int { return len(c.ids) }

// Truncated reports that Open hit the key cap and matching records were left out.
func (c *Cursor) Truncated() bool { return c.truncated }

// State returns the iteration state.
func (c *Cursor) State() State { return c.state }

// Position returns the current index, -1 when unpositioned.
func (c *Cursor) Position() int {
	if c.state == Unpositioned {
		return -1
	}
	return c.pos
}

// ExportIDs returns the ordered identities reachable by full iteration.
func (c *Cursor) ExportIDs() []string { return slices.Clone(c.ids) }

// ExportJSON returns the id list as a JSON array.
func (c *Cursor) ExportJSON() ([]byte, error) {
	ids := c.ids
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode id list: %w", err)
	}
	return data, nil
}

// First positions on element 0. Returns nil when the cursor is empty.
func (c *Cursor) First(ctx context.Context) (*record.Record, error) {
	return c.moveTo(ctx, 0)
}

// Next advances by one. Returns nil once the end is passed.
func (c *Cursor) Next(ctx context.Context) (*record.Record, error) {
	switch c.state {
	case Exhausted:
		return nil, nil
	case Unpositioned:
		return c.moveTo(ctx, 0)
	default:
		return c.moveTo(ctx, c.pos+1)
	}
}

// Last jumps to the final element without visiting intermediate ones.
func (c *Cursor) Last(ctx context.Context) (*record.Record, error) {
	return c.moveTo(ctx, len(c.ids)-1)
}

// moveTo positions the cursor before loading, so a failed element can be skipped with Next.
func (c *Cursor) moveTo(ctx context.Context, i int) (*record.Record, error) {
	if i < 0 || i >= len(c.ids) {
		c.state = Exhausted
		c.pos = len(c.ids)
		return nil, nil
	}
	c.pos = i
	c.state = Positioned

	ref := record.Ref{ResourceID: c.resourceID, Key: c.ids[i]}
	rec, err := c.loader.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("cursor element %d (%s): %w", i, ref, err)
	}
	return &rec, nil
}
