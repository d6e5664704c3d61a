package sidebuffer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/usecase/sidebuffer"
)

// insertScript stores the entry unless an unexpired one holds the id.
// KEYS[1] entry key; ARGV: now ms, tenant, user, expires ms, payload.
const insertScript = `
local exp = redis.call('HGET', KEYS[1], 'expires')
if exp and tonumber(exp) > tonumber(ARGV[1]) then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'tenant', ARGV[2], 'user', ARGV[3], 'expires', ARGV[4], 'payload', ARGV[5])
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
return 1
`

// takeScript returns and deletes the payload when the entry is unexpired and owned by the claimant.
// Expired entries are deleted; entries of other owners are left untouched.
// KEYS[1] entry key; ARGV: now ms, tenant, user, elevated ("1"/"0").
const takeScript = `
local v = redis.call('HMGET', KEYS[1], 'tenant', 'user', 'expires', 'payload')
if not v[4] then
  return false
end
if tonumber(v[3]) <= tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  return false
end
if v[1] ~= ARGV[2] then
  return false
end
if ARGV[4] ~= '1' and v[2] ~= ARGV[3] then
  return false
end
redis.call('DEL', KEYS[1])
return v[4]
`

// scriptStore is the consumer interface for the Redis side buffer (ISP).
type scriptStore interface {
	EvalInt(ctx context.Context, script string, keys, args []string) (int64, error)
	EvalBytes(ctx context.Context, script string, keys, args []string) ([]byte, error)
}

// Redis is a sidebuffer.ExpiringStore keeping one hash per entry. Redis expires
// the keys itself, so Sweep has nothing to do.
type Redis struct {
	store  scriptStore
	codec  *Codec
	prefix string
}

// NewRedis creates a Redis-backed side buffer. Keys are namespaced under keyPrefix+"sb:".
func NewRedis(s scriptStore, codec *Codec, keyPrefix string) *Redis {
	return &Redis{store: s, codec: codec, prefix: keyPrefix + "sb:"}
}

func (r *Redis) key(id string) string {
	return r.prefix + id
}

// Insert stores e unless an unexpired entry with the same id exists.
func (r *Redis) Insert(ctx context.Context, e sidebuffer.Entry, now time.Time) (bool, error) {
	payload, err := r.codec.Encode(e)
	if err != nil {
		return false, err
	}
	n, err := r.store.EvalInt(ctx, insertScript, []string{r.key(e.ID)}, []string{
		ms(now), e.Tenant, e.User, ms(e.ExpiresAt), string(payload),
	})
	if err != nil {
		return false, fmt.Errorf("insert side buffer entry %q: %w", e.ID, err)
	}
	return n == 1, nil
}

// Take removes and returns the entry when it is unexpired and owned by the claimant.
func (r *Redis) Take(ctx context.Context, id string, claimant domain.Identity, now time.Time) (*sidebuffer.Entry, error) {
	elevated := "0"
	if claimant.Elevated {
		elevated = "1"
	}
	data, err := r.store.EvalBytes(ctx, takeScript, []string{r.key(id)}, []string{
		ms(now), claimant.Tenant, claimant.User, elevated,
	})
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take side buffer entry %q: %w", id, err)
	}
	e, err := r.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Sweep is a no-op: entries carry PEXPIREAT.
func (r *Redis) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
