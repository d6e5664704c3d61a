package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/fedsearch/internal/db"
)

func (s *Store) eval(script string, keys, args []string) rueidis.Completed {
	return s.b().Eval().Script(script).Numkeys(int64(len(keys))).Key(keys...).Arg(args...).Build()
}

// EvalInt runs a Lua script returning an integer reply.
func (s *Store) EvalInt(ctx context.Context, script string, keys, args []string) (int64, error) {
	n, err := s.do(ctx, s.eval(script, keys, args)).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpEval, Err: err}
	}
	return n, nil
}

// EvalBytes runs a Lua script returning a bulk string. A nil reply is db.ErrKeyNotFound.
func (s *Store) EvalBytes(ctx context.Context, script string, keys, args []string) ([]byte, error) {
	data, err := s.do(ctx, s.eval(script, keys, args)).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpEval, Err: err}
	}
	return data, nil
}
