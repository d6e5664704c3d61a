package sidebuffer

import (
	"bytes"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"

	"github.com/kailas-cloud/fedsearch/internal/usecase/search"
	"github.com/kailas-cloud/fedsearch/internal/usecase/sidebuffer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// envelope is the stored form of an entry.
type envelope struct {
	ID        string           `json:"id"`
	Tenant    string           `json:"tenant"`
	User      string           `json:"user"`
	ExpiresAt int64            `json:"expires_at"`
	Snapshot  *search.Snapshot `json:"snapshot"`
}

// Codec serializes entries as JSON, optionally zstd-compressed.
// Decode accepts both forms so the setting can change while entries are live.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a codec. compress selects zstd for encoding.
func NewCodec(compress bool) (*Codec, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	c := &Codec{dec: dec}
	if compress {
		c.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
	}
	return c, nil
}

// Encode renders an entry.
func (c *Codec) Encode(e sidebuffer.Entry) ([]byte, error) {
	data, err := json.Marshal(envelope{
		ID:        e.ID,
		Tenant:    e.Tenant,
		User:      e.User,
		ExpiresAt: e.ExpiresAt.UnixMilli(),
		Snapshot:  e.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode side buffer entry: %w", err)
	}
	if c.enc == nil {
		return data, nil
	}
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decode parses an entry written by Encode.
func (c *Codec) Decode(data []byte) (*sidebuffer.Entry, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress side buffer entry: %w", err)
		}
		data = raw
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode side buffer entry: %w", err)
	}
	if env.Snapshot == nil {
		return nil, fmt.Errorf("decode side buffer entry %q: missing snapshot", env.ID)
	}
	return &sidebuffer.Entry{
		ID:        env.ID,
		Tenant:    env.Tenant,
		User:      env.User,
		Payload:   env.Snapshot,
		ExpiresAt: time.UnixMilli(env.ExpiresAt),
	}, nil
}
