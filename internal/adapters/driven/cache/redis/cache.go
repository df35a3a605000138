// Package redis stores embedding vectors in Redis via rueidis.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

const keyPrefix = "quill:emb:"

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	// TTL expires entries. Zero keeps them forever.
	TTL time.Duration

	Logger *zap.Logger
}

// Cache is an EmbeddingCache in Redis. Failures are logged and treated as misses.
type Cache struct {
	client rueidis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// New connects to Redis.
func New(cfg Config) (*Cache, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Cache{client: client, ttl: cfg.TTL, log: cfg.Logger}, nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Get returns the cached vector for model and text.
func (c *Cache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	key := Key(model, text)
	data, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.log.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	vec, err := Decode(data)
	if err != nil {
		c.log.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// Set stores a vector.
func (c *Cache) Set(ctx context.Context, model, text string, vector []float32) {
	key := Key(model, text)
	value := rueidis.BinaryString(Encode(vector))

	var cmd rueidis.Completed
	if c.ttl > 0 {
		cmd = c.client.B().Set().Key(key).Value(value).Ex(c.ttl).Build()
	} else {
		cmd = c.client.B().Set().Key(key).Value(value).Build()
	}
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.log.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

// Close shuts down the client.
func (c *Cache) Close() {
	c.client.Close()
}

// Key derives the cache key from sha256(model, text).
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Encode packs a vector as little-endian float32s.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode unpacks a vector written by Encode.
func Decode(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
