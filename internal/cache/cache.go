// Package cache keeps lock results in Redis so that re-locking an identical
// frame for the same chord skips detection.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/geometry"
)

const keyPrefix = "fretsense:lock:"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Entry is a cached lock result. Fingerprint identifies the fingering the
// layout was resolved with, so retraining a chord misses the old entries.
type Entry struct {
	Chord       string                    `json:"chord"`
	Fingerprint string                    `json:"fingerprint"`
	Width       int                       `json:"width"`
	Height      int                       `json:"height"`
	Layout      *geometry.Layout          `json:"layout"`
	FretBoxes   map[int][4]geometry.Point `json:"fret_boxes"`
}

// LockCache stores lock results keyed by image hash and chord.
type LockCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// New creates a LockCache. The connection is not checked; call Ping.
func New(cfg Config, log *zap.Logger) *LockCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if log == nil {
		log = zap.NewNop()
	}

	return &LockCache{
		client: client,
		ttl:    cfg.TTL,
		log:    log.Named("cache"),
	}
}

// Ping checks the Redis connection.
func (c *LockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached entry, or nil on a miss.
func (c *LockCache) Get(ctx context.Context, imageHash, chord, fingerprint string) (*Entry, error) {
	data, err := c.client.Get(ctx, Key(imageHash, chord, fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Error("failed to unmarshal lock result",
			zap.String("hash", imageHash), zap.String("chord", chord), zap.Error(err))
		return nil, err
	}

	return &entry, nil
}

// Set stores an entry with the configured TTL.
func (c *LockCache) Set(ctx context.Context, imageHash string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, Key(imageHash, entry.Chord, entry.Fingerprint), data, c.ttl).Err()
}

// Close closes the Redis client.
func (c *LockCache) Close() error {
	return c.client.Close()
}

// Key builds the Redis key for an image hash and a chord fingering.
func Key(imageHash, chord, fingerprint string) string {
	return keyPrefix + chord + ":" + fingerprint + ":" + imageHash
}

// HashBytes returns the hex MD5 of data.
func HashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
