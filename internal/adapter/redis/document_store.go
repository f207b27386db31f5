package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pscheid92/teamdraft/internal/document"
	"github.com/pscheid92/teamdraft/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "draft:"

func documentKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Each document is a hash with the encoded state block in "content" and its revision in "rev".
// The key expires after the retention period, counted from creation; HSET keeps the TTL.

// createScript writes a new document unless the key exists.
// ARGV: [1]=rev, [2]=content, [3]=ttl_ms (0 = no expiry)
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[1], 'content', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// casScript replaces the document only if the stored revision equals the expected one.
// Returns -1 when the key is missing, 0 on a revision mismatch and 1 on success.
// ARGV: [1]=expected rev, [2]=next rev, [3]=content
var casScript = goredis.NewScript(`
local rev = redis.call('HGET', KEYS[1], 'rev')
if not rev then
  return -1
end
if rev ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[2], 'content', ARGV[3])
return 1
`)

// DocumentStore is a domain.DocumentStore backed by Redis. Compare-and-swap is atomic
// because it runs as a single Lua script.
type DocumentStore struct {
	rdb       *goredis.Client
	retention time.Duration
}

var _ domain.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore returns a store whose documents expire retention after creation.
// A zero retention keeps documents until deleted.
func NewDocumentStore(rdb *goredis.Client, retention time.Duration) *DocumentStore {
	return &DocumentStore{rdb: rdb, retention: retention}
}

func (s *DocumentStore) Create(ctx context.Context, doc domain.Document) error {
	content, err := document.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	id := doc.Snapshot.Session.ID
	created, err := createScript.Run(ctx, s.rdb, []string{documentKey(id)},
		strconv.FormatInt(doc.Revision, 10), content, s.retention.Milliseconds(),
	).Int()
	if err != nil {
		return domain.StoreUnavailable("create document", err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionExists, id)
	}
	return nil
}

func (s *DocumentStore) Load(ctx context.Context, sessionID string) (*domain.Document, error) {
	content, err := s.rdb.HGet(ctx, documentKey(sessionID), "content").Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, domain.StoreUnavailable("load document", err)
	}

	doc, ok := document.Decode(content)
	if !ok {
		return nil, domain.StoreUnavailable("load document", fmt.Errorf("no valid state block for %s", sessionID))
	}
	return doc, nil
}

func (s *DocumentStore) CompareAndSwap(ctx context.Context, sessionID string, expected int64, next domain.Document) (bool, error) {
	content, err := document.Encode(next)
	if err != nil {
		return false, fmt.Errorf("encode document: %w", err)
	}

	result, err := casScript.Run(ctx, s.rdb, []string{documentKey(sessionID)},
		strconv.FormatInt(expected, 10), strconv.FormatInt(next.Revision, 10), content,
	).Int()
	if err != nil {
		return false, domain.StoreUnavailable("compare and swap", err)
	}

	switch result {
	case -1:
		return false, domain.ErrSessionNotFound
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

func (s *DocumentStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, documentKey(sessionID)).Err(); err != nil {
		return domain.StoreUnavailable("delete document", err)
	}
	return nil
}
