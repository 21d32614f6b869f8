package redisremote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/remote"
	"github.com/2beens/gymsync/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	keyPrefix      = "gymsync:remote:"
	fieldOwnerID   = "owner_id"
	fieldData      = "data"
	fieldUpdatedAt = "updated_at"
)

// Service stores each document as a redis hash and keeps one set of
// document ids per owner and collection.
type Service struct {
	rdb *redis.Client
}

func NewService(rdb *redis.Client) *Service {
	return &Service{
		rdb: rdb,
	}
}

func (s *Service) Collection(name string) remote.Collection {
	return &Collection{
		rdb:  s.rdb,
		name: name,
	}
}

type Collection struct {
	rdb  *redis.Client
	name string
}

func (c *Collection) docKey(id string) string {
	return keyPrefix + c.name + ":doc:" + id
}

func (c *Collection) ownerKey(ownerID string) string {
	return keyPrefix + c.name + ":owner:" + ownerID
}

func (c *Collection) Create(ctx context.Context, doc remote.Document) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "redis.remote.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", c.name), attribute.String("id", doc.ID))

	if doc.ID == "" {
		return fmt.Errorf("%w: empty id", remote.ErrInvalidDocument)
	}

	stored, found, err := c.storedUpdatedAt(ctx, doc.ID)
	if err != nil {
		return err
	}
	if found && stored.After(doc.UpdatedAt) {
		log.Tracef("redis remote: skip stale create of %s/%s", c.name, doc.ID)
		return nil
	}
	return c.write(ctx, doc)
}

func (c *Collection) Update(ctx context.Context, doc remote.Document) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "redis.remote.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", c.name), attribute.String("id", doc.ID))

	stored, found, err := c.storedUpdatedAt(ctx, doc.ID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s/%s: %w", c.name, doc.ID, remote.ErrNotFound)
	}
	if stored.After(doc.UpdatedAt) {
		log.Tracef("redis remote: skip stale update of %s/%s", c.name, doc.ID)
		return nil
	}
	return c.write(ctx, doc)
}

func (c *Collection) write(ctx context.Context, doc remote.Document) error {
	if err := c.rdb.HSet(
		ctx, c.docKey(doc.ID),
		fieldOwnerID, doc.OwnerID,
		fieldData, string(doc.Data),
		fieldUpdatedAt, strconv.FormatInt(doc.UpdatedAt.UnixNano(), 10),
	).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", doc.ID, err)
	}
	if err := c.rdb.SAdd(ctx, c.ownerKey(doc.OwnerID), doc.ID).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", doc.ID, err)
	}
	return nil
}

func (c *Collection) storedUpdatedAt(ctx context.Context, id string) (time.Time, bool, error) {
	val, err := c.rdb.HGet(ctx, c.docKey(id), fieldUpdatedAt).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("hget %s: %w", id, err)
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, remote.NewPermanentError(fmt.Errorf("%w: bad updated_at of %s: %s", remote.ErrInvalidDocument, id, err))
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

func (c *Collection) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "redis.remote.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", c.name), attribute.String("id", id))

	ownerID, err := c.rdb.HGet(ctx, c.docKey(id), fieldOwnerID).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s/%s: %w", c.name, id, remote.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("hget %s: %w", id, err)
	}

	if err := c.rdb.Del(ctx, c.docKey(id)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", id, err)
	}
	if err := c.rdb.SRem(ctx, c.ownerKey(ownerID), id).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", id, err)
	}
	return nil
}

func (c *Collection) ListByOwner(ctx context.Context, ownerID string, filter remote.Filter) (_ []remote.Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "redis.remote.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", c.name), attribute.String("owner", ownerID))

	ids, err := c.rdb.SMembers(ctx, c.ownerKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", ownerID, err)
	}
	sort.Strings(ids)

	var docs []remote.Document
	for _, id := range ids {
		fields, err := c.rdb.HGetAll(ctx, c.docKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", id, err)
		}
		if len(fields) == 0 {
			// index entry outlived its document
			continue
		}
		nanos, err := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64)
		if err != nil {
			log.Warnf("redis remote: skip document %s/%s with bad updated_at: %s", c.name, id, err)
			continue
		}
		doc := remote.Document{
			ID:        id,
			OwnerID:   fields[fieldOwnerID],
			Data:      []byte(fields[fieldData]),
			UpdatedAt: time.Unix(0, nanos).UTC(),
		}
		if doc.OwnerID != ownerID {
			continue
		}
		if !filter.UpdatedSince.IsZero() && doc.UpdatedAt.Before(filter.UpdatedSince) {
			continue
		}
		docs = append(docs, doc)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.Before(docs[j].UpdatedAt)
	})
	if filter.Limit > 0 && len(docs) > filter.Limit {
		docs = docs[:filter.Limit]
	}

	span.SetAttributes(attribute.Int("documents", len(docs)))
	return docs, nil
}
