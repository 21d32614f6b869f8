package pgremote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/remote"
	"github.com/2beens/gymsync/internal/telemetry/tracing"
	"github.com/2beens/gymsync/pkg"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const Schema = `
CREATE TABLE IF NOT EXISTS remote_document
(
    collection VARCHAR     NOT NULL,
    id         VARCHAR     NOT NULL,
    owner_id   VARCHAR     NOT NULL,
    data       JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS ix_remote_document_owner ON remote_document (collection, owner_id, updated_at);
`

// Service keeps every collection in a single documents table.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{
		db: db,
	}
}

// Migrate creates the documents table if it does not exist yet.
func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate remote documents: %w", err)
	}
	return nil
}

func (s *Service) Collection(name string) remote.Collection {
	return &Collection{
		db:   s.db,
		name: name,
	}
}

type Collection struct {
	db   *pgxpool.Pool
	name string
}

func (c *Collection) Create(ctx context.Context, doc remote.Document) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.remote.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", c.name), attribute.String("id", doc.ID))

	if doc.ID == "" {
		return fmt.Errorf("%w: empty id", remote.ErrInvalidDocument)
	}

	// upsert; an older write never replaces a newer document
	_, err = c.db.Exec(
		ctx,
		`INSERT INTO remote_document (collection, id, owner_id, data, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (collection, id) DO UPDATE
				SET owner_id = EXCLUDED.owner_id, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
				WHERE remote_document.updated_at <= EXCLUDED.updated_at;`,
		c.name, doc.ID, doc.OwnerID, []byte(doc.Data), doc.UpdatedAt,
	)
	return classify(err)
}

func (c *Collection) Update(ctx context.Context, doc remote.Document) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.remote.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", c.name), attribute.String("id", doc.ID))

	tag, err := c.db.Exec(
		ctx,
		`UPDATE remote_document SET owner_id = $3, data = $4, updated_at = $5
			WHERE collection = $1 AND id = $2 AND updated_at <= $5;`,
		c.name, doc.ID, doc.OwnerID, []byte(doc.Data), doc.UpdatedAt,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// either missing or the stored document is newer
	var exists bool
	if err := c.db.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM remote_document WHERE collection = $1 AND id = $2);`,
		c.name, doc.ID,
	).Scan(&exists); err != nil {
		return classify(err)
	}
	if !exists {
		return fmt.Errorf("%s/%s: %w", c.name, doc.ID, remote.ErrNotFound)
	}
	return nil
}

func (c *Collection) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.remote.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", c.name), attribute.String("id", id))

	tag, err := c.db.Exec(
		ctx,
		`DELETE FROM remote_document WHERE collection = $1 AND id = $2;`,
		c.name, id,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", c.name, id, remote.ErrNotFound)
	}
	return nil
}

func (c *Collection) ListByOwner(ctx context.Context, ownerID string, filter remote.Filter) (_ []remote.Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.remote.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", c.name), attribute.String("owner", ownerID))

	since := filter.UpdatedSince
	if since.IsZero() {
		since = time.Unix(0, 0)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100_000
	}

	rows, err := c.db.Query(
		ctx,
		`SELECT id, owner_id, data, updated_at
			FROM remote_document
			WHERE collection = $1 AND owner_id = $2 AND updated_at >= $3
			ORDER BY updated_at, id
			LIMIT $4;`,
		c.name, ownerID, since, limit,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var docs []remote.Document
	for rows.Next() {
		var doc remote.Document
		var data []byte
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &data, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		doc.Data = data
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	span.SetAttributes(attribute.Int("documents", len(docs)))
	return docs, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if pkg.IsSchemaOrDataError(err) {
		return remote.NewPermanentError(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return remote.NewTransientError(err)
	}
	return err
}
