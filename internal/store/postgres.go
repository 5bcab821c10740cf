package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tm "github.com/PratikDhanave/tagbridge/internal/tagmanager"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore keeps the container cache and delivered hits.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool and fails fast if the database is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. It is idempotent.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

// SaveContainer upserts c as the cached copy of its container id.
func (p *PostgresStore) SaveContainer(ctx context.Context, c *tm.Container) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return err
	}
	fetched := c.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO containers(id, version, document, fetched_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		   SET version = EXCLUDED.version,
		       document = EXCLUDED.document,
		       fetched_at = EXCLUDED.fetched_at
	`, c.ID, c.Version, doc, fetched.UTC())
	return err
}

// LoadContainer returns the cached container, or tm.ErrContainerNotFound.
func (p *PostgresStore) LoadContainer(ctx context.Context, id string) (*tm.Container, error) {
	var (
		doc     []byte
		fetched time.Time
	)
	err := p.pool.QueryRow(ctx, `
		SELECT document, fetched_at FROM containers WHERE id = $1
	`, id).Scan(&doc, &fetched)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tm.ErrContainerNotFound
	}
	if err != nil {
		return nil, err
	}

	var c tm.Container
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("decode cached container %s: %w", id, err)
	}
	c.FetchedAt = fetched
	return &c, nil
}

// InsertHits stores hits for appID in one transaction and returns how many
// were new. Hits already stored under the same id are skipped, so a
// redelivered batch is harmless.
func (p *PostgresStore) InsertHits(ctx context.Context, appID string, hits []tm.Hit) (int, error) {
	if appID == "" {
		return 0, errors.New("appID required")
	}
	if len(hits) == 0 {
		return 0, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := 0
	for _, h := range hits {
		if h.ID == "" || h.Event == "" {
			return 0, errors.New("hit id/event required")
		}
		payload := h.Payload
		if payload == nil {
			payload = tm.Map{}
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO hits(app_id, hit_id, tag, tag_type, event, container_id, container_version, ts, payload)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (app_id, hit_id) DO NOTHING
		`, appID, h.ID, h.Tag, h.TagType, h.Event, h.ContainerID, h.ContainerVersion, h.Timestamp.UTC(), b)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// CountHits returns the number of hits for (appID, event) in [from,to).
func (p *PostgresStore) CountHits(ctx context.Context, appID, event string, from, to time.Time) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM hits
		WHERE app_id=$1
		  AND event=$2
		  AND ts >= $3
		  AND ts <  $4
	`, appID, event, from, to).Scan(&count)
	return count, err
}

// HitSink delivers dispatched hits into the hits table under one app id.
type HitSink struct {
	Store *PostgresStore
	AppID string
}

func (s HitSink) SendHits(ctx context.Context, hits []tm.Hit) error {
	_, err := s.Store.InsertHits(ctx, s.AppID, hits)
	return err
}
