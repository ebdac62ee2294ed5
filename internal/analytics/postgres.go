package analytics

import (
    "context"
    "database/sql"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `CREATE TABLE IF NOT EXISTS category_dwell (
    id          UUID PRIMARY KEY,
    session_id  TEXT NOT NULL,
    category    TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    seconds     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS category_dwell_ended_at_idx ON category_dwell (ended_at);`

// Postgres stores dwell records in the category_dwell table.
type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Migrate creates the table when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
    _, err := p.db.ExecContext(ctx, schema)
    return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Record(ctx context.Context, d Dwell) error {
    id := d.ID
    if id == "" { id = uuid.New().String() }
    _, err := p.db.ExecContext(ctx,
        `INSERT INTO category_dwell (id, session_id, category, started_at, ended_at, seconds) VALUES ($1,$2,$3,$4,$5,$6)`,
        id, d.Session, d.Category, d.StartedAt.UTC(), d.EndedAt.UTC(), d.Seconds())
    return err
}

func (p *Postgres) Totals(ctx context.Context, since time.Time) ([]CategoryTotal, error) {
    rows, err := p.db.QueryContext(ctx,
        `SELECT category, COUNT(*), COALESCE(SUM(seconds),0) FROM category_dwell WHERE ended_at >= $1 GROUP BY category ORDER BY category`,
        since.UTC())
    if err != nil { return nil, err }
    defer func(){ _ = rows.Close() }()
    out := []CategoryTotal{}
    for rows.Next() {
        var t CategoryTotal
        if err := rows.Scan(&t.Category, &t.Visits, &t.TotalSeconds); err != nil { return nil, err }
        out = append(out, t)
    }
    return out, rows.Err()
}
