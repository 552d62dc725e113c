package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"FRBScanner/internal/astro"
	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CatalogRepository reads and appends rows of the catalog table. The pipeline
// only reads; appends happen through the post-merge apply command.
type CatalogRepository struct {
	db    *sql.DB
	table string
}

var _ ports.CatalogReader = (*CatalogRepository)(nil)

// NewCatalogRepository wires a sql.DB holding the catalog table.
func NewCatalogRepository(db *sql.DB, table string) (*CatalogRepository, error) {
	if table == "" {
		table = "frbs"
	}
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid catalog table name %q", table)
	}
	return &CatalogRepository{db: db, table: table}, nil
}

// EnsureSchema creates the catalog table when it does not exist yet.
func (r *CatalogRepository) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    Name      TEXT PRIMARY KEY,
    ra        REAL NOT NULL,
    dec       REAL NOT NULL,
    DM        REAL NOT NULL,
    z         REAL,
    ee_a      REAL,
    ee_b      REAL,
    RM        REAL,
    repeater  TEXT NOT NULL DEFAULT 'no',
    telescope TEXT NOT NULL DEFAULT 'unknown',
    refs      TEXT NOT NULL DEFAULT ''
)`, r.table)
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create catalog table: %w", err)
	}
	return nil
}

// Snapshot loads every row into an immutable snapshot.
func (r *CatalogRepository) Snapshot(ctx context.Context) (*catalog.Snapshot, error) {
	records, err := r.list(ctx, r.db)
	if err != nil {
		return nil, err
	}
	return catalog.NewSnapshot(records), nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *CatalogRepository) list(ctx context.Context, q queryer) ([]domain.CatalogRecord, error) {
	query, args, err := builder.Select(catalog.Columns...).From(r.table).OrderBy("Name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build catalog query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var records []domain.CatalogRecord
	for rows.Next() {
		var (
			rec                 domain.CatalogRecord
			ra, dec, dm         sql.NullFloat64
			z, eeA, eeB, rm     sql.NullFloat64
			repeater, tel, refs sql.NullString
		)
		if err := rows.Scan(&rec.Name, &ra, &dec, &dm, &z, &eeA, &eeB, &rm, &repeater, &tel, &refs); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		rec.RA, rec.Dec, rec.DM = ra.Float64, dec.Float64, dm.Float64
		rec.Z, rec.EllipseA, rec.EllipseB, rec.RM = nullable(z), nullable(eeA), nullable(eeB), nullable(rm)
		rec.Repeater = catalog.ParseRepeater(repeater.String)
		rec.Telescope = tel.String
		rec.Refs = catalog.SplitRefs(refs.String)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return records, nil
}

// Append inserts new rows in one transaction. If any name already exists
// (spacing and case ignored) nothing is written and ErrNameExists is returned.
func (r *CatalogRepository) Append(ctx context.Context, records []domain.CatalogRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := r.list(ctx, tx)
	if err != nil {
		return 0, err
	}
	snap := catalog.NewSnapshot(existing)

	var clashes []string
	seen := map[string]struct{}{}
	for _, rec := range records {
		name := astro.NormalizeName(rec.Name)
		if _, dup := seen[name]; dup || snap.Contains(name) {
			clashes = append(clashes, rec.Name)
		}
		seen[name] = struct{}{}
	}
	if len(clashes) > 0 {
		return 0, fmt.Errorf("%w: %s", domain.ErrNameExists, strings.Join(clashes, ", "))
	}

	for _, rec := range records {
		query, args, err := builder.Insert(r.table).
			Columns(catalog.Columns...).
			Values(astro.NormalizeName(rec.Name), rec.RA, rec.Dec, rec.DM,
				nullArg(rec.Z), nullArg(rec.EllipseA), nullArg(rec.EllipseB), nullArg(rec.RM),
				catalog.FormatRepeater(rec.Repeater), rec.Telescope, catalog.JoinRefs(rec.Refs)).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build insert for %s: %w", rec.Name, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert %s: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return len(records), nil
}

// Stats summarises the catalog for the stats command and the HTTP API.
func (r *CatalogRepository) Stats(ctx context.Context) (catalog.Stats, error) {
	var st catalog.Stats

	query, args, err := builder.Select("COUNT(*)", "COUNT(z)", "MIN(z)", "MAX(z)").From(r.table).ToSql()
	if err != nil {
		return st, fmt.Errorf("build stats query: %w", err)
	}
	var minZ, maxZ sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&st.Total, &st.WithRedshift, &minZ, &maxZ); err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}
	st.MinRedshift, st.MaxRedshift = nullable(minZ), nullable(maxZ)

	query, args, err = builder.Select("telescope", "COUNT(*) AS n").
		From(r.table).
		GroupBy("telescope").
		OrderBy("n DESC", "telescope").
		ToSql()
	if err != nil {
		return st, fmt.Errorf("build telescope query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return st, fmt.Errorf("query telescopes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc catalog.TelescopeCount
		var name sql.NullString
		if err := rows.Scan(&name, &tc.Count); err != nil {
			return st, fmt.Errorf("scan telescope row: %w", err)
		}
		tc.Telescope = name.String
		st.ByTelescope = append(st.ByTelescope, tc)
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate telescope rows: %w", err)
	}
	return st, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
