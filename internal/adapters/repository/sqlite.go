package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/okian/refbox/internal/domain/model"
	"github.com/okian/refbox/pkg/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLStore persists tournament entities in sqlite. Entities are stored as
// JSON documents keyed by id, with the version mirrored into a column so the
// optimistic-concurrency check is a single guarded UPDATE.
type SQLStore struct {
	db     *sql.DB
	logger logger.Logger
}

// SQLOption applies a configuration option to the SQLStore.
type SQLOption func(*SQLStore)

// WithSQLLogger sets a custom logger.
func WithSQLLogger(l logger.Logger) SQLOption {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSQLStore opens (creating if necessary) the sqlite database at path and
// runs pending migrations.
func NewSQLStore(path string, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{logger: logger.Get().Named("repository")}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer keeps the guarded-update concurrency check simple.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s.db = db
	s.logger.Info(context.Background(), "database ready", logger.String("path", path))
	return s, nil
}

func (s *SQLStore) GetMatch(ctx context.Context, id string) (model.Match, error) {
	return getDoc[model.Match](ctx, s.db, "matches", id)
}

func (s *SQLStore) PutMatch(ctx context.Context, m model.Match, prev int64) error {
	return s.putDoc(ctx, "matches", m.ID, m.DivisionID, m.Version, prev, m)
}

func (s *SQLStore) ListMatches(ctx context.Context, division string) ([]model.Match, error) {
	out, err := listDocs[model.Match](ctx, s.db, "matches", division)
	if err != nil {
		return nil, err
	}
	sortMatches(out)
	return out, nil
}

func (s *SQLStore) GetScoresheet(ctx context.Context, id string) (model.Scoresheet, error) {
	return getDoc[model.Scoresheet](ctx, s.db, "scoresheets", id)
}

func (s *SQLStore) PutScoresheet(ctx context.Context, sh model.Scoresheet, prev int64) error {
	return s.putDoc(ctx, "scoresheets", sh.ID, sh.DivisionID, sh.Version, prev, sh)
}

func (s *SQLStore) ListScoresheets(ctx context.Context, division string) ([]model.Scoresheet, error) {
	return listDocs[model.Scoresheet](ctx, s.db, "scoresheets", division)
}

func (s *SQLStore) GetRubric(ctx context.Context, id string) (model.Rubric, error) {
	return getDoc[model.Rubric](ctx, s.db, "rubrics", id)
}

func (s *SQLStore) PutRubric(ctx context.Context, r model.Rubric, prev int64) error {
	return s.putDoc(ctx, "rubrics", r.ID, r.DivisionID, r.Version, prev, r)
}

func (s *SQLStore) ListRubrics(ctx context.Context, division string) ([]model.Rubric, error) {
	return listDocs[model.Rubric](ctx, s.db, "rubrics", division)
}

func (s *SQLStore) GetDivisionState(ctx context.Context, division string) (model.DivisionState, error) {
	st, err := getDoc[model.DivisionState](ctx, s.db, "division_states", division)
	if errors.Is(err, model.ErrNotFound) {
		return model.DivisionState{DivisionID: division, CurrentStage: model.StagePractice}, nil
	}
	return st, err
}

func (s *SQLStore) PutDivisionState(ctx context.Context, st model.DivisionState, prev int64) error {
	return s.putDoc(ctx, "division_states", st.DivisionID, st.DivisionID, st.Version, prev, st)
}

func (s *SQLStore) Divisions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT division_id FROM division_states
		UNION SELECT division_id FROM matches
		UNION SELECT division_id FROM scoresheets
		UNION SELECT division_id FROM rubrics
		ORDER BY division_id`)
	if err != nil {
		return nil, fmt.Errorf("list divisions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) Versions(ctx context.Context, division string) (map[model.ResourceType]int64, error) {
	out := make(map[model.ResourceType]int64, 3)
	for table, resource := range map[string]model.ResourceType{
		"matches":         model.ResourceMatch,
		"division_states": model.ResourceMatch,
		"scoresheets":     model.ResourceScoresheet,
		"rubrics":         model.ResourceRubric,
	} {
		var v sql.NullInt64
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT MAX(version) FROM %s WHERE division_id = ?", table),
			division,
		).Scan(&v)
		if err != nil {
			return nil, fmt.Errorf("max version of %s: %w", table, err)
		}
		if v.Valid && v.Int64 > out[resource] {
			out[resource] = v.Int64
		}
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// putDoc writes one entity with the shared concurrency rule. The guarded
// UPDATE succeeds only when the stored version matches prev; a miss is then
// disambiguated into create, not-found or conflict.
func (s *SQLStore) putDoc(ctx context.Context, table, id, division string, version, prev int64, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", table, id, err)
	}

	key := "id"
	if table == "division_states" {
		key = "division_id"
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET version = ?, doc = ? WHERE %s = ? AND version = ?", table, key),
		version, string(raw), id, prev,
	)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var stored int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT version FROM %s WHERE %s = ?", table, key), id,
	).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if prev != 0 {
			return fmt.Errorf("%s %s: %w", table, id, model.ErrNotFound)
		}
	case err != nil:
		return fmt.Errorf("read %s %s: %w", table, id, err)
	default:
		return fmt.Errorf("%s %s: stored version %d, expected %d: %w", table, id, stored, prev, model.ErrConflict)
	}

	if table == "division_states" {
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO division_states (division_id, version, doc) VALUES (?, ?, ?)",
			id, version, string(raw),
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, division_id, version, doc) VALUES (?, ?, ?, ?)", table),
			id, division, version, string(raw),
		)
	}
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", table, id, err)
	}
	return nil
}

func getDoc[T any](ctx context.Context, db *sql.DB, table, id string) (T, error) {
	var zero T
	key := "id"
	if table == "division_states" {
		key = "division_id"
	}
	var raw string
	err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE %s = ?", table, key), id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%s %s: %w", table, id, model.ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("read %s %s: %w", table, id, err)
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return zero, fmt.Errorf("decode %s %s: %w", table, id, err)
	}
	return out, nil
}

func listDocs[T any](ctx context.Context, db *sql.DB, table, division string) ([]T, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE division_id = ? ORDER BY id", table), division,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func sortMatches(out []model.Match) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return stageOrder(out[i].Stage) < stageOrder(out[j].Stage)
		}
		return out[i].Number < out[j].Number
	})
}
