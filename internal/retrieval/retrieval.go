package retrieval

import (
	"context"
	"database/sql"
	"strings"

	"github.com/kiro-memory/worker/internal/store"
)

// Retriever wraps a Store for keyword/FTS/timeline queries.
type Retriever struct {
	store *store.Store
}

// New builds a Retriever over the given Store.
func New(s *store.Store) *Retriever {
	return &Retriever{store: s}
}

// Query narrows a search to a project/type with a page size and cursor.
type Query struct {
	Text    string
	Project string
	Type    string
	Limit   int
}

// Result pairs an observation with its raw FTS rank, used upstream by the
// scoring engine (nil rank means "no FTS signal", e.g. a keyword-only hit).
type Result struct {
	Observation *store.Observation
	FTSRank     *float64
}

// Page is one page of search results plus the cursor for the next page.
type Page struct {
	Results    []Result
	NextCursor string
}

// escapeLike escapes the literal `%_\` characters FTS/LIKE treat specially.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// KeywordSearch performs a substring match over title/text/narrative.
func (r *Retriever) KeywordSearch(ctx context.Context, q Query, cursor string) (Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(q.Text) + "%"

	args := []any{like, like, like}
	query := `SELECT ` + store.ObservationColumns + ` FROM observations
		WHERE (title LIKE ? ESCAPE '\' OR text LIKE ? ESCAPE '\' OR narrative LIKE ? ESCAPE '\')`
	if q.Project != "" {
		query += " AND project = ?"
		args = append(args, q.Project)
	}
	if q.Type != "" {
		query += " AND type = ?"
		args = append(args, q.Type)
	}

	if c := DecodeCursor(cursor); c != nil {
		query += " AND (created_at_epoch < ? OR (created_at_epoch = ? AND id < ?))"
		args = append(args, c.Epoch, c.Epoch, c.ID)
	}
	query += " ORDER BY created_at_epoch DESC, id DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	return buildPage(rows, limit)
}

// FTSSearch performs a tokenized full-text query, with project/type filters
// and rank returned for scoring.
func (r *Retriever) FTSSearch(ctx context.Context, q Query, cursor string) (Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	args := []any{q.Text}
	query := `SELECT ` + store.ObservationColumnsPrefixed("o") + `, fts.rank
		FROM observations_fts fts
		JOIN observations o ON o.id = fts.rowid
		WHERE observations_fts MATCH ?`
	if q.Project != "" {
		query += " AND o.project = ?"
		args = append(args, q.Project)
	}
	if q.Type != "" {
		query += " AND o.type = ?"
		args = append(args, q.Type)
	}
	if c := DecodeCursor(cursor); c != nil {
		query += " AND (o.created_at_epoch < ? OR (o.created_at_epoch = ? AND o.id < ?))"
		args = append(args, c.Epoch, c.Epoch, c.ID)
	}
	query += " ORDER BY o.created_at_epoch DESC, o.id DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		o, rank, err := scanObservationWithRank(rows)
		if err != nil {
			return Page{}, err
		}
		results = append(results, Result{Observation: o, FTSRank: &rank})
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return paginate(results, limit), nil
}

// scanWithRank wraps *sql.Rows so store.ScanObservation can read the first
// len(store.ObservationColumns) columns while leaving the trailing rank
// column for the caller.
type rankRow struct {
	rows *sql.Rows
	rank float64
}

func (r *rankRow) Scan(dest ...any) error {
	all := append(append([]any{}, dest...), &r.rank)
	return r.rows.Scan(all...)
}

func scanObservationWithRank(rows *sql.Rows) (*store.Observation, float64, error) {
	rr := &rankRow{rows: rows}
	o, err := store.ScanObservation(rr)
	if err != nil {
		return nil, 0, err
	}
	return o, rr.rank, nil
}

// Timeline returns up to depthBefore rows older than anchor and up to
// depthAfter rows newer than anchor, plus the anchor itself, for the same
// project, ordered chronologically.
func (r *Retriever) Timeline(ctx context.Context, anchorID int64, depthBefore, depthAfter int) ([]*store.Observation, error) {
	anchor, err := r.store.GetObservation(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	before, err := r.fetchSide(ctx, anchor, depthBefore, "<", "DESC")
	if err != nil {
		return nil, err
	}
	after, err := r.fetchSide(ctx, anchor, depthAfter, ">", "ASC")
	if err != nil {
		return nil, err
	}

	reverseObservations(before)
	out := append(before, anchor)
	out = append(out, after...)
	return out, nil
}

func (r *Retriever) fetchSide(ctx context.Context, anchor *store.Observation, depth int, cmp, order string) ([]*store.Observation, error) {
	if depth <= 0 {
		return nil, nil
	}
	query := `SELECT ` + store.ObservationColumns + ` FROM observations
		WHERE project = ? AND created_at_epoch ` + cmp + ` ?
		ORDER BY created_at_epoch ` + order + `, id ` + order + ` LIMIT ?`
	rows, err := r.store.DB().QueryContext(ctx, query, anchor.Project, anchor.CreatedAtEpoch, depth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return store.ScanObservations(rows)
}

func reverseObservations(o []*store.Observation) {
	for i, j := 0, len(o)-1; i < j; i, j = i+1, j-1 {
		o[i], o[j] = o[j], o[i]
	}
}

func buildPage(rows *sql.Rows, limit int) (Page, error) {
	observations, err := store.ScanObservations(rows)
	if err != nil {
		return Page{}, err
	}
	results := make([]Result, len(observations))
	for i, o := range observations {
		results[i] = Result{Observation: o}
	}
	return paginate(results, limit), nil
}

// paginate trims results to limit and computes the next cursor: null when
// the page came back shorter than limit+1.
func paginate(results []Result, limit int) Page {
	if len(results) <= limit {
		return Page{Results: results}
	}
	last := results[limit-1].Observation
	return Page{
		Results:    results[:limit],
		NextCursor: EncodeCursor(last.CreatedAtEpoch, last.ID),
	}
}
