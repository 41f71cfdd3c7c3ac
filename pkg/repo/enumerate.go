package repo

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/veldtdb/veldt/pkg/graph"
)

// The enumeration engine is implemented once and shared by every entity
// kind through a tableSpec. Pagination is keyset-based: the continuation
// token records the last returned row's GUID and ordering value, so
// resumption stays correct even when earlier rows are deleted between
// pages. Skip composes with the token by applying an OFFSET after the
// cursor position.

const maxPageSize = 1000

// tableSpec describes how one entity table plugs into the shared
// enumeration engine.
type tableSpec[T any] struct {
	table string
	// columns selected for scan, in scan order.
	columns string
	// nameCol backs the name orderings (model for vectors, label for
	// labels, tag_key for tags).
	nameCol string
	// scopeCol is the tenant scope column; tenants themselves scope on
	// their own guid.
	scopeCol string
	// hasGraph is true when rows carry graph_guid scope.
	hasGraph bool
	// labelOwner/tagOwner name the subordinate owner column ("node_guid"
	// or "edge_guid") when label/tag filters apply; empty otherwise.
	labelOwner string
	tagOwner   string

	scan func(*sql.Rows) (T, error)
	// key extracts the cursor fields from a scanned row.
	key func(item T) (guid string, createdNanos int64, name string)
	// finish post-processes a page (subordinate loading, payload
	// stripping) before it is returned. Optional.
	finish func(ctx context.Context, c *Client, items []T, req graph.EnumerationRequest) error
}

// continuationCursor is the decoded form of an opaque continuation
// token. Versioned so the format can evolve without breaking callers
// holding old tokens.
type continuationCursor struct {
	Version  int            `json:"v"`
	Ordering graph.Ordering `json:"o"`
	LastGUID string         `json:"g"`
	LastKey  string         `json:"k"`
	// Position is the number of rows consumed so far under this
	// ordering, skipped rows included.
	Position int64 `json:"p"`
}

func encodeCursor(cur continuationCursor) string {
	raw, _ := json.Marshal(cur)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string, ordering graph.Ordering) (*continuationCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed continuation token", graph.ErrValidation)
	}
	var cur continuationCursor
	if err := json.Unmarshal(raw, &cur); err != nil || cur.Version != 1 {
		return nil, fmt.Errorf("%w: malformed continuation token", graph.ErrValidation)
	}
	if cur.Ordering != ordering {
		return nil, fmt.Errorf("%w: continuation token ordering %q does not match request ordering %q",
			graph.ErrValidation, cur.Ordering, ordering)
	}
	return &cur, nil
}

// enumerate runs the shared pagination algorithm for one entity table.
func enumerate[T any](ctx context.Context, c *Client, spec tableSpec[T], req graph.EnumerationRequest) (*graph.EnumerationResult[T], error) {
	if req.TenantGUID == "" {
		return nil, fmt.Errorf("%w: tenant GUID required", graph.ErrValidation)
	}
	if req.Skip < 0 {
		return nil, fmt.Errorf("%w: skip must be non-negative", graph.ErrValidation)
	}

	ordering := req.Ordering
	if ordering == "" {
		ordering = graph.OrderCreatedAscending
	}
	if !ordering.Valid() {
		return nil, fmt.Errorf("%w: unknown ordering %q", graph.ErrValidation, req.Ordering)
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = graph.DefaultMaxResults
	}
	if maxResults > maxPageSize {
		maxResults = maxPageSize
	}

	var cursor *continuationCursor
	if req.ContinuationToken != "" {
		var err error
		cursor, err = decodeCursor(req.ContinuationToken, ordering)
		if err != nil {
			return nil, err
		}
	}

	where, args := spec.filterClause(req)

	// Count and page share the filter; the cursor narrows only the page.
	var total int64
	countQuery := "SELECT COUNT(*) FROM " + spec.table + " t" + where
	if err := c.queryRow(ctx, countQuery, args, &total); err != nil {
		return nil, fmt.Errorf("%w: count %s: %v", graph.ErrStorage, spec.table, err)
	}

	pageWhere, pageArgs := where, args
	if cursor != nil {
		cond, condArgs, err := spec.cursorClause(ordering, cursor)
		if err != nil {
			return nil, err
		}
		pageWhere += " AND " + cond
		pageArgs = append(append([]any{}, args...), condArgs...)
	}

	query := "SELECT " + spec.columns + " FROM " + spec.table + " t" + pageWhere +
		spec.orderClause(ordering) + " LIMIT ? OFFSET ?"
	pageArgs = append(pageArgs, maxResults, req.Skip)

	objects := make([]T, 0, maxResults)
	err := c.queryAll(ctx, query, pageArgs, func(rows *sql.Rows) error {
		item, err := spec.scan(rows)
		if err != nil {
			return err
		}
		objects = append(objects, item)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if spec.finish != nil {
		if err := spec.finish(ctx, c, objects, req); err != nil {
			return nil, err
		}
	}

	var position int64
	if cursor != nil {
		position = cursor.Position
	}
	position += int64(req.Skip) + int64(len(objects))

	remaining := total - position
	if remaining < 0 {
		remaining = 0
	}

	result := &graph.EnumerationResult[T]{
		Objects:          objects,
		MaxResults:       maxResults,
		TotalRecords:     total,
		RecordsRemaining: remaining,
		EndOfResults:     remaining == 0,
	}

	if !result.EndOfResults && len(objects) > 0 {
		lastGUID, lastCreated, lastName := spec.key(objects[len(objects)-1])
		result.ContinuationToken = encodeCursor(continuationCursor{
			Version:  1,
			Ordering: ordering,
			LastGUID: lastGUID,
			LastKey:  cursorKey(ordering, lastCreated, lastName),
			Position: position,
		})
	}

	return result, nil
}

func cursorKey(ordering graph.Ordering, createdNanos int64, name string) string {
	switch ordering {
	case graph.OrderCreatedAscending, graph.OrderCreatedDescending:
		return strconv.FormatInt(createdNanos, 10)
	case graph.OrderNameAscending, graph.OrderNameDescending:
		return name
	default:
		return ""
	}
}

// filterClause builds the WHERE clause shared by the count and page
// queries: tenant scope, optional graph scope, label and tag filters.
func (s tableSpec[T]) filterClause(req graph.EnumerationRequest) (string, []any) {
	scopeCol := s.scopeCol
	if scopeCol == "" {
		scopeCol = "tenant_guid"
	}
	conds := []string{"t." + scopeCol + " = ?"}
	args := []any{req.TenantGUID}

	if s.hasGraph && req.GraphGUID != "" {
		conds = append(conds, "t.graph_guid = ?")
		args = append(args, req.GraphGUID)
	}

	if s.labelOwner != "" {
		for _, label := range req.Labels {
			conds = append(conds, "EXISTS (SELECT 1 FROM labels l WHERE l."+s.labelOwner+" = t.guid AND l.label = ?)")
			args = append(args, label)
		}
	}
	if s.tagOwner != "" {
		for key, value := range req.Tags {
			conds = append(conds, "EXISTS (SELECT 1 FROM tags g WHERE g."+s.tagOwner+" = t.guid AND g.tag_key = ? AND g.tag_value = ?)")
			args = append(args, key, value)
		}
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// cursorClause resumes strictly after the cursor row under the given
// ordering, with the GUID tiebreak.
func (s tableSpec[T]) cursorClause(ordering graph.Ordering, cur *continuationCursor) (string, []any, error) {
	switch ordering {
	case graph.OrderCreatedAscending, graph.OrderCreatedDescending:
		nanos, err := strconv.ParseInt(cur.LastKey, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: malformed continuation token", graph.ErrValidation)
		}
		if ordering == graph.OrderCreatedAscending {
			return "(t.created_utc > ? OR (t.created_utc = ? AND t.guid > ?))",
				[]any{nanos, nanos, cur.LastGUID}, nil
		}
		return "(t.created_utc < ? OR (t.created_utc = ? AND t.guid < ?))",
			[]any{nanos, nanos, cur.LastGUID}, nil

	case graph.OrderNameAscending, graph.OrderNameDescending:
		if ordering == graph.OrderNameAscending {
			return "(t." + s.nameCol + " > ? OR (t." + s.nameCol + " = ? AND t.guid > ?))",
				[]any{cur.LastKey, cur.LastKey, cur.LastGUID}, nil
		}
		return "(t." + s.nameCol + " < ? OR (t." + s.nameCol + " = ? AND t.guid < ?))",
			[]any{cur.LastKey, cur.LastKey, cur.LastGUID}, nil

	case graph.OrderGUIDAscending:
		return "t.guid > ?", []any{cur.LastGUID}, nil
	case graph.OrderGUIDDescending:
		return "t.guid < ?", []any{cur.LastGUID}, nil
	}
	return "", nil, fmt.Errorf("%w: unknown ordering %q", graph.ErrValidation, ordering)
}

func (s tableSpec[T]) orderClause(ordering graph.Ordering) string {
	switch ordering {
	case graph.OrderCreatedAscending:
		return " ORDER BY t.created_utc ASC, t.guid ASC"
	case graph.OrderCreatedDescending:
		return " ORDER BY t.created_utc DESC, t.guid DESC"
	case graph.OrderNameAscending:
		return " ORDER BY t." + s.nameCol + " ASC, t.guid ASC"
	case graph.OrderNameDescending:
		return " ORDER BY t." + s.nameCol + " DESC, t.guid DESC"
	case graph.OrderGUIDDescending:
		return " ORDER BY t.guid DESC"
	default:
		return " ORDER BY t.guid ASC"
	}
}
