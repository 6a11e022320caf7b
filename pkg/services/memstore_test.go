package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/repositories"
)

// memStore is an in-memory catalog store shared by the repository mocks.
// memTx snapshots it when a transaction starts and restores the snapshot
// when the transaction fails, so rollback is observable in tests.
type memStore struct {
	mu sync.Mutex

	tables   []*models.Table
	columns  []*models.Column
	profiles []*models.Profile
	issues   []*models.Issue
	changes  []*models.SchemaChange
	edges    []*models.LineageEdge
	runs     []*models.LineageRun

	// failProfileColumns makes profile inserts fail for these column names.
	failProfileColumns map[string]bool
	issueCreateErr     error
	changeCreateErr    error
	getPreviousErr     error

	rollbacks int
}

func newMemStore() *memStore {
	return &memStore{failProfileColumns: map[string]bool{}}
}

type memSnapshot struct {
	tables   []*models.Table
	columns  []models.Column
	profiles []*models.Profile
	issues   []models.Issue
	changes  []*models.SchemaChange
	edges    []*models.LineageEdge
	runs     []*models.LineageRun
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		tables:   append([]*models.Table(nil), s.tables...),
		profiles: append([]*models.Profile(nil), s.profiles...),
		changes:  append([]*models.SchemaChange(nil), s.changes...),
		edges:    append([]*models.LineageEdge(nil), s.edges...),
		runs:     append([]*models.LineageRun(nil), s.runs...),
	}
	for _, c := range s.columns {
		snap.columns = append(snap.columns, *c)
	}
	for _, i := range s.issues {
		snap.issues = append(snap.issues, *i)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = snap.tables
	s.profiles = snap.profiles
	s.changes = snap.changes
	s.edges = snap.edges
	s.runs = snap.runs
	s.columns = nil
	for i := range snap.columns {
		c := snap.columns[i]
		s.columns = append(s.columns, &c)
	}
	s.issues = nil
	for i := range snap.issues {
		issue := snap.issues[i]
		s.issues = append(s.issues, &issue)
	}
	s.rollbacks++
}

// memTx implements database.Transactor over a memStore.
type memTx struct {
	store *memStore
}

func (t *memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) tableByID(id uuid.UUID) *models.Table {
	for _, t := range s.tables {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *memStore) columnByID(id uuid.UUID) *models.Column {
	for _, c := range s.columns {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ============================================================================
// CatalogRepository
// ============================================================================

type memCatalogRepo struct{ *memStore }

var _ repositories.CatalogRepository = memCatalogRepo{}

func (r memCatalogRepo) CreateTable(ctx context.Context, table *models.Table) error {
	r.mu.Lock()
	for _, t := range r.tables {
		if t.Name == table.Name {
			r.mu.Unlock()
			return fmt.Errorf("table %q: %w", table.Name, apperrors.ErrConflict)
		}
	}
	table.ID = uuid.New()
	table.CreatedAt = time.Now().UTC()
	table.UpdatedAt = table.CreatedAt
	stored := *table
	stored.Columns = nil
	r.tables = append(r.tables, &stored)
	r.mu.Unlock()

	for _, col := range table.Columns {
		col.TableID = table.ID
		if err := r.UpsertColumn(ctx, col); err != nil {
			return err
		}
	}
	return nil
}

func (r memCatalogRepo) GetTableByID(_ context.Context, tableID uuid.UUID) (*models.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.tableByID(tableID); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (r memCatalogRepo) GetTableByName(_ context.Context, name string) (*models.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tables {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memCatalogRepo) ListTables(_ context.Context) ([]*models.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]*models.Table(nil), r.tables...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memCatalogRepo) TouchTable(_ context.Context, tableID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tableByID(tableID)
	if t == nil {
		return apperrors.ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memCatalogRepo) ListColumns(_ context.Context, tableID uuid.UUID) ([]*models.Column, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Column
	for _, c := range r.columns {
		if c.TableID == tableID && c.DeletedAt == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r memCatalogRepo) GetColumnByID(_ context.Context, columnID uuid.UUID) (*models.Column, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.columnByID(columnID); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r memCatalogRepo) GetColumnByName(_ context.Context, tableName, columnName string) (*models.Column, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.columns {
		t := r.tableByID(c.TableID)
		if t != nil && t.Name == tableName && c.Name == columnName && c.DeletedAt == nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memCatalogRepo) UpsertColumn(_ context.Context, column *models.Column) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.columns {
		if c.TableID == column.TableID && c.Name == column.Name && c.DeletedAt == nil {
			c.DataType = column.DataType
			c.Nullable = column.Nullable
			c.Position = column.Position
			column.ID = c.ID
			column.CreatedAt = c.CreatedAt
			return nil
		}
	}
	column.ID = uuid.New()
	column.CreatedAt = time.Now().UTC()
	cp := *column
	r.columns = append(r.columns, &cp)
	return nil
}

func (r memCatalogRepo) SoftDeleteColumns(_ context.Context, tableID uuid.UUID, names []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, c := range r.columns {
		if c.TableID != tableID || c.DeletedAt != nil {
			continue
		}
		for _, name := range names {
			if c.Name == name {
				c.DeletedAt = &now
				n++
			}
		}
	}
	return n, nil
}

// ============================================================================
// ProfileRepository
// ============================================================================

type memProfileRepo struct{ *memStore }

var _ repositories.ProfileRepository = memProfileRepo{}

func (r memProfileRepo) Create(_ context.Context, profile *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.columnByID(profile.ColumnID); c != nil && r.failProfileColumns[c.Name] {
		return errors.New("check constraint violated")
	}
	profile.ID = uuid.New()
	r.profiles = append(r.profiles, profile)
	return nil
}

func (r memProfileRepo) ListByColumn(_ context.Context, tableID, columnID uuid.UUID, limit int) ([]*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Profile
	// Newest first; later inserts win timestamp ties.
	for i := len(r.profiles) - 1; i >= 0; i-- {
		p := r.profiles[i]
		if p.TableID == tableID && p.ColumnID == columnID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProfileTimestamp.After(out[j].ProfileTimestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memProfileRepo) GetPrevious(ctx context.Context, tableID, columnID uuid.UUID) (*models.Profile, error) {
	if r.getPreviousErr != nil {
		return nil, r.getPreviousErr
	}
	list, err := r.ListByColumn(ctx, tableID, columnID, 2)
	if err != nil || len(list) < 2 {
		return nil, err
	}
	return list[1], nil
}

// ============================================================================
// IssueRepository
// ============================================================================

type memIssueRepo struct{ *memStore }

var _ repositories.IssueRepository = memIssueRepo{}

func (r memIssueRepo) Create(_ context.Context, issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.issueCreateErr != nil {
		return r.issueCreateErr
	}
	issue.ID = uuid.New()
	r.issues = append(r.issues, issue)
	return nil
}

func (r memIssueRepo) GetByID(_ context.Context, issueID uuid.UUID) (*models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.issues {
		if i.ID == issueID {
			return i, nil
		}
	}
	return nil, nil
}

func (r memIssueRepo) ListByTable(_ context.Context, tableID uuid.UUID, openOnly bool) ([]*models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Issue
	for i := len(r.issues) - 1; i >= 0; i-- {
		issue := r.issues[i]
		if issue.TableID != tableID || (openOnly && !issue.IsOpen()) {
			continue
		}
		out = append(out, issue)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

func (r memIssueRepo) FindOpen(_ context.Context, tableID uuid.UUID, columnID *uuid.UUID, columnName string, issueType models.IssueType) (*models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.issues {
		if i.TableID != tableID || i.IssueType != issueType || !i.IsOpen() {
			continue
		}
		switch {
		case columnID == nil && i.ColumnID == nil:
			if i.ColumnName == columnName {
				return i, nil
			}
		case columnID != nil && i.ColumnID != nil && *columnID == *i.ColumnID:
			return i, nil
		}
	}
	return nil, nil
}

func (r memIssueRepo) Resolve(_ context.Context, issueID uuid.UUID, resolvedAt time.Time) (*models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.issues {
		if i.ID == issueID {
			if i.ResolvedAt == nil {
				i.ResolvedAt = &resolvedAt
			}
			return i, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// ============================================================================
// SchemaChangeRepository
// ============================================================================

type memSchemaChangeRepo struct{ *memStore }

var _ repositories.SchemaChangeRepository = memSchemaChangeRepo{}

func (r memSchemaChangeRepo) Create(_ context.Context, change *models.SchemaChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.changeCreateErr != nil {
		return r.changeCreateErr
	}
	change.ID = uuid.New()
	r.changes = append(r.changes, change)
	return nil
}

func (r memSchemaChangeRepo) ListByTable(_ context.Context, tableID uuid.UUID) ([]*models.SchemaChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SchemaChange
	for _, c := range r.changes {
		if c.TableID == tableID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ============================================================================
// LineageRepository
// ============================================================================

type memLineageRepo struct{ *memStore }

var _ repositories.LineageRepository = memLineageRepo{}

func (r memLineageRepo) CreateEdge(_ context.Context, edge *models.LineageEdge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.edges {
		if e.SourceColumnID == edge.SourceColumnID && e.TargetColumnID == edge.TargetColumnID {
			*edge = *e
			return false, nil
		}
	}
	edge.ID = uuid.New()
	edge.CreatedAt = time.Now().UTC()
	cp := *edge
	r.edges = append(r.edges, &cp)
	return true, nil
}

func (r memLineageRepo) GetEdge(_ context.Context, sourceColumnID, targetColumnID uuid.UUID) (*models.LineageEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.edges {
		if e.SourceColumnID == sourceColumnID && e.TargetColumnID == targetColumnID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memLineageRepo) neighbors(columnID uuid.UUID, upstream bool) []*models.LineageNeighbor {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LineageNeighbor
	for _, e := range r.edges {
		near, far := e.SourceColumnID, e.TargetColumnID
		if upstream {
			near, far = e.TargetColumnID, e.SourceColumnID
		}
		if near != columnID {
			continue
		}
		n := &models.LineageNeighbor{Edge: e, ColumnID: far}
		if c := r.columnByID(far); c != nil {
			n.ColumnName = c.Name
			if t := r.tableByID(c.TableID); t != nil {
				n.TableName = t.Name
			}
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TableName != out[j].TableName {
			return out[i].TableName < out[j].TableName
		}
		return out[i].ColumnName < out[j].ColumnName
	})
	return out
}

func (r memLineageRepo) ListUpstream(_ context.Context, columnID uuid.UUID) ([]*models.LineageNeighbor, error) {
	return r.neighbors(columnID, true), nil
}

func (r memLineageRepo) ListDownstream(_ context.Context, columnID uuid.UUID) ([]*models.LineageNeighbor, error) {
	return r.neighbors(columnID, false), nil
}

func (r memLineageRepo) label(columnID uuid.UUID) string {
	c := r.columnByID(columnID)
	if c == nil {
		return columnID.String()
	}
	t := r.tableByID(c.TableID)
	if t == nil {
		return c.Name
	}
	return models.QualifiedColumnName(t.Name, c.Name)
}

func (r memLineageRepo) ListEdges(_ context.Context) ([]models.LineageGraphEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LineageGraphEdge, 0, len(r.edges))
	for _, e := range r.edges {
		out = append(out, models.LineageGraphEdge{
			Source: r.label(e.SourceColumnID),
			Target: r.label(e.TargetColumnID),
			Type:   e.LineageType,
		})
	}
	return out, nil
}

func (r memLineageRepo) CreateRun(_ context.Context, run *models.LineageRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = uuid.New()
	r.runs = append(r.runs, run)
	return nil
}

func (r memLineageRepo) ListRuns(_ context.Context, tableID uuid.UUID) ([]*models.LineageRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LineageRun
	for _, run := range r.runs {
		if run.SourceTableID == tableID || run.TargetTableID == tableID {
			out = append(out, run)
		}
	}
	return out, nil
}

// ============================================================================
// Fixtures
// ============================================================================

// seedTable registers a table with columns of the given names and types.
func seedTable(t interface{ Helper() }, store *memStore, name string, columns ...models.ColumnSchema) *models.Table {
	t.Helper()
	table := &models.Table{Name: name}
	for i, c := range columns {
		table.Columns = append(table.Columns, &models.Column{Name: c.Name, DataType: c.DataType, Nullable: true, Position: i})
	}
	if err := (memCatalogRepo{store}).CreateTable(context.Background(), table); err != nil {
		panic(err)
	}
	return table
}

func salaryDataset() *models.Dataset {
	return &models.Dataset{
		Name: "employees",
		Columns: []models.DatasetColumn{
			{Name: "id", Values: []any{1, 2, 3, 4, 5}},
			{Name: "salary", Values: []any{50000, 60000, nil, 70000, 65000}},
		},
	}
}
