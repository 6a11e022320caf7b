package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
	"github.com/ekaya-inc/ekaya-quality/pkg/repositories"
)

// LineageTrackerService records and traverses column-level lineage.
type LineageTrackerService interface {
	// AddEdge records source -> target. Adding an existing pair returns the
	// stored edge unchanged.
	AddEdge(ctx context.Context, sourceColumnID, targetColumnID uuid.UUID, lineageType models.LineageType, transformation string) (*models.LineageEdge, error)

	// GetUpstream returns the columns target depends on, up to maxDepth hops.
	// A maxDepth of 0 returns no columns; a negative maxDepth is invalid input.
	GetUpstream(ctx context.Context, columnID uuid.UUID, maxDepth int) (*models.LineageResult, error)

	// GetDownstream returns the columns that depend on source, up to maxDepth
	// hops, with the same depth rules as GetUpstream.
	GetDownstream(ctx context.Context, columnID uuid.UUID, maxDepth int) (*models.LineageResult, error)

	// GetGraph exports every edge with "table.column" labels.
	GetGraph(ctx context.Context) (*models.LineageGraph, error)

	// RecordRun appends a pipeline execution to the audit log.
	RecordRun(ctx context.Context, run *models.LineageRun) (*models.LineageRun, error)

	// ImportEdges adds the edges described by a YAML lineage file.
	ImportEdges(ctx context.Context, r io.Reader) (*ImportResult, error)

	// ResolveColumn looks up a registered column by its "table.column" label.
	ResolveColumn(ctx context.Context, label string) (*models.Column, error)
}

type lineageTrackerService struct {
	catalogRepo repositories.CatalogRepository
	lineageRepo repositories.LineageRepository
	logger      *zap.Logger
}

// NewLineageTrackerService creates a new lineage tracker.
func NewLineageTrackerService(
	catalogRepo repositories.CatalogRepository,
	lineageRepo repositories.LineageRepository,
	logger *zap.Logger,
) LineageTrackerService {
	return &lineageTrackerService{
		catalogRepo: catalogRepo,
		lineageRepo: lineageRepo,
		logger:      logger.Named("lineage"),
	}
}

var _ LineageTrackerService = (*lineageTrackerService)(nil)

func (s *lineageTrackerService) AddEdge(ctx context.Context, sourceColumnID, targetColumnID uuid.UUID, lineageType models.LineageType, transformation string) (*models.LineageEdge, error) {
	if lineageType == "" {
		lineageType = models.LineageTypeDirect
	}
	if !lineageType.IsValid() {
		return nil, fmt.Errorf("lineage type %q: %w", lineageType, apperrors.ErrInvalidInput)
	}

	for _, id := range []uuid.UUID{sourceColumnID, targetColumnID} {
		column, err := s.catalogRepo.GetColumnByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get column: %w", err)
		}
		if column == nil {
			return nil, fmt.Errorf("column %s: %w", id, apperrors.ErrNotFound)
		}
	}

	edge := &models.LineageEdge{
		SourceColumnID:      sourceColumnID,
		TargetColumnID:      targetColumnID,
		LineageType:         lineageType,
		TransformationLogic: transformation,
	}
	created, err := s.lineageRepo.CreateEdge(ctx, edge)
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("Added lineage edge",
			zap.String("source", sourceColumnID.String()),
			zap.String("target", targetColumnID.String()),
			zap.String("type", string(lineageType)))
	} else {
		s.logger.Debug("Lineage edge already exists",
			zap.String("source", sourceColumnID.String()),
			zap.String("target", targetColumnID.String()))
	}
	return edge, nil
}

func (s *lineageTrackerService) GetUpstream(ctx context.Context, columnID uuid.UUID, maxDepth int) (*models.LineageResult, error) {
	return s.traverse(ctx, columnID, maxDepth, models.LineageUpstream, s.lineageRepo.ListUpstream)
}

func (s *lineageTrackerService) GetDownstream(ctx context.Context, columnID uuid.UUID, maxDepth int) (*models.LineageResult, error) {
	return s.traverse(ctx, columnID, maxDepth, models.LineageDownstream, s.lineageRepo.ListDownstream)
}

type neighborFunc func(ctx context.Context, columnID uuid.UUID) ([]*models.LineageNeighbor, error)

// traverse walks the graph breadth-first from columnID with an explicit
// queue. Each column is reported once, at the depth it was first reached.
// Columns at depth maxDepth are reported but not expanded. The start column
// appears only when a cycle leads back to it.
func (s *lineageTrackerService) traverse(ctx context.Context, columnID uuid.UUID, maxDepth int, direction string, neighbors neighborFunc) (*models.LineageResult, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth %d: %w", maxDepth, apperrors.ErrInvalidInput)
	}

	result := &models.LineageResult{
		ColumnID:  columnID,
		Direction: direction,
		MaxDepth:  maxDepth,
		Columns:   []models.LineageNode{},
	}

	type pending struct {
		id    uuid.UUID
		depth int
	}
	queue := []pending{{id: columnID}}
	expanded := map[uuid.UUID]bool{}
	reported := map[uuid.UUID]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if expanded[cur.id] || cur.depth >= maxDepth {
			continue
		}
		expanded[cur.id] = true

		found, err := neighbors(ctx, cur.id)
		if err != nil {
			return nil, fmt.Errorf("failed to traverse %s lineage: %w", direction, err)
		}
		for _, n := range found {
			if reported[n.ColumnID] {
				continue
			}
			reported[n.ColumnID] = true
			result.Columns = append(result.Columns, models.LineageNode{
				ColumnID:    n.ColumnID,
				ColumnName:  n.ColumnName,
				TableName:   n.TableName,
				Label:       models.QualifiedColumnName(n.TableName, n.ColumnName),
				LineageType: n.Edge.LineageType,
				Depth:       cur.depth + 1,
				ViaColumnID: cur.id,
			})
			queue = append(queue, pending{id: n.ColumnID, depth: cur.depth + 1})
		}
	}

	result.Count = len(result.Columns)
	return result, nil
}

func (s *lineageTrackerService) GetGraph(ctx context.Context) (*models.LineageGraph, error) {
	edges, err := s.lineageRepo.ListEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage edges: %w", err)
	}

	graph := &models.LineageGraph{
		Nodes: []string{},
		Edges: []models.LineageGraphEdge{},
	}
	seen := map[string]bool{}
	for _, e := range edges {
		for _, label := range []string{e.Source, e.Target} {
			if !seen[label] {
				seen[label] = true
				graph.Nodes = append(graph.Nodes, label)
			}
		}
		graph.Edges = append(graph.Edges, e)
	}
	sort.Strings(graph.Nodes)

	s.logger.Debug("Built lineage graph",
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)))
	return graph, nil
}

func (s *lineageTrackerService) RecordRun(ctx context.Context, run *models.LineageRun) (*models.LineageRun, error) {
	if run.Status == "" {
		run.Status = models.LineageRunSuccess
	}
	switch run.Status {
	case models.LineageRunSuccess, models.LineageRunFailed, models.LineageRunPartial:
	default:
		return nil, fmt.Errorf("run status %q: %w", run.Status, apperrors.ErrInvalidInput)
	}
	if run.RowCountSource < 0 || run.RowCountTarget < 0 {
		return nil, fmt.Errorf("negative row count: %w", apperrors.ErrInvalidInput)
	}
	if run.RunTimestamp.IsZero() {
		run.RunTimestamp = time.Now().UTC()
	}

	if err := s.lineageRepo.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("Recorded lineage run",
		zap.String("source_table_id", run.SourceTableID.String()),
		zap.String("target_table_id", run.TargetTableID.String()),
		zap.String("status", run.Status))
	return run, nil
}

// RenderDOT writes the graph in Graphviz DOT syntax with the lineage type
// as each edge's label.
func RenderDOT(w io.Writer, graph *models.LineageGraph) error {
	var b strings.Builder
	b.WriteString("digraph lineage {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range graph.Nodes {
		fmt.Fprintf(&b, "  %s;\n", dotQuote(n))
	}
	for _, e := range graph.Edges {
		fmt.Fprintf(&b, "  %s -> %s [label=%s];\n", dotQuote(e.Source), dotQuote(e.Target), dotQuote(string(e.Type)))
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func dotQuote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
