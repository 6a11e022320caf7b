package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// LineageFile is the YAML document accepted by ImportEdges:
//
//	edges:
//	  - source: raw_orders.amount
//	    target: orders.amount_usd
//	    type: derived
//	    transformation: amount * fx_rate
type LineageFile struct {
	Edges []LineageFileEdge `yaml:"edges"`
}

// LineageFileEdge is one edge of a LineageFile. Source and target are
// "table.column" labels of registered columns.
type LineageFileEdge struct {
	Source         string `yaml:"source"`
	Target         string `yaml:"target"`
	Type           string `yaml:"type"`
	Transformation string `yaml:"transformation"`
}

// ImportResult summarizes an edge import.
type ImportResult struct {
	Added    []*models.LineageEdge `json:"added"`
	Existing []*models.LineageEdge `json:"existing"`
	Failed   []ImportFailure       `json:"failed,omitempty"`
}

// ImportFailure is an edge that could not be imported.
type ImportFailure struct {
	Index  int    `json:"index"`
	Source string `json:"source"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

// ParseLineageFile decodes a lineage YAML document.
func ParseLineageFile(r io.Reader) (*LineageFile, error) {
	var file LineageFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("failed to parse lineage file: %w", err)
	}
	return &file, nil
}

// splitColumnLabel splits "table.column" at the last dot, so schema-qualified
// table names like "public.orders.id" keep their schema.
func splitColumnLabel(label string) (table, column string, err error) {
	i := strings.LastIndex(label, ".")
	if i <= 0 || i == len(label)-1 {
		return "", "", fmt.Errorf("column label %q is not table.column: %w", label, apperrors.ErrInvalidInput)
	}
	return label[:i], label[i+1:], nil
}

// ImportEdges resolves each edge's labels through the catalog and adds it.
// Edges with invalid labels, types or unknown columns are reported in Failed
// and do not stop the import. Any other error aborts it; edges added before
// the failure stay unless the caller's scope is a transaction.
func (s *lineageTrackerService) ImportEdges(ctx context.Context, r io.Reader) (*ImportResult, error) {
	file, err := ParseLineageFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	result := &ImportResult{
		Added:    []*models.LineageEdge{},
		Existing: []*models.LineageEdge{},
	}
	for i, e := range file.Edges {
		edge, created, err := s.importEdge(ctx, e)
		if err != nil {
			if !isEdgeRejection(err) {
				return nil, fmt.Errorf("failed to import lineage edge %d (%s -> %s): %w", i, e.Source, e.Target, err)
			}
			s.logger.Warn("Skipping lineage edge",
				zap.Int("index", i),
				zap.String("source", e.Source),
				zap.String("target", e.Target),
				zap.Error(err))
			result.Failed = append(result.Failed, ImportFailure{
				Index:  i,
				Source: e.Source,
				Target: e.Target,
				Error:  err.Error(),
			})
			continue
		}
		if created {
			result.Added = append(result.Added, edge)
		} else {
			result.Existing = append(result.Existing, edge)
		}
	}

	s.logger.Info("Imported lineage edges",
		zap.Int("added", len(result.Added)),
		zap.Int("existing", len(result.Existing)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

// isEdgeRejection reports whether err describes a bad edge rather than a
// failing store.
func isEdgeRejection(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, apperrors.ErrNotFound)
}

func (s *lineageTrackerService) importEdge(ctx context.Context, e LineageFileEdge) (*models.LineageEdge, bool, error) {
	lineageType := models.LineageType(e.Type)
	if lineageType == "" {
		lineageType = models.LineageTypeDirect
	}
	if !lineageType.IsValid() {
		return nil, false, fmt.Errorf("lineage type %q: %w", e.Type, apperrors.ErrInvalidInput)
	}

	source, err := s.ResolveColumn(ctx, e.Source)
	if err != nil {
		return nil, false, err
	}
	target, err := s.ResolveColumn(ctx, e.Target)
	if err != nil {
		return nil, false, err
	}

	edge := &models.LineageEdge{
		SourceColumnID:      source.ID,
		TargetColumnID:      target.ID,
		LineageType:         lineageType,
		TransformationLogic: e.Transformation,
	}
	created, err := s.lineageRepo.CreateEdge(ctx, edge)
	if err != nil {
		return nil, false, err
	}
	return edge, created, nil
}

func (s *lineageTrackerService) ResolveColumn(ctx context.Context, label string) (*models.Column, error) {
	table, column, err := splitColumnLabel(label)
	if err != nil {
		return nil, err
	}
	col, err := s.catalogRepo.GetColumnByName(ctx, table, column)
	if err != nil {
		return nil, fmt.Errorf("failed to get column %s: %w", label, err)
	}
	if col == nil {
		return nil, fmt.Errorf("column %s: %w", label, apperrors.ErrNotFound)
	}
	return col, nil
}
