package services

import (
	"math"
	"regexp"
	"time"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// Inference thresholds. The order of the checks in InferSemanticType is a
// priority: numeric beats date beats categorical beats string, so
// numeric-looking codes (postal codes, serial dates) classify as numeric.
const (
	dateSampleSize         = 20
	dateMatchRatio         = 0.5
	categoricalRatio       = 0.05
	categoricalMaxDistinct = 20
)

var dateLikePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,4}[-/]\d{1,2}[-/]\d{1,4}`),
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
}

// InferSemanticType classifies a column from its values. Nulls (nil, NaN)
// are ignored; a column without values is unknown.
func InferSemanticType(values []any) models.SemanticType {
	present := nonNull(values)
	if len(present) == 0 {
		return models.SemanticUnknown
	}

	if allNumeric(present) {
		return models.SemanticNumeric
	}

	if looksLikeDates(present) {
		return models.SemanticDate
	}

	unique := len(distinct(present))
	if float64(unique)/float64(len(present)) < categoricalRatio || unique < categoricalMaxDistinct {
		return models.SemanticCategorical
	}

	return models.SemanticString
}

func allNumeric(values []any) bool {
	for _, v := range values {
		if _, _, ok := toNumber(v); !ok {
			return false
		}
	}
	return true
}

// looksLikeDates reports whether more than half of the leading sample
// contains a date-shaped substring.
func looksLikeDates(values []any) bool {
	sample := firstN(values, dateSampleSize)
	matches := 0
	for _, v := range sample {
		s := stringify(v)
		for _, p := range dateLikePatterns {
			if p.MatchString(s) {
				matches++
				break
			}
		}
	}
	return float64(matches)/float64(len(sample)) > dateMatchRatio
}

// InferDeclaredType maps the Go kinds of a column's values onto the catalog
// type vocabulary. Integers with missing values widen to FLOAT, matching how
// an integer column with gaps is materialized by dataframe tooling.
func InferDeclaredType(values []any) models.DataType {
	var ints, floats, bools, times, others, nulls int
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			nulls++
		case float64:
			if math.IsNaN(x) {
				nulls++
			} else {
				floats++
			}
		case float32:
			if math.IsNaN(float64(x)) {
				nulls++
			} else {
				floats++
			}
		case bool:
			bools++
		case time.Time:
			times++
		default:
			if isIntegerKind(v) {
				ints++
			} else {
				others++
			}
		}
	}

	present := ints + floats + bools + times + others
	switch {
	case present == 0 || others > 0:
		return models.DataTypeText
	case ints == present && nulls == 0:
		return models.DataTypeInteger
	case ints+floats == present:
		return models.DataTypeFloat
	case bools == present:
		return models.DataTypeBoolean
	case times == present:
		return models.DataTypeTimestamp
	}
	return models.DataTypeText
}
