package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

const (
	maxExamples         = 3
	dateFormatSample    = 100
	longValueThreshold  = 1000
	longValueExampleLen = 100
)

// specialCharacter matches anything that is not a word character,
// whitespace, hyphen or period.
var specialCharacter = regexp.MustCompile(`[^\p{L}\p{N}_\s\v\x{1c}-\x{1f}\x{85}\p{Z}\-.]`)

// Date shapes, tried in order against the start of each value.
var dateShapes = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"YYYY-MM-DD", regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)},
	{"MM/DD/YYYY", regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`)},
	{"Mixed format", regexp.MustCompile(`^\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`)},
}

const invalidDateShape = "Invalid"

// columnData is one column under analysis.
type columnData struct {
	table   string
	name    string
	values  []any
	present []any
}

func newColumnData(table, name string, values []any) columnData {
	return columnData{table: table, name: name, values: values, present: nonNull(values)}
}

func (c columnData) issue(issueType models.IssueType, severity models.Severity, count int, pct float64, description string, examples []string) *models.Issue {
	return &models.Issue{
		ColumnName:       c.name,
		IssueType:        issueType,
		Severity:         severity,
		Description:      description,
		SuggestedFix:     SuggestedFix(issueType, c.table, c.name),
		AffectedRowCount: count,
		Percentage:       pct,
		Examples:         firstN(examples, maxExamples),
	}
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// ============================================================================
// Checks applied to every column
// ============================================================================

func checkMissingValues(c columnData) *models.Issue {
	nulls := len(c.values) - len(c.present)
	if nulls == 0 {
		return nil
	}
	pct := percentOf(nulls, len(c.values))

	severity := models.SeverityMedium
	switch {
	case pct > 30:
		severity = models.SeverityCritical
	case pct > 10:
		severity = models.SeverityHigh
	}

	var rows []string
	for i, v := range c.values {
		if len(rows) == maxExamples {
			break
		}
		if isNull(v) {
			rows = append(rows, strconv.Itoa(i))
		}
	}

	return c.issue(models.IssueTypeMissingValues, severity, nulls, pct,
		fmt.Sprintf("%d null/missing values (%.1f%%)", nulls, pct), rows)
}

func checkDuplicates(c columnData) *models.Issue {
	if len(c.present) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(c.present))
	reported := make(map[string]struct{})
	var examples []string
	dups := 0
	for _, v := range c.present {
		k := valueKey(v)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			continue
		}
		dups++
		if _, ok := reported[k]; !ok {
			reported[k] = struct{}{}
			examples = append(examples, stringify(v))
		}
	}
	if dups == 0 {
		return nil
	}

	pct := percentOf(dups, len(c.present))
	severity := models.SeverityMedium
	if pct >= 20 {
		severity = models.SeverityHigh
	}

	return c.issue(models.IssueTypeDuplicates, severity, dups, pct,
		fmt.Sprintf("%d duplicate values (%.1f%%)", dups, pct), examples)
}

// ============================================================================
// Numeric columns
// ============================================================================

func checkNumeric(c columnData) []*models.Issue {
	var issues []*models.Issue
	if issue := checkInvalidNumeric(c); issue != nil {
		issues = append(issues, issue)
	}

	series := coerceNumeric(c.present)
	if issue := checkNegativeValues(c, series); issue != nil {
		issues = append(issues, issue)
	}
	if issue := checkOutliers(c, series); issue != nil {
		issues = append(issues, issue)
	}
	return issues
}

// checkInvalidNumeric flags values that do not cast to a number. Always
// critical regardless of how few there are.
func checkInvalidNumeric(c columnData) *models.Issue {
	var invalid []string
	invalidSet := make(map[string]struct{})
	for _, v := range distinct(c.present) {
		if _, _, ok := toNumber(v); ok {
			continue
		}
		s := stringify(v)
		if _, dup := invalidSet[s]; !dup {
			invalidSet[s] = struct{}{}
			invalid = append(invalid, s)
		}
	}
	if len(invalid) == 0 {
		return nil
	}

	count := 0
	for _, v := range c.present {
		if _, ok := invalidSet[stringify(v)]; ok {
			count++
		}
	}

	return c.issue(models.IssueTypeInvalidNumeric, models.SeverityCritical, count, percentOf(count, len(c.present)),
		"Non-numeric values in numeric column: "+strings.Join(firstN(invalid, maxExamples), ", "), invalid)
}

func checkNegativeValues(c columnData, series numericSeries) *models.Issue {
	var negatives []string
	for _, v := range series.values {
		if v < 0 {
			negatives = append(negatives, series.format(v))
		}
	}
	if len(negatives) == 0 {
		return nil
	}

	return c.issue(models.IssueTypeNegativeValues, models.SeverityHigh, len(negatives), percentOf(len(negatives), len(series.values)),
		fmt.Sprintf("%d negative values in %s", len(negatives), c.name), distinctStrings(negatives))
}

func checkOutliers(c columnData, series numericSeries) *models.Issue {
	fences, ok := newIQRFences(series.values)
	if !ok {
		return nil
	}

	var outliers []string
	for _, v := range series.values {
		if fences.isOutlier(v) {
			outliers = append(outliers, series.format(v))
		}
	}
	if len(outliers) == 0 {
		return nil
	}

	severity := models.SeverityMedium
	if float64(len(outliers))/float64(len(series.values)) < 0.05 {
		severity = models.SeverityLow
	}

	issue := c.issue(models.IssueTypeOutliers, severity, len(outliers), percentOf(len(outliers), len(series.values)),
		fmt.Sprintf("%d outlier values detected", len(outliers)), distinctStrings(outliers))
	issue.SuggestedFix = suggestedFix(fixArgs{
		issueType: models.IssueTypeOutliers,
		table:     c.table,
		column:    c.name,
		lower:     fences.Lower,
		upper:     fences.Upper,
	})
	return issue
}

// ============================================================================
// Date columns
// ============================================================================

func dateShapeOf(s string) string {
	for _, shape := range dateShapes {
		if shape.pattern.MatchString(s) {
			return shape.name
		}
	}
	return invalidDateShape
}

// checkMixedDateFormats reports a column whose sampled values come in more
// than one shape. The issue covers the whole column.
func checkMixedDateFormats(c columnData) *models.Issue {
	unique := distinctStrings(stringifyAll(c.present))

	var shapes []string
	seen := make(map[string]struct{})
	for _, s := range firstN(unique, dateFormatSample) {
		shape := dateShapeOf(s)
		if _, ok := seen[shape]; ok {
			continue
		}
		seen[shape] = struct{}{}
		shapes = append(shapes, shape)
	}
	if len(shapes) <= 1 {
		return nil
	}

	quoted := make([]string, len(shapes))
	for i, s := range shapes {
		quoted[i] = "'" + s + "'"
	}

	return c.issue(models.IssueTypeMixedDateFormats, models.SeverityHigh, len(c.present), 100,
		fmt.Sprintf("Mixed date formats: [%s]", strings.Join(quoted, ", ")), unique)
}

// ============================================================================
// Categorical columns
// ============================================================================

func checkCategorical(c columnData) []*models.Issue {
	var issues []*models.Issue
	strs := stringifyAll(c.present)
	unique := distinctStrings(strs)

	lowered := make([]string, len(unique))
	for i, s := range unique {
		lowered[i] = strings.ToLower(s)
	}
	if len(distinctStrings(lowered)) < len(unique) {
		issues = append(issues, c.issue(models.IssueTypeCaseSensitivity, models.SeverityMedium,
			len(unique), percentOf(len(unique), len(c.present)),
			"Inconsistent casing in categorical column", unique))
	}

	var padded []string
	for _, s := range unique {
		if strings.TrimSpace(s) != s {
			padded = append(padded, s)
		}
	}
	if len(padded) > 0 {
		examples := make([]string, 0, maxExamples)
		for _, s := range firstN(padded, maxExamples) {
			examples = append(examples, "'"+s+"'")
		}
		issues = append(issues, c.issue(models.IssueTypeWhitespaceIssues, models.SeverityMedium,
			len(padded), percentOf(len(padded), len(c.present)),
			"Whitespace inconsistencies found", examples))
	}

	return issues
}

// ============================================================================
// String columns
// ============================================================================

func checkStrings(c columnData) []*models.Issue {
	if len(c.present) == 0 {
		return nil
	}
	var issues []*models.Issue
	strs := stringifyAll(c.present)

	var special []string
	for _, s := range distinctStrings(strs) {
		if specialCharacter.MatchString(s) {
			special = append(special, s)
		}
	}
	if len(special) > 0 {
		issues = append(issues, c.issue(models.IssueTypeSpecialCharacters, models.SeverityLow,
			len(special), percentOf(len(special), len(strs)),
			"Special characters or noise in string column", special))
	}

	maxLen, long := 0, 0
	firstLong := ""
	for _, s := range strs {
		n := utf8.RuneCountInString(s)
		if n > maxLen {
			maxLen = n
		}
		if n > longValueThreshold {
			if long == 0 {
				firstLong = s
			}
			long++
		}
	}
	if maxLen > longValueThreshold {
		issues = append(issues, c.issue(models.IssueTypeUnusuallyLongValues, models.SeverityLow,
			long, percentOf(long, len(strs)),
			fmt.Sprintf("Very long string values (max: %d chars)", maxLen),
			[]string{truncateRunes(firstLong, longValueExampleLen) + "..."}))
	}

	return issues
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
