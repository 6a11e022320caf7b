package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// Remediation SQL is rendered from templates with {table} and {column}
// placeholders. Issues store the one-line fix; the playbook is the longer
// set of alternatives handed out by the fix suggester.

var remediationFixes = map[models.IssueType]string{
	models.IssueTypeMissingValues:       `DELETE FROM {table} WHERE {column} IS NULL; -- or impute with median/mode`,
	models.IssueTypeDuplicates:          `DELETE FROM {table} WHERE ctid NOT IN (SELECT MIN(ctid) FROM {table} GROUP BY {column});`,
	models.IssueTypeInvalidNumeric:      `DELETE FROM {table} WHERE {column} ~ '[^0-9.-]'; -- Remove non-numeric rows`,
	models.IssueTypeNegativeValues:      `UPDATE {table} SET {column} = ABS({column}) WHERE {column} < 0;`,
	models.IssueTypeOutliers:            `DELETE FROM {table} WHERE {column} < {lower} OR {column} > {upper};`,
	models.IssueTypeMixedDateFormats:    `ALTER TABLE {table} ALTER COLUMN {column} TYPE date USING to_date({column}, 'YYYY-MM-DD');`,
	models.IssueTypeCaseSensitivity:     `UPDATE {table} SET {column} = LOWER({column});`,
	models.IssueTypeWhitespaceIssues:    `UPDATE {table} SET {column} = TRIM({column});`,
	models.IssueTypeSpecialCharacters:   `UPDATE {table} SET {column} = REGEXP_REPLACE({column}, '[^\w\s-]', '', 'g');`,
	models.IssueTypeUnusuallyLongValues: `SELECT * FROM {table} WHERE LENGTH({column}) > 1000;`,
	models.IssueTypeDataDrift:           `Review the data and investigate the root cause of drift`,
}

const genericRemediation = `-- Generic fix for {type}
SELECT * FROM {table} WHERE {column} IS NOT NULL LIMIT 10;
-- Review the data and adjust the following query as needed:
-- UPDATE {table} SET {column} = ... WHERE ...;`

var remediationPlaybooks = map[models.IssueType]string{
	models.IssueTypeMissingValues: `-- Remove rows with null values
DELETE FROM {table} WHERE {column} IS NULL;

-- OR: Impute with appropriate value
UPDATE {table} SET {column} = COALESCE({column}, 'UNKNOWN') WHERE {column} IS NULL;`,

	models.IssueTypeDuplicates: `-- Remove duplicate rows, keeping first occurrence
DELETE FROM {table} a USING {table} b
WHERE a.ctid > b.ctid AND a.{column} = b.{column};

-- OR: Use window function to identify duplicates
SELECT * FROM (
  SELECT *, ROW_NUMBER() OVER (PARTITION BY {column} ORDER BY ctid) AS rn
  FROM {table}
) d WHERE rn > 1;`,

	models.IssueTypeInvalidNumeric: `-- Remove rows with non-numeric values
DELETE FROM {table} WHERE {column} ~ '[^0-9.-]';

-- OR: Convert to numeric, setting invalid to NULL
UPDATE {table} SET {column} = NULL
WHERE {column} !~ '^-?\d+(\.\d+)?$';`,

	models.IssueTypeNegativeValues: `-- Convert negative values to absolute
UPDATE {table} SET {column} = ABS(CAST({column} AS NUMERIC))
WHERE {column} < 0;

-- OR: Remove negative values
DELETE FROM {table} WHERE {column} < 0;`,

	models.IssueTypeOutliers: `-- Identify and remove outliers (IQR method)
WITH stats AS (
  SELECT
    PERCENTILE_CONT(0.25) WITHIN GROUP (ORDER BY CAST({column} AS NUMERIC)) AS q1,
    PERCENTILE_CONT(0.75) WITHIN GROUP (ORDER BY CAST({column} AS NUMERIC)) AS q3
  FROM {table}
)
DELETE FROM {table}
WHERE CAST({column} AS NUMERIC) < (SELECT q1 - 1.5*(q3-q1) FROM stats)
  OR CAST({column} AS NUMERIC) > (SELECT q3 + 1.5*(q3-q1) FROM stats);`,

	models.IssueTypeMixedDateFormats: `-- Standardize to ISO format (YYYY-MM-DD)
UPDATE {table}
SET {column} = to_char(to_timestamp({column}, 'MM/DD/YYYY'), 'YYYY-MM-DD')
WHERE {column} ~ '^\d{2}/\d{2}/\d{4}$';

-- Then convert column type
ALTER TABLE {table} ALTER COLUMN {column} TYPE date USING to_date({column}, 'YYYY-MM-DD');`,

	models.IssueTypeCaseSensitivity: `-- Standardize to lowercase
UPDATE {table} SET {column} = LOWER({column});

-- OR: Standardize to title case
UPDATE {table} SET {column} = INITCAP(LOWER({column}));`,

	models.IssueTypeWhitespaceIssues: `-- Remove leading/trailing whitespace
UPDATE {table} SET {column} = TRIM({column});

-- Also remove extra internal spaces
UPDATE {table} SET {column} = REGEXP_REPLACE(TRIM({column}), '\s+', ' ', 'g');`,

	models.IssueTypeSpecialCharacters: `-- Remove special characters
UPDATE {table}
SET {column} = REGEXP_REPLACE({column}, '[^\w\s-]', '', 'g');

-- Keep only alphanumeric and spaces
UPDATE {table}
SET {column} = REGEXP_REPLACE({column}, '[^a-zA-Z0-9\s]', '', 'g');`,

	models.IssueTypeUnusuallyLongValues: `-- Find rows with very long strings
SELECT * FROM {table} WHERE LENGTH({column}) > 1000 ORDER BY LENGTH({column}) DESC;

-- Truncate to reasonable length
UPDATE {table} SET {column} = SUBSTRING({column}, 1, 500) WHERE LENGTH({column}) > 500;`,

	models.IssueTypeDataDrift: `-- Compare the latest profiles of the drifted column
SELECT profile_timestamp, null_percentage, mean_value, unique_count
FROM dq_profiles p
JOIN dq_columns c ON c.id = p.column_id
JOIN dq_tables t ON t.id = p.table_id
WHERE t.name = '{table_literal}' AND c.name = '{column_literal}'
ORDER BY profile_timestamp DESC
LIMIT 5;`,
}

// plainIdentifier matches names that need no quoting in SQL.
var plainIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// sqlIdentifier quotes name only when it would not parse as a bare identifier.
func sqlIdentifier(name string) string {
	if name == "" {
		return "<column>"
	}
	if plainIdentifier.MatchString(name) {
		return name
	}
	return pgx.Identifier{name}.Sanitize()
}

// fixArgs carries the values substituted into remediation templates.
type fixArgs struct {
	issueType models.IssueType
	table     string
	column    string
	// outlier fences, rendered as floats
	lower, upper float64
}

func (a fixArgs) render(tmpl string) string {
	return strings.NewReplacer(
		"{type}", string(a.issueType),
		"{table}", sqlIdentifier(a.table),
		"{column}", sqlIdentifier(a.column),
		"{table_literal}", strings.ReplaceAll(a.table, "'", "''"),
		"{column_literal}", strings.ReplaceAll(a.column, "'", "''"),
		"{lower}", formatFloat(a.lower),
		"{upper}", formatFloat(a.upper),
	).Replace(tmpl)
}

// SuggestedFix returns the one-line remediation stored with an issue.
// Unknown issue types get the generic inspect-and-adjust template.
func SuggestedFix(issueType models.IssueType, table, column string) string {
	return suggestedFix(fixArgs{issueType: issueType, table: table, column: column})
}

func suggestedFix(a fixArgs) string {
	tmpl, ok := remediationFixes[a.issueType]
	if !ok {
		tmpl = genericRemediation
	}
	return a.render(tmpl)
}

// RemediationPlaybook returns the multi-statement remediation for an issue
// type, falling back to the generic template.
func RemediationPlaybook(issueType models.IssueType, table, column string) string {
	a := fixArgs{issueType: issueType, table: table, column: column}
	tmpl, ok := remediationPlaybooks[issueType]
	if !ok {
		tmpl = genericRemediation
	}
	return a.render(tmpl)
}

// countNoun renders n with the noun pluralized to agree with it.
func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, inflection.Singular(noun))
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}
