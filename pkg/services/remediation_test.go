package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func TestSQLIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"orders", "orders"},
		{"order_items2", "order_items2"},
		{"Salary", `"Salary"`},
		{"order items", `"order items"`},
		{`we"ird`, `"we""ird"`},
		{"", "<column>"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sqlIdentifier(tt.in))
		})
	}
}

func TestSuggestedFix(t *testing.T) {
	assert.Equal(t, "UPDATE users SET email = TRIM(email);",
		SuggestedFix(models.IssueTypeWhitespaceIssues, "users", "email"))
	assert.Equal(t, `UPDATE "Users" SET "Email" = LOWER("Email");`,
		SuggestedFix(models.IssueTypeCaseSensitivity, "Users", "Email"))
}

func TestSuggestedFix_UnknownTypeUsesGenericTemplate(t *testing.T) {
	fix := SuggestedFix("referential_gap", "orders", "customer_id")

	assert.True(t, strings.HasPrefix(fix, "-- Generic fix for referential_gap\n"))
	assert.Contains(t, fix, "SELECT * FROM orders WHERE customer_id IS NOT NULL LIMIT 10;")
}

func TestRemediationPlaybook(t *testing.T) {
	sql := RemediationPlaybook(models.IssueTypeDuplicates, "orders", "order_id")

	assert.Contains(t, sql, "DELETE FROM orders a USING orders b")
	assert.Contains(t, sql, "a.order_id = b.order_id")
	assert.NotContains(t, sql, "{")
}

func TestRemediationPlaybook_DriftQuotesLiterals(t *testing.T) {
	sql := RemediationPlaybook(models.IssueTypeDataDrift, "o'brien", "age")

	assert.Contains(t, sql, "t.name = 'o''brien'")
	assert.Contains(t, sql, "c.name = 'age'")
}

func TestRemediationPlaybook_EveryIssueTypeRenders(t *testing.T) {
	for issueType := range remediationFixes {
		t.Run(string(issueType), func(t *testing.T) {
			sql := RemediationPlaybook(issueType, "t", "c")
			assert.NotContains(t, sql, "{table}")
			assert.NotContains(t, sql, "{column}")
			assert.NotContains(t, sql, "Generic fix")
		})
	}
}

func TestCountNoun(t *testing.T) {
	assert.Equal(t, "1 metric", countNoun(1, "metrics"))
	assert.Equal(t, "3 metrics", countNoun(3, "metric"))
	assert.Equal(t, "0 values", countNoun(0, "value"))
}
