package mssql

import (
	"fmt"
	"strconv"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

// parseSchemaTable parses a table name that may include schema.
// SQL Server format: [schema].[table] or schema.table
// Returns (schema, table). Defaults to "dbo" schema if not specified.
func parseSchemaTable(tableName string) (string, string) {
	cleaned := strings.ReplaceAll(tableName, "[", "")
	cleaned = strings.ReplaceAll(cleaned, "]", "")

	parts := strings.SplitN(cleaned, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}

	return "dbo", cleaned
}

// quoteName brackets an identifier the way QUOTENAME does, escaping ] as ]].
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// buildFullyQualifiedName builds a fully qualified table name: [schema].[table]
func buildFullyQualifiedName(schema, table string) string {
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}

// declaredType maps SQL Server type names to catalog types. Types without a
// mapping are left for inference.
func declaredType(sqlServerType string) models.DataType {
	switch strings.ToUpper(sqlServerType) {
	case "TINYINT", "SMALLINT", "INT", "BIGINT":
		return models.DataTypeInteger
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY", "FLOAT", "REAL":
		return models.DataTypeFloat
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT", "UNIQUEIDENTIFIER":
		return models.DataTypeText
	case "DATE", "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET":
		return models.DataTypeTimestamp
	case "BIT":
		return models.DataTypeBoolean
	default:
		return ""
	}
}

// isDecimalType reports whether the driver returns the type as text bytes.
func isDecimalType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

// convertValue turns a scanned driver value into a plain Go value.
// DECIMAL family columns arrive as text bytes and become float64;
// UNIQUEIDENTIFIER arrives in SQL Server's mixed-endian byte order.
func convertValue(v any, sqlType string) any {
	b, ok := v.([]byte)
	if !ok {
		return datasource.NormalizeValue(v)
	}

	switch {
	case isDecimalType(sqlType):
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return string(b)
		}
		return f
	case strings.EqualFold(sqlType, "UNIQUEIDENTIFIER"):
		var id mssqldb.UniqueIdentifier
		if err := id.Scan(b); err != nil {
			return fmt.Sprintf("%X", b)
		}
		return id.String()
	default:
		return string(b)
	}
}
