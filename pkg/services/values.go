package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Dataset cells arrive as []any straight from the readers: nil, Go numeric
// kinds, bool, string, []byte or time.Time. The helpers below give them one
// consistent reading for null checks, numeric casts, display and identity.

// timestampLayout renders time values the way they are compared and sampled.
const timestampLayout = "2006-01-02 15:04:05"

// isNull reports whether v is a missing value. NaN floats count as missing.
func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// nonNull returns the non-missing values of a column in order.
func nonNull(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if !isNull(v) {
			out = append(out, v)
		}
	}
	return out
}

// toNumber casts v to a float. integral reports whether the value is an
// integer kind or an integer literal, which decides how it is rendered.
func toNumber(v any) (f float64, integral bool, ok bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true, true
	case int8:
		return float64(x), true, true
	case int16:
		return float64(x), true, true
	case int32:
		return float64(x), true, true
	case int64:
		return float64(x), true, true
	case uint:
		return float64(x), true, true
	case uint8:
		return float64(x), true, true
	case uint16:
		return float64(x), true, true
	case uint32:
		return float64(x), true, true
	case uint64:
		return float64(x), true, true
	case float32:
		return float64(x), false, true
	case float64:
		return x, false, true
	case bool:
		if x {
			return 1, true, true
		}
		return 0, true, true
	case string:
		return parseNumber(x)
	case []byte:
		return parseNumber(string(x))
	}
	return 0, false, false
}

func parseNumber(s string) (float64, bool, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(i), true, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, false
	}
	return f, false, true
}

// isIntegerKind reports whether v is a Go integer value.
func isIntegerKind(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// stringify renders a value for samples, examples and string checks.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case time.Time:
		return x.Format(timestampLayout)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	}
	return fmt.Sprint(v)
}

// formatFloat renders f in shortest round-trip form, always keeping a
// decimal point or exponent so floats stay distinguishable from integers
// ("50000.0", "0.1", "1e+16").
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// formatNumber renders a numeric statistic as an integer when the source
// column is integral, as a float otherwise.
func formatNumber(f float64, integral bool) string {
	if integral && f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return strconv.FormatInt(int64(f), 10)
	}
	return formatFloat(f)
}

// valueKey identifies a value for distinct counting. Numbers compare by
// value across kinds, so 1, 1.0 and true are the same key.
func valueKey(v any) string {
	if isIntegerKind(v) {
		return "n:" + fmt.Sprint(v)
	}
	switch x := v.(type) {
	case float64, float32, bool:
		f, _, _ := toNumber(x)
		return "n:" + formatNumber(f, true)
	case string:
		return "s:" + x
	case []byte:
		return "s:" + string(x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("o:%v", v)
}

// distinct returns the first occurrence of each distinct value, in order.
func distinct(values []any) []any {
	seen := make(map[string]struct{}, len(values))
	out := make([]any, 0)
	for _, v := range values {
		k := valueKey(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// distinctStrings is distinct for already-rendered values.
func distinctStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func stringifyAll(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = stringify(v)
	}
	return out
}

// firstN returns at most n leading elements.
func firstN[T any](values []T, n int) []T {
	if len(values) > n {
		return values[:n]
	}
	return values
}

// numericSeries is a column cast to numbers with unparseable cells dropped.
type numericSeries struct {
	values []float64
	// integral is true when every cell, nulls included, parsed as an integer;
	// one null or one fractional value turns the whole series into floats.
	integral bool
}

// coerceNumeric casts every value, dropping nulls, failures and non-finite
// results.
func coerceNumeric(values []any) numericSeries {
	s := numericSeries{integral: len(values) > 0}
	for _, v := range values {
		if isNull(v) {
			s.integral = false
			continue
		}
		f, integral, ok := toNumber(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			s.integral = false
			continue
		}
		if !integral {
			s.integral = false
		}
		s.values = append(s.values, f)
	}
	return s
}

func (s numericSeries) format(f float64) string {
	return formatNumber(f, s.integral)
}
