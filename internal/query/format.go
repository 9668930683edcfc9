package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatRows renders rows as a list of tuples, e.g. [(1234567.89,)] or
// [('USA', 3627982.83), ('Spain', 1215686.92)]. Numbers are written at full
// precision, NULL becomes None and text is single-quoted.
func FormatRows(rows [][]any) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatTuple(row))
	}
	b.WriteByte(']')
	return b.String()
}

func formatTuple(row []any) string {
	if len(row) == 1 {
		return "(" + FormatValue(row[0]) + ",)"
	}
	parts := make([]string, len(row))
	for i, value := range row {
		parts[i] = FormatValue(value)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// FormatValue renders one cell the way FormatRows does.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return quoteText(v)
	case []byte:
		return quoteText(string(v))
	case Decimal:
		return string(v)
	case float64:
		return formatFloat(v, 64)
	case float32:
		return formatFloat(float64(v), 32)
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return quoteText(v.Format("2006-01-02"))
		}
		return quoteText(v.Format("2006-01-02 15:04:05"))
	case fmt.Stringer:
		return quoteText(v.String())
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat uses the shortest round-trip digits and switches to exponent
// notation only for very large or very small magnitudes.
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f != 0 {
		exp := math.Floor(math.Log10(math.Abs(f)))
		if exp < -4 || exp >= 16 {
			return strconv.FormatFloat(f, 'e', -1, bitSize)
		}
	}
	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

func quoteText(s string) string {
	quote := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		quote = `"`
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	if quote == "'" {
		s = strings.ReplaceAll(s, "'", `\'`)
	}
	s = strings.ReplaceAll(s, "\n", `\n`)
	return quote + s + quote
}
