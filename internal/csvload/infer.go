package csvload

import (
	"strconv"
	"strings"
	"time"
)

type ColumnType string

const (
	TypeInt      ColumnType = "INT"
	TypeFloat    ColumnType = "FLOAT"
	TypeBool     ColumnType = "BOOLEAN"
	TypeDateTime ColumnType = "DATETIME"
	TypeVarchar  ColumnType = "VARCHAR(255)"
)

// missingMarkers are the cell values read as a missing value, matching the
// default NA set of common dataframe CSV readers.
var missingMarkers = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

var dateTimeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339,
	time.RFC3339Nano,
}

func IsMissing(raw string) bool {
	_, ok := missingMarkers[raw]
	return ok
}

// InferTypes picks one SQL type per column. A column is INT only when every
// value is an integer and none is missing; integers with gaps widen to FLOAT.
// BOOLEAN needs a complete True/False column. Columns with no values at all
// are FLOAT.
func InferTypes(columns int, rows [][]string) []ColumnType {
	types := make([]ColumnType, columns)
	for col := 0; col < columns; col++ {
		types[col] = inferColumn(rows, col)
	}
	return types
}

func inferColumn(rows [][]string, col int) ColumnType {
	var (
		missing  bool
		present  int
		allInt   = true
		allFloat = true
		allBool  = true
		allTime  = true
	)
	for _, row := range rows {
		raw := cell(row, col)
		if IsMissing(raw) {
			missing = true
			continue
		}
		present++
		value := strings.TrimSpace(raw)
		if allInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := parseFloat(value); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(value); !ok {
				allBool = false
			}
		}
		if allTime {
			if _, err := parseDateTime(value); err != nil {
				allTime = false
			}
		}
	}

	switch {
	case present == 0:
		return TypeFloat
	case allInt && !missing:
		return TypeInt
	case allInt || allFloat:
		return TypeFloat
	case allBool && !missing:
		return TypeBool
	case allTime:
		return TypeDateTime
	default:
		return TypeVarchar
	}
}

// ConvertValue turns one cell into the value inserted for a column of type t.
// Missing cells become nil so they are stored as SQL NULL.
func ConvertValue(t ColumnType, raw string) (any, error) {
	if IsMissing(raw) {
		return nil, nil
	}
	value := strings.TrimSpace(raw)
	switch t {
	case TypeInt:
		return strconv.ParseInt(value, 10, 64)
	case TypeFloat:
		return parseFloat(value)
	case TypeBool:
		b, ok := parseBool(value)
		if !ok {
			return nil, &strconv.NumError{Func: "ParseBool", Num: value, Err: strconv.ErrSyntax}
		}
		return b, nil
	case TypeDateTime:
		return parseDateTime(value)
	default:
		return raw, nil
	}
}

func parseFloat(value string) (float64, error) {
	switch strings.ToLower(value) {
	case "inf", "+inf", "infinity", "+infinity":
		value = "+Inf"
	case "-inf", "-infinity":
		value = "-Inf"
	}
	return strconv.ParseFloat(value, 64)
}

func parseBool(value string) (bool, bool) {
	switch value {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	default:
		return false, false
	}
}

func parseDateTime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
