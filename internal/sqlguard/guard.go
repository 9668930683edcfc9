// Package sqlguard optionally checks model-generated SQL before it reaches
// the database. The default mode passes text through untouched.
package sqlguard

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

type Mode string

const (
	ModeOff      Mode = "off"
	ModeParse    Mode = "parse"
	ModeReadOnly Mode = "readonly"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeOff:
		return ModeOff, nil
	case ModeParse:
		return ModeParse, nil
	case ModeReadOnly:
		return ModeReadOnly, nil
	default:
		return "", fmt.Errorf("unknown sql guard mode %q", raw)
	}
}

// RejectedError reports why a statement was refused.
type RejectedError struct {
	Mode   Mode
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sql rejected (%s): %s: %v", e.Mode, e.Reason, e.Err)
	}
	return fmt.Sprintf("sql rejected (%s): %s", e.Mode, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

type Guard struct {
	mode Mode
}

func New(mode Mode) *Guard {
	if mode == "" {
		mode = ModeOff
	}
	return &Guard{mode: mode}
}

func (g *Guard) Mode() Mode {
	if g == nil {
		return ModeOff
	}
	return g.mode
}

// Check returns nil when sqlText may be executed under the guard's mode.
// A nil guard behaves as ModeOff.
func (g *Guard) Check(sqlText string) error {
	mode := g.Mode()
	if mode == ModeOff {
		return nil
	}
	stmt, err := sqlparser.Parse(sqlText)
	if err != nil {
		return &RejectedError{Mode: mode, Reason: "statement does not parse", Err: err}
	}
	if mode == ModeParse {
		return nil
	}
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect, *sqlparser.Show:
		return nil
	default:
		return &RejectedError{Mode: mode, Reason: fmt.Sprintf("%T is not a read-only statement", stmt)}
	}
}
