package nl2sql

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/querychat/querychat/internal/schema"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type queryPromptData struct {
	Dialect         string
	Database        string
	Tables          []schema.Table
	RetrievedSchema string
}

type humanizePromptData struct {
	Question string
	Result   string
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

// DialectForDriver names the SQL dialect the model should target.
func DialectForDriver(driver string) string {
	switch driver {
	case "postgres":
		return "PostgreSQL"
	case "duckdb":
		return "DuckDB"
	default:
		return "MySQL"
	}
}
