// Package schema describes the tables and columns the assistant may query.
// The built-in catalog covers the sales dataset; a YAML file with the same
// shape can replace it.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	Database string  `yaml:"database" json:"database"`
	Dialect  string  `yaml:"dialect" json:"dialect"`
	Tables   []Table `yaml:"tables" json:"tables"`
}

type Table struct {
	Name    string   `yaml:"name" json:"name"`
	Columns []Column `yaml:"columns" json:"columns"`
}

type Column struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return catalog, nil
}

func Parse(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := catalog.validate(); err != nil {
		return nil, err
	}
	if catalog.Dialect == "" {
		catalog.Dialect = "MySQL"
	}
	return &catalog, nil
}

func (c *Catalog) validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("schema database is required")
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("schema must list at least one table")
	}
	for _, table := range c.Tables {
		if strings.TrimSpace(table.Name) == "" {
			return fmt.Errorf("schema table name is required")
		}
		if len(table.Columns) == 0 {
			return fmt.Errorf("table %q has no columns", table.Name)
		}
		for _, column := range table.Columns {
			if strings.TrimSpace(column.Name) == "" {
				return fmt.Errorf("table %q has a column without a name", table.Name)
			}
		}
	}
	return nil
}

// Snippets returns one retrieval document per column, in catalog order.
func (c *Catalog) Snippets() []string {
	var out []string
	for _, table := range c.Tables {
		for _, column := range table.Columns {
			out = append(out, fmt.Sprintf("Table: %s, Column: %s, Description: %s", table.Name, column.Name, column.Description))
		}
	}
	return out
}
