package shell

import (
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"

	"github.com/querychat/querychat/internal/query"
)

var (
	headerStyle  = pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)
	sectionStyle = pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	successStyle = pterm.NewStyle(pterm.FgGreen)
	errorStyle   = pterm.NewStyle(pterm.FgRed)
	hintStyle    = pterm.NewStyle(pterm.FgDarkGray)
)

func printHeader(out io.Writer, title string) {
	pterm.Fprintln(out, headerStyle.Sprint(title))
	pterm.Fprintln(out, hintStyle.Sprint("Type a question, or :help for commands."))
	pterm.Fprintln(out)
}

func printSection(out io.Writer, title, body string) {
	pterm.Fprintln(out, sectionStyle.Sprint(title))
	pterm.Fprintln(out, body)
	pterm.Fprintln(out)
}

func printSuccess(out io.Writer, message string) {
	pterm.Fprintln(out, successStyle.Sprint("✓ "+message))
}

func printError(out io.Writer, message string) {
	pterm.Fprintln(out, errorStyle.Sprint("✗ "+message))
}

func printResultTable(out io.Writer, result query.Result) {
	pterm.Fprintln(out, sectionStyle.Sprint("Query Results:"))
	table := tablewriter.NewWriter(out)
	table.SetHeader(result.Columns)
	table.SetAutoFormatHeaders(false)
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = cellText(value)
		}
		table.Append(cells)
	}
	table.Render()
	pterm.Fprintln(out)
}

// cellText renders a value for the debug table: text unquoted, everything
// else the way the humanizer sees it.
func cellText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return query.FormatValue(v)
	}
}

const helpText = `Commands:
  :config          re-enter the database settings
  :test            test the database connection
  :debug on|off    show the generated SQL and result rows
  :rag on|off      use schema retrieval for new questions
  :help            show this help
  :quit            leave the shell
Anything else is asked as a question.`

func printHelp(out io.Writer) {
	for _, line := range strings.Split(helpText, "\n") {
		pterm.Fprintln(out, line)
	}
}
