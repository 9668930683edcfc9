package querychatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type connectionFlags struct {
	driver   string
	host     string
	port     string
	user     string
	password string
	database string
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("querychatctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "querychat API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")
	rag := fs.Bool("rag", false, "use schema retrieval (ask only; default is the server setting)")
	showQuery := fs.Bool("show-query", true, "include generated SQL and rows in the ask response")
	k := fs.Int("k", 0, "number of snippets to retrieve (retrieve and ask)")
	var conn connectionFlags
	fs.StringVar(&conn.driver, "driver", "", "database driver override (mysql, postgres, duckdb)")
	fs.StringVar(&conn.host, "host", "", "database host override")
	fs.StringVar(&conn.port, "port", "", "database port override")
	fs.StringVar(&conn.user, "user", "", "database user override")
	fs.StringVar(&conn.password, "password", "", "database password override")
	fs.StringVar(&conn.database, "database", "", "database name override")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
	method := ""
	path := ""
	var payload map[string]any
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "schema":
		method, path = http.MethodGet, "/v1/schema"
	case "ask":
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask needs a question")
			return 2
		}
		method, path = http.MethodPost, "/v1/ask"
		payload = map[string]any{"question": question, "show_query": *showQuery}
		if set["rag"] {
			payload["rag"] = *rag
		}
		if *k > 0 {
			payload["k"] = *k
		}
		if c := conn.payload(set); c != nil {
			payload["connection"] = c
		}
	case "test-connection":
		method, path = http.MethodPost, "/v1/connection/test"
		payload = map[string]any{}
		if c := conn.payload(set); c != nil {
			payload["connection"] = c
		}
	case "retrieve":
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "retrieve needs a question")
			return 2
		}
		method, path = http.MethodPost, "/v1/schema/retrieve"
		payload = map[string]any{"question": question}
		if *k > 0 {
			payload["k"] = *k
		}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

// payload returns only the connection fields given on the command line, so
// the server keeps its defaults for the rest. An explicit -password "" is
// sent to clear the server's default password.
func (c connectionFlags) payload(set map[string]bool) map[string]any {
	out := map[string]any{}
	add := func(name, value string) {
		if set[name] {
			out[name] = value
		}
	}
	add("driver", c.driver)
	add("host", c.host)
	add("port", c.port)
	add("user", c.user)
	add("password", c.password)
	add("database", c.database)
	if len(out) == 0 {
		return nil
	}
	return out
}

func doRequest(ctx context.Context, client *http.Client, method, url string, payload map[string]any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querychatctl [flags] <command> [question]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                 GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                  GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema                 GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  ask <question>         POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  test-connection        POST /v1/connection/test")
	_, _ = fmt.Fprintln(w, "  retrieve <question>    POST /v1/schema/retrieve")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
