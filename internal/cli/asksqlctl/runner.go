package asksqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type apiRequest struct {
	method string
	path   string
	query  url.Values
	body   any
}

var errUsage = errors.New("usage")

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("asksqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "asksql API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	req, err := buildRequest(command, fs.Args()[1:], stderr)
	if err != nil {
		if !errors.Is(err, errUsage) {
			_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		}
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
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

func buildRequest(command string, args []string, stderr io.Writer) (apiRequest, error) {
	switch command {
	case "health":
		return apiRequest{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return apiRequest{method: http.MethodGet, path: "/v1/ready"}, nil
	case "schema":
		return apiRequest{method: http.MethodGet, path: "/v1/schema"}, nil
	case "refresh":
		return apiRequest{method: http.MethodPost, path: "/v1/schema/refresh"}, nil
	case "archives":
		return apiRequest{method: http.MethodGet, path: "/v1/history/archives"}, nil
	case "delete-archive":
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return apiRequest{}, fmt.Errorf("delete-archive needs exactly one archive key")
		}
		key := strings.TrimPrefix(strings.TrimSpace(args[0]), "/")
		return apiRequest{method: http.MethodDelete, path: "/v1/history/archives/" + key}, nil
	case "ask":
		fs := flag.NewFlagSet("ask", flag.ContinueOnError)
		fs.SetOutput(stderr)
		skipCache := fs.Bool("skip-cache", false, "bypass conversation memory")
		if err := fs.Parse(args); err != nil {
			return apiRequest{}, errUsage
		}
		question, err := joinedArg(fs, "question")
		if err != nil {
			return apiRequest{}, err
		}
		return apiRequest{method: http.MethodPost, path: "/v1/ask", body: map[string]any{
			"question":   question,
			"skip_cache": *skipCache,
		}}, nil
	case "translate":
		question, err := joinedArg(nil, "question", args...)
		if err != nil {
			return apiRequest{}, err
		}
		return apiRequest{method: http.MethodPost, path: "/v1/query/translate", body: map[string]any{"question": question}}, nil
	case "query":
		fs := flag.NewFlagSet("query", flag.ContinueOnError)
		fs.SetOutput(stderr)
		rowLimit := fs.Int("row-limit", 0, "maximum rows to return (0 uses the server limit)")
		if err := fs.Parse(args); err != nil {
			return apiRequest{}, errUsage
		}
		sqlText, err := joinedArg(fs, "sql")
		if err != nil {
			return apiRequest{}, err
		}
		body := map[string]any{"sql": sqlText}
		if *rowLimit > 0 {
			body["row_limit"] = *rowLimit
		}
		return apiRequest{method: http.MethodPost, path: "/v1/query", body: body}, nil
	case "history":
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		fs.SetOutput(stderr)
		limit := fs.Int("limit", 0, "number of entries (server default when 0)")
		if err := fs.Parse(args); err != nil {
			return apiRequest{}, errUsage
		}
		req := apiRequest{method: http.MethodGet, path: "/v1/history"}
		if *limit > 0 {
			req.query = url.Values{"limit": []string{strconv.Itoa(*limit)}}
		}
		return req, nil
	case "archive":
		fs := flag.NewFlagSet("archive", flag.ContinueOnError)
		fs.SetOutput(stderr)
		since := fs.String("since", "", "only archive entries created at or after this RFC3339 time")
		if err := fs.Parse(args); err != nil {
			return apiRequest{}, errUsage
		}
		body := map[string]any{}
		if raw := strings.TrimSpace(*since); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return apiRequest{}, fmt.Errorf("invalid -since %q: %w", raw, err)
			}
			body["since"] = parsed.UTC()
		}
		return apiRequest{method: http.MethodPost, path: "/v1/history/archive", body: body}, nil
	default:
		return apiRequest{}, fmt.Errorf("unknown command %q", command)
	}
}

// joinedArg joins the remaining positional arguments so unquoted questions work.
func joinedArg(fs *flag.FlagSet, name string, args ...string) (string, error) {
	if fs != nil {
		args = fs.Args()
	}
	value := strings.TrimSpace(strings.Join(args, " "))
	if value == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return value, nil
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
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
	_, _ = fmt.Fprintln(w, "usage: asksqlctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                          GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                           GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  ask [-skip-cache] <question>    POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  translate <question>            POST /v1/query/translate")
	_, _ = fmt.Fprintln(w, "  query [-row-limit n] <sql>      POST /v1/query")
	_, _ = fmt.Fprintln(w, "  schema                          GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  refresh                         POST /v1/schema/refresh")
	_, _ = fmt.Fprintln(w, "  history [-limit n]              GET /v1/history")
	_, _ = fmt.Fprintln(w, "  archive [-since RFC3339]        POST /v1/history/archive")
	_, _ = fmt.Fprintln(w, "  archives                        GET /v1/history/archives")
	_, _ = fmt.Fprintln(w, "  delete-archive <key>            DELETE /v1/history/archives/<key>")
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
