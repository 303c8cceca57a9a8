package commands

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"

	"github.com/benvon/logstream/internal/logger"
	"github.com/benvon/logstream/internal/middleware"
	"github.com/benvon/logstream/internal/validation"
	"github.com/benvon/logstream/internal/webconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// checkTargetHost is the server the checked request is addressed to.
const checkTargetHost = "http://logstream.internal"

// NewCorsCmd creates the cors command with show and check subcommands.
func NewCorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Inspect CORS configuration",
		Long:  "Show the effective CORS mappings or run a request through the CORS middleware.",
	}
	cmd.PersistentFlags().String("config", os.Getenv("WEB_CONFIG_FILE"), "Web config YAML file (defaults to WEB_CONFIG_FILE, built-in mappings when empty)")
	cmd.AddCommand(newCorsShowCmd())
	cmd.AddCommand(newCorsCheckCmd())
	return cmd
}

func loadWebConfig(cmd *cobra.Command) (*webconfig.WebConfig, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return webconfig.Load(path)
}

func newCorsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective CORS mappings as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadWebConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newCorsCheckCmd() *cobra.Command {
	var (
		origin  string
		method  string
		path    string
		headers string
		actual  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a request through the CORS middleware",
		Long:  "Send a preflight (or, with --actual, a plain request) through the configured CORS middleware and print the status and CORS response headers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				return fmt.Errorf("--origin is required")
			}
			method = strings.ToUpper(strings.TrimSpace(method))
			if method == "*" || !validation.IsToken(method) {
				return fmt.Errorf("--method %q is not a valid HTTP method", method)
			}
			if !strings.HasPrefix(path, "/") {
				return fmt.Errorf("--path %q must start with /", path)
			}
			cfg, err := loadWebConfig(cmd)
			if err != nil {
				return err
			}

			log := zap.NewNop()
			if verbose {
				if log, err = logger.NewDevelopmentLogger(true); err != nil {
					return fmt.Errorf("create logger: %w", err)
				}
				defer func() { _ = logger.Sync(log) }()
			}

			cors, err := middleware.CORS(cfg.CORS, log)
			if err != nil {
				return err
			}
			handler := cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req, err := newCheckRequest(method, path, origin, headers, actual)
			if err != nil {
				return err
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			return printCheckResult(cmd.OutOrStdout(), req, w)
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "Request Origin (required)")
	cmd.Flags().StringVar(&method, "method", http.MethodGet, "Method to request")
	cmd.Flags().StringVar(&path, "path", "/api/kafka/stream", "Request path")
	cmd.Flags().StringVar(&headers, "headers", "", "Comma-separated Access-Control-Request-Headers")
	cmd.Flags().BoolVar(&actual, "actual", false, "Send the request itself instead of a preflight")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log middleware decisions to stderr")
	return cmd
}

// newCheckRequest builds the preflight for method, or the request itself when actual
// is set. The target host is never contacted.
func newCheckRequest(method, path, origin, headers string, actual bool) (*http.Request, error) {
	reqMethod := http.MethodOptions
	if actual {
		reqMethod = method
	}
	req, err := http.NewRequest(reqMethod, checkTargetHost+path, nil)
	if err != nil {
		return nil, fmt.Errorf("--path %q: %w", path, err)
	}
	req.Header.Set("Origin", origin)
	if !actual {
		req.Header.Set("Access-Control-Request-Method", method)
		if headers != "" {
			req.Header.Set("Access-Control-Request-Headers", headers)
		}
	}
	return req, nil
}

func printCheckResult(out io.Writer, req *http.Request, w *httptest.ResponseRecorder) error {
	kind := "preflight"
	if req.Method != http.MethodOptions {
		kind = "request"
	}
	verdict := "allowed"
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		verdict = "no CORS headers"
	}
	if w.Code == http.StatusForbidden {
		verdict = "rejected"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s from %s\n", kind, req.Method, req.URL.Path, req.Header.Get("Origin"))
	fmt.Fprintf(&b, "Status: %d (%s)\n", w.Code, verdict)

	names := make([]string, 0, len(w.Header()))
	for name := range w.Header() {
		if strings.HasPrefix(name, "Access-Control-") || name == "Vary" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %s\n", name, strings.Join(w.Header().Values(name), ", "))
	}

	_, err := io.WriteString(out, b.String())
	return err
}
