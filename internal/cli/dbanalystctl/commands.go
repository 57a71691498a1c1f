package dbanalystctl

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newRootCommand(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "dbanalystctl",
		Short:         "Command-line client for the dbanalyst API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Output != OutputJSON && opts.Output != OutputTable {
				return fmt.Errorf("invalid --output %q: expected json or table", opts.Output)
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&opts.BaseURL, "base-url", opts.BaseURL, "dbanalyst API base URL")
	flags.StringVar(&opts.APIKey, "api-key", opts.APIKey, "API key for authenticated requests")
	flags.StringVar(&opts.TenantID, "tenant-id", opts.TenantID, "tenant ID header (used when auth is disabled)")
	flags.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "HTTP timeout (e.g. 30s)")
	flags.StringVarP(&opts.Output, "output", "o", opts.Output, "output format: json or table")

	root.AddCommand(
		getCommand(opts, "health", "Check service liveness", "/v1/health"),
		getCommand(opts, "ready", "Check service readiness", "/v1/ready"),
		askCommand(opts),
		validateCommand(opts),
		queryCommand(opts),
		getCommand(opts, "schemas", "List database schemas", "/v1/schemas"),
		tablesCommand(opts),
		describeCommand(opts),
		docsCommand(opts),
		auditCommand(opts),
	)
	return root
}

func getCommand(opts *Options, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := newClient(opts).getJSON(cmd.Context(), path)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}
}

func askCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <text...>",
		Short: "Ask a question about the database or the uploaded documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient(opts).postJSON(cmd.Context(), "/v1/ask", map[string]string{"text": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}
}

func validateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <text...>",
		Short: "Check text against the request deny list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient(opts).postJSON(cmd.Context(), "/v1/validate", map[string]string{"text": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}
}

func queryCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run read-only SQL through the query guard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient(opts).postJSON(cmd.Context(), "/v1/query", map[string]string{"sql": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}
}

func tablesCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tables [schema]",
		Short: "List tables in a schema (default public)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaName := "public"
			if len(args) == 1 {
				schemaName = args[0]
			}
			body, err := newClient(opts).getJSON(cmd.Context(), "/v1/schemas/"+url.PathEscape(schemaName)+"/tables")
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}
}

func describeCommand(opts *Options) *cobra.Command {
	var schemaName string
	cmd := &cobra.Command{
		Use:   "describe <table>",
		Short: "Show a table's columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/schemas/" + url.PathEscape(schemaName) + "/tables/" + url.PathEscape(args[0])
			body, err := newClient(opts).getJSON(cmd.Context(), path)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "public", "schema containing the table")
	return cmd
}

func docsCommand(opts *Options) *cobra.Command {
	docs := &cobra.Command{
		Use:   "docs",
		Short: "Upload, list and query documents",
	}

	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a text or markdown document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return &requestError{err: fmt.Errorf("read %s: %w", args[0], err)}
			}
			name := filepath.Base(args[0])
			path := "/v1/documents?name=" + url.QueryEscape(name)
			body, err := newClient(opts).do(cmd.Context(), http.MethodPost, path, bytes.NewReader(data), documentContentType(name))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}

	list := getCommand(opts, "list", "List uploaded documents", "/v1/documents")

	ask := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question from the uploaded documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient(opts).postJSON(cmd.Context(), "/v1/documents/ask", map[string]string{"question": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}

	docs.AddCommand(upload, list, ask)
	return docs
}

func auditCommand(opts *Options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent orchestrated requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be > 0")
			}
			body, err := newClient(opts).getJSON(cmd.Context(), "/v1/audit?limit="+strconv.Itoa(limit))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Output, body)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	return cmd
}

func documentContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", "":
		return "text/plain"
	}
	if contentType := mime.TypeByExtension(filepath.Ext(name)); contentType != "" {
		return contentType
	}
	return "text/plain"
}
