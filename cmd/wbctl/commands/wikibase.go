package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/wbctl/internal/config"
	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/manifest"
	"github.com/systmms/wbctl/internal/manifestsync"
	"github.com/systmms/wbctl/internal/metrics"
)

// NewWikibaseCommand groups the manifest registry commands.
func NewWikibaseCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "wikibase",
		Aliases: []string{"wb"},
		Short:   "Manage wikibase manifests",
		Long: `Manage the wikibase manifests known to the backend.

Manifests added from a URL are refetched when they are older than
manifests.staleness (7 days by default). The built-in Wikidata manifest
is always available.`,
	}

	cmd.AddCommand(
		newWikibaseListCmd(cfg),
		newWikibaseAddCmd(cfg),
		newWikibaseRemoveCmd(cfg),
		newWikibaseSelectCmd(cfg),
		newWikibaseShowCmd(cfg),
		newWikibaseRefreshCmd(cfg),
		newWikibaseWatchCmd(cfg),
	)

	return cmd
}

// withApp opens the app, loads the registry and runs f.
func withApp(cmd *cobra.Command, cfg *config.Config, f func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.loadRegistry(ctx); err != nil {
		return err
	}
	return f(ctx, a)
}

// ManifestSummary is one row of 'wbctl wikibase list'.
type ManifestSummary struct {
	Name        string     `json:"name" yaml:"name"`
	Root        string     `json:"root" yaml:"root"`
	Selected    bool       `json:"selected" yaml:"selected"`
	SourceURL   string     `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	LastFetched *time.Time `json:"last_fetched,omitempty" yaml:"last_fetched,omitempty"`
}

func summarize(all []*manifest.Manifest, selected string) []ManifestSummary {
	out := make([]ManifestSummary, 0, len(all))
	for _, m := range all {
		s := ManifestSummary{Name: m.Name(), Root: m.MediaWiki.Root, Selected: m.Name() == selected}
		if m.Fetched() {
			at := m.Provenance.LastFetchedAt
			s.SourceURL = m.Provenance.SourceURL
			s.LastFetched = &at
		}
		out = append(out, s)
	}
	return out
}

func newWikibaseListCmd(cfg *config.Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered wikibases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				rows := summarize(a.registry.All(), a.registry.SelectedName())
				return writeFormatted(cmd.OutOrStdout(), format, rows, func(w io.Writer) error {
					return manifestTable(w, rows)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, yaml)")

	return cmd
}

func manifestTable(w io.Writer, rows []ManifestSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tROOT\tSOURCE\tFETCHED")
	for _, r := range rows {
		mark, source, fetched := "", "built-in", "-"
		if r.Selected {
			mark = "*"
		}
		if r.SourceURL != "" {
			source = r.SourceURL
		}
		if r.LastFetched != nil {
			fetched = r.LastFetched.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, r.Name, r.Root, source, fetched)
	}
	return tw.Flush()
}

func newWikibaseAddCmd(cfg *config.Config) *cobra.Command {
	var selectIt bool

	cmd := &cobra.Command{
		Use:   "add <manifest-url>",
		Short: "Fetch a manifest from a URL and register it",
		Example: `  wbctl wikibase add https://example.org/wikibase-manifest.json
  wbctl wikibase add --select https://example.org/wikibase-manifest.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				m, err := a.fetcher.Fetch(ctx, args[0], false)
				if err != nil {
					return err
				}
				if err := a.registry.Add(ctx, m); err != nil {
					return err
				}
				if selectIt {
					a.registry.Select(m.Name())
					if err := a.syncer.SaveSelection(ctx, m.Name()); err != nil {
						return err
					}
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", m.Name())
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&selectIt, "select", false, "Select the wikibase after adding it")

	return cmd
}

func newWikibaseRemoveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a registered wikibase",
		Long: `Remove a wikibase from the registry. Removing Wikidata restores the
built-in manifest; removing the selected wikibase selects Wikidata.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				before := a.registry.SelectedName()
				if err := a.registry.Remove(ctx, args[0]); err != nil {
					return err
				}
				if after := a.registry.SelectedName(); after != before {
					if err := a.syncer.SaveSelection(ctx, after); err != nil {
						return err
					}
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return err
			})
		},
	}
}

func newWikibaseSelectCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "select <name>",
		Short: "Select the wikibase to work against",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				if !a.registry.Select(args[0]) {
					return fmt.Errorf("%w: %s", wberrors.ErrUnknownWikibase, args[0])
				}
				if err := a.syncer.SaveSelection(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Selected %s\n", args[0])
				return err
			})
		},
	}
}

func newWikibaseShowCmd(cfg *config.Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Print a manifest (the selected one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				m := a.registry.Selected()
				if len(args) == 1 {
					var ok bool
					if m, ok = a.registry.Get(args[0]); !ok {
						return fmt.Errorf("%w: %s", wberrors.ErrUnknownWikibase, args[0])
					}
				}
				return writeManifest(cmd.OutOrStdout(), format, m)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json, yaml)")

	return cmd
}

// writeManifest prints the manifest's wire form. YAML goes through a generic
// document so that unknown keys survive.
func writeManifest(w io.Writer, format string, m *manifest.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	switch format {
	case "json", "":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return wberrors.UserError{
			Message:    fmt.Sprintf("Unknown output format: %s", format),
			Suggestion: "Use one of: json, yaml",
		}
	}
}

func newWikibaseRefreshCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refetch manifests that are older than the staleness limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.loadRegistry(ctx)
			if err != nil {
				return err
			}
			report, err = a.waitRefresh(ctx, report)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
}

func printReport(w io.Writer, r manifestsync.Report) error {
	fmt.Fprintf(w, "Loaded %d manifests, refreshed %d", len(r.Loaded), len(r.Refreshed))
	if len(r.Failed) > 0 {
		fmt.Fprintf(w, ", kept %d after failed refresh", len(r.Failed))
	}
	if len(r.Invalid) > 0 {
		fmt.Fprintf(w, ", skipped %d invalid", len(r.Invalid))
	}
	_, err := fmt.Fprintln(w)
	return err
}

func newWikibaseWatchCmd(cfg *config.Config) *cobra.Command {
	var (
		interval    time.Duration
		metricsPort int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep manifests fresh until interrupted",
		Long: `Load the registry, then rerun the staleness pass every interval.
With a metrics port, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			port := a.def.Metrics.Port
			if cmd.Flags().Changed("metrics-port") {
				port = metricsPort
			}
			if port != 0 {
				metrics.Init()
			}
			srv := metrics.NewServer(metrics.DefaultServerConfig(port), a.logger)
			if err := srv.Start(); err != nil {
				return err
			}
			defer func() {
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Stop(shutdown)
			}()

			report, err := a.loadRegistry(ctx)
			if err != nil {
				return err
			}
			if report, err = a.waitRefresh(ctx, report); err != nil {
				return nil
			}
			out := cmd.OutOrStdout()
			_ = printReport(out, report)

			err = a.syncer.Watch(ctx, a.registry, interval, func(r manifestsync.Report, err error) {
				if err != nil {
					a.logger.Warn("refresh failed: %v", err)
					return
				}
				if len(r.Refreshed) > 0 || len(r.Failed) > 0 {
					_ = printReport(out, r)
				}
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "How often to check for stale manifests")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (overrides metrics.port)")

	return cmd
}
