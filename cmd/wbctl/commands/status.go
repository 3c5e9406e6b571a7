package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/wbctl/internal/config"
)

// Status is what 'wbctl status' reports.
type Status struct {
	Backend      string `json:"backend" yaml:"backend"`
	Mode         string `json:"mode" yaml:"mode"`
	LoggedIn     bool   `json:"logged_in" yaml:"logged_in"`
	Username     string `json:"username,omitempty" yaml:"username,omitempty"`
	Wikibase     string `json:"wikibase" yaml:"wikibase"`
	EntityPrefix string `json:"entity_prefix" yaml:"entity_prefix"`
	Reconcile    string `json:"reconciliation" yaml:"reconciliation"`
	Manifests    int    `json:"manifests" yaml:"manifests"`
}

func NewStatusCommand(cfg *config.Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend, session and selected wikibase",
		Args:  cobra.NoArgs,
		Example: `  wbctl status
  wbctl status --format json`,
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

			if _, err := a.loadRegistry(ctx); err != nil {
				a.logger.Warn("could not load wikibase manifests: %v", err)
			}

			mode, err := a.client.Mode(ctx)
			if err != nil {
				return err
			}
			session, err := a.client.Session(ctx)
			if err != nil {
				return err
			}

			st := Status{
				Backend:      a.client.BaseURL().String(),
				Mode:         mode.String(),
				LoggedIn:     session.LoggedIn,
				Username:     session.Username,
				Wikibase:     a.registry.SelectedName(),
				EntityPrefix: a.registry.SelectedEntityPrefix(),
				Reconcile:    a.registry.SelectedReconEndpoint(),
				Manifests:    a.registry.Len(),
			}
			return writeFormatted(cmd.OutOrStdout(), format, st, func(w io.Writer) error {
				return statusTable(w, st)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, yaml)")

	return cmd
}

func statusTable(w io.Writer, st Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	user := "-"
	if st.LoggedIn {
		user = st.Username
	}
	fmt.Fprintf(tw, "Backend:\t%s\n", st.Backend)
	fmt.Fprintf(tw, "Mode:\t%s\n", st.Mode)
	fmt.Fprintf(tw, "Logged in as:\t%s\n", user)
	fmt.Fprintf(tw, "Wikibase:\t%s\n", st.Wikibase)
	fmt.Fprintf(tw, "Entity prefix:\t%s\n", st.EntityPrefix)
	fmt.Fprintf(tw, "Reconciliation:\t%s\n", st.Reconcile)
	fmt.Fprintf(tw, "Manifests:\t%d\n", st.Manifests)
	return tw.Flush()
}
