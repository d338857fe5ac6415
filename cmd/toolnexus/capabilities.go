package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/engine/runtime"
)

func newCapabilitiesCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps", "ls"},
		Short:   "List registered capabilities",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(context.Background(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			manifests := a.catalog.List()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(manifests)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVERSION\tACTIONS\tRUNTIME\tCACHEABLE\tEXECUTOR")
			for _, m := range manifests {
				_, hasExecutor := a.tools.Executor(m.ID)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n",
					m.ID, m.Version, strings.Join(m.Actions, ","), runtime.NormalizeLanguage(m.RuntimeLanguage), m.Cacheable, hasExecutor)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print manifests as JSON")
	return cmd
}
