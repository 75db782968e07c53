package main

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-shows/parser"
	"github.com/aluiziolira/go-scrape-shows/profile"
)

func newSitesCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "List the site profiles that can be scraped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			return printSites(cmd.OutOrStdout(), reg, cfg.Verbose)
		},
	}
	cmd.Flags().String("profiles", "", "YAML or JSON file with additional site profiles")
	return cmd
}

// printSites renders the profile table; verbose adds the field transforms
// that profiles may reference.
func printSites(w io.Writer, reg *profile.Registry, verbose bool) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Site", "Engine", "Detail", "Start URL", "Description"})
	for _, name := range reg.Names() {
		p, err := reg.Get(name)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{p.Name, p.Engine, detailKinds(p), p.StartURL, p.Description})
	}
	t.Render()

	if !verbose {
		return nil
	}
	tr := table.NewWriter()
	tr.SetOutputMirror(w)
	tr.SetStyle(table.StyleRounded)
	tr.AppendHeader(table.Row{"Transform"})
	for _, name := range parser.Transforms() {
		tr.AppendRow(table.Row{name})
	}
	tr.Render()
	return nil
}

// detailKinds summarizes what a profile reads beyond its cards.
func detailKinds(p *profile.Profile) string {
	if p.Detail == nil {
		return "-"
	}
	kinds := []string{"page"}
	if p.Detail.Calendar != nil {
		kinds = append(kinds, "calendar")
	}
	if p.Detail.Schedule != nil {
		kinds = append(kinds, "schedule")
	}
	if p.Detail.Milestones != nil {
		kinds = append(kinds, "milestones")
	}
	return strings.Join(kinds, ", ")
}
