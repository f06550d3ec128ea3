package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teslashibe/moodbox/pkg/catalog"
	"github.com/teslashibe/moodbox/pkg/mood"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the track catalog",
	}
	catalogCmd.AddCommand(newCatalogListCommand(ctx))
	catalogCmd.AddCommand(newCatalogValidateCommand())
	return catalogCmd
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured catalog's tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var only mood.Category
			if category != "" {
				if only, err = mood.ParseCategory(category); err != nil {
					return err
				}
			}
			cat, err := loadCatalog(cmd.Context(), cfg.Catalog)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderCatalog(cat, only))
			fmt.Fprintf(out, "%d tracks in %d categories\n", cat.Len(), len(cat.Categories()))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list one category")
	return cmd
}

func newCatalogValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate <file>",
		Short:       "Check a catalog file without starting the player",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d tracks\n", args[0], cat.Len())
			return nil
		},
	}
}

// renderCatalog tabulates cat, restricted to one category when only is set.
func renderCatalog(cat *catalog.Catalog, only mood.Category) string {
	var rows [][]string
	for _, c := range cat.Categories() {
		if only != "" && c != only {
			continue
		}
		for i, t := range cat.TracksFor(c) {
			rows = append(rows, []string{
				c.Emoji() + " " + string(c),
				strconv.Itoa(i + 1),
				t.Title,
				t.Artist,
			})
		}
	}
	return renderTable(
		[]string{"Mood", "#", "Title", "Artist"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	)
}
