// Package models implements the command listing supported models.
package models

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/inference"
)

// AssetChecker reports whether the files of a model are installed.
type AssetChecker interface {
	AssetsPresent(t inference.ModelType) bool
}

// Command creates the models command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List supported models and whether their assets are present",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := inference.NewTFLiteLoader(settings.Model.Path, settings.Model.Threads, settings.Model.UseXNNPACK)
			return List(cmd.OutOrStdout(), loader, settings.Model.Type)
		},
	}
}

// List prints one row per supported model.
func List(w io.Writer, assets AssetChecker, active string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODEL\tNAME\tINPUT\tASSETS\tSELECTED")
	for _, t := range inference.SupportedModels() {
		spec, _ := t.Spec()
		present := "missing"
		if assets.AssetsPresent(t) {
			present = "present"
		}
		selected := ""
		if string(t) == active {
			selected = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%s\t%s\n", t, spec.Name, spec.InputSize, spec.InputSize, present, selected)
	}
	return tw.Flush()
}
