// Package classify implements the one-shot image classification command.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/inference"
)

const loadTimeout = 2 * time.Minute

// Command creates the classify command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify a single image file",
		Long:  "Run the configured model once on an image file and print the ranked results.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), loadTimeout)
			defer cancel()
			results, err := Run(ctx, settings, args[0])
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), results, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

// Run loads the configured model and classifies the image at path.
func Run(ctx context.Context, settings *conf.Settings, path string) ([]detection.ClassificationResult, error) {
	t, err := inference.ParseModelType(settings.Model.Type)
	if err != nil {
		return nil, err
	}
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	loader := inference.NewTFLiteLoader(settings.Model.Path, settings.Model.Threads, settings.Model.UseXNNPACK)
	return classifyWith(ctx, loader, settings, t, img)
}

func classifyWith(ctx context.Context, loader inference.Loader, settings *conf.Settings, t inference.ModelType, img image.Image) ([]detection.ClassificationResult, error) {
	adapter := inference.NewAdapter(loader, inference.Config{
		TopK:          settings.Model.TopK,
		MinConfidence: float32(settings.Model.MinConfidence),
	})
	defer func() { _ = adapter.Close() }()

	if _, err := adapter.LoadModel(ctx, t); err != nil {
		return nil, err
	}
	return adapter.ClassifyImage(ctx, img)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, errors.New(err).
			Component("classify").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.New(fmt.Errorf("decode %s: %w", path, err)).
			Component("classify").
			Category(errors.CategoryValidation).
			Build()
	}
	return img, nil
}

type resultDTO struct {
	Label      string  `json:"label"`
	Display    string  `json:"display"`
	Confidence float32 `json:"confidence"`
}

// Print writes results as an aligned table or as JSON.
func Print(w io.Writer, results []detection.ClassificationResult, asJSON bool) error {
	if asJSON {
		out := make([]resultDTO, 0, len(results))
		for _, r := range results {
			out = append(out, resultDTO{Label: r.Label, Display: r.DisplayLabel(), Confidence: r.Confidence})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "no results above the confidence threshold")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RANK\tLABEL\tCONFIDENCE")
	for i, r := range results {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%.1f%%\n", i+1, r.DisplayLabel(), r.Confidence*100)
	}
	return tw.Flush()
}
