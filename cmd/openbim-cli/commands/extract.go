package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/louistrue/openBIM-service/internal/extract"
	"github.com/louistrue/openBIM-service/internal/model"
)

var (
	extractInputPath    string
	extractOutputPath   string
	extractClasses      []string
	extractNoProperties bool
	extractNoQuantities bool
	extractNoMaterials  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract element quantities and materials from a model document",
	Long: `Extract reads an exported building model document, normalizes its units,
resolves quantities and material volumes for every building element, and
writes the result as JSON.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractInputPath, "input", "i", "", "Path to model document (required)")
	extractCmd.Flags().StringVarP(&extractOutputPath, "output", "o", "", "Output path for JSON result (default stdout)")
	extractCmd.Flags().StringSliceVar(&extractClasses, "classes", nil, "Only include these element classes")
	extractCmd.Flags().BoolVar(&extractNoProperties, "no-properties", false, "Omit common properties")
	extractCmd.Flags().BoolVar(&extractNoQuantities, "no-quantities", false, "Omit quantity sets")
	extractCmd.Flags().BoolVar(&extractNoMaterials, "no-materials", false, "Omit materials and material volumes")
	extractCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(extractCmd)
}

// extractOutput mirrors the API response shape so files written by the CLI
// and callback payloads stay interchangeable.
type extractOutput struct {
	Metadata struct {
		TotalElements int               `json:"total_elements"`
		Classes       []string          `json:"ifc_classes"`
		Units         extract.UnitNames `json:"units"`
		UnitsAssumed  bool              `json:"units_assumed,omitempty"`
	} `json:"metadata"`
	Elements []extract.ElementRecord   `json:"elements"`
	Warnings []extract.FractionWarning `json:"warnings,omitempty"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f, err := os.Open(extractInputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	doc, err := model.DecodeDocument(f)
	if err != nil {
		return fmt.Errorf("decode model: %w", err)
	}

	walker := extract.NewWalker(doc, extract.Filter{
		IncludeClasses:    extractClasses,
		ExcludeProperties: extractNoProperties,
		ExcludeQuantities: extractNoQuantities,
		ExcludeMaterials:  extractNoMaterials,
	})

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(walker.Total(),
			progressbar.OptionSetDescription("extracting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
		)
	}

	var out extractOutput
	out.Elements = make([]extract.ElementRecord, 0, walker.Total())
	err = walker.Walk(ctx, func(rec extract.ElementRecord) error {
		out.Elements = append(out.Elements, rec)
		if bar != nil {
			bar.Add(1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	if bar != nil {
		bar.Finish()
	}

	scales := walker.Scales()
	out.Metadata.TotalElements = walker.Total()
	out.Metadata.Classes = walker.Classes()
	out.Metadata.Units = scales.Names()
	out.Metadata.UnitsAssumed = scales.Assumed
	out.Warnings = walker.Warnings()

	dst := os.Stdout
	if extractOutputPath != "" {
		dst, err = os.Create(extractOutputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer dst.Close()
	}

	enc := json.NewEncoder(dst)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
