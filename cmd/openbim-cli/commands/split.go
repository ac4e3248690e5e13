package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/louistrue/openBIM-service/internal/extract"
	"github.com/louistrue/openBIM-service/internal/model"
)

var (
	splitInputPath  string
	splitOutputPath string
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a model document into one file per storey",
	Long: `Split partitions a building model by storey and writes a zip archive
with one document per storey. Elements without a storey container land in
an "unassigned" bucket.`,
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().StringVarP(&splitInputPath, "input", "i", "", "Path to model document (required)")
	splitCmd.Flags().StringVarP(&splitOutputPath, "output", "o", "storeys.zip", "Output path for zip archive")
	splitCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	f, err := os.Open(splitInputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	doc, err := model.DecodeDocument(f)
	if err != nil {
		return fmt.Errorf("decode model: %w", err)
	}

	docs, err := extract.SplitByStorey(doc)
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}

	out, err := os.Create(splitOutputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	if err := extract.WriteZip(out, docs); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	if !quiet {
		fmt.Fprintf(os.Stderr, "wrote %d storey documents to %s\n", len(docs), splitOutputPath)
	}
	return nil
}
