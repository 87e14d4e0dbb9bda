package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pneumoscan/internal/container"
	"pneumoscan/internal/domain/entity"
)

var (
	diagnoseText  string
	diagnoseAudio string
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <image>",
	Short: "Run the full pipeline on a local image and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnose,
}

var validateCmd = &cobra.Command{
	Use:   "validate <image>",
	Short: "Check whether a local image is a chest radiograph",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd, validateCmd)

	diagnoseCmd.Flags().StringVarP(&diagnoseText, "text", "t", "", "Symptom description")
	diagnoseCmd.Flags().StringVarP(&diagnoseAudio, "audio", "a", "", "Path to a spoken symptom description")
}

// diagnosisOutput то же, что отдаёт POST /diagnose
type diagnosisOutput struct {
	entity.ReportRecord
	ReportPath string `json:"report_path"`
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	in := entity.DiagnosisInput{Image: image}
	if cmd.Flags().Changed("text") {
		in.Text = &diagnoseText
	}
	if diagnoseAudio != "" {
		if in.Audio, err = os.ReadFile(diagnoseAudio); err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}

	c, err := container.Build(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.Diagnosis.Diagnose(cmd.Context(), in)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), diagnosisOutput{ReportRecord: report.Record(), ReportPath: report.ReportPath})
}

func runValidate(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	c, err := container.Build(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Diagnosis.Validate(cmd.Context(), image)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"valid":      result.InDomain,
		"confidence": entity.Round4(result.Confidence),
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
