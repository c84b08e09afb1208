package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mjpegsw/mjpegsw/internal/device/v4l2"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "List the formats a V4L2 camera supports",
	Long: `Open /dev/video<N> through Video4Linux2 and list the pixel formats and
frame sizes it advertises. The camera is selected with -c/--camera.`,
	Example: `  # Probe camera 0
  mjpegsw probe

  # Probe camera 2 as JSON
  mjpegsw probe -c 2 --format json`,
	RunE: runProbe,
}

var probeFormat string

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVarP(&probeFormat, "format", "f", "table", "output format (table or json)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	index := configMgr.Get().Camera.Index

	result, err := v4l2.Probe(index)
	if err != nil {
		return fmt.Errorf("failed to probe camera %d: %w", index, err)
	}

	switch probeFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case "table":
		return printProbeTable(result)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", probeFormat)
	}
}

func printProbeTable(result *v4l2.ProbeResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "DEVICE\t%s\n\n", result.Path)
	fmt.Fprintln(w, "FOURCC\tDESCRIPTION\tMJPEG\tSIZES")
	fmt.Fprintln(w, "------\t-----------\t-----\t-----")

	for _, f := range result.Formats {
		mjpeg := "No"
		if f.MJPEG {
			mjpeg = "Yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.FourCC(), f.Description, mjpeg, strings.Join(f.Sizes, ", "))
	}

	if !result.SupportsMJPEG() {
		fmt.Fprintln(w, "\nThis device does not offer MJPEG; the v4l2 driver cannot use it.")
	}
	return nil
}
