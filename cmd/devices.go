package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/recordnode/internal/devices"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long:  `Lists the displays, cameras, and microphones currently available for recording.`,
		Run: func(_ *cobra.Command, _ []string) {
			detector := devices.NewDetector()
			list, err := detector.List()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to enumerate devices: %v\n", err)
				os.Exit(1)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(list); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to encode devices: %v\n", err)
					os.Exit(1)
				}
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tID\tNAME\tPATH")
			for _, d := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Kind, d.ID, d.Name, d.Path)
			}
			_ = w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
