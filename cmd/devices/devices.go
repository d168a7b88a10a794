package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livecaptions/livecaptions/internal/audiocore/sources"
	"github.com/livecaptions/livecaptions/internal/conf"
)

// Command lists the capture devices of the configured audio backend.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long: `List the capture devices the configured backend can open. The ID column is accepted by --source.
On Windows the malgo backend also lists output devices as loopback sources; --source loopback captures the default one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := sources.ListDevices(settings.Audio.Backend)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No capture devices found")
				return nil
			}

			fmt.Fprintf(out, "%-5s  %-40s  %-24s  %-8s  %s\n", "Index", "Name", "ID", "Kind", "Default")
			for i := range devices {
				d := &devices[i]
				def := ""
				if d.IsDefault {
					def = "*"
				}
				kind := "input"
				if d.Loopback {
					kind = "loopback"
				}
				fmt.Fprintf(out, "%-5d  %-40s  %-24s  %-8s  %s\n", d.Index, d.Name, d.ID, kind, def)
			}
			return nil
		},
	}
}
