package history

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/livecaptions/livecaptions/internal/conf"
	"github.com/livecaptions/livecaptions/internal/datastore"
)

// Command prints saved captions from the transcript database.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		limit   int
		session string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print saved captions",
		Long:  "Print final captions from the transcript database, oldest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settings.Output.Store
			store, err := datastore.Open(datastore.Config{Type: s.Type, Path: s.Path, DSN: s.DSN})
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var records []datastore.CaptionRecord
			if session != "" {
				records, err = store.BySession(cmd.Context(), session)
			} else {
				records, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i := range records {
				r := &records[i]
				fmt.Fprintf(out, "%s  %-8s  %s\n", r.CreatedAt.Local().Format(time.DateTime), r.SessionID[:min(8, len(r.SessionID))], r.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of recent captions to print")
	cmd.Flags().StringVar(&session, "session", "", "Print every caption of one session")

	return cmd
}
