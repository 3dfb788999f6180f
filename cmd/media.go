package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"moodfm/server"

	"github.com/spf13/cobra"
)

var mediaPrefix string

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "List generated music assets",
	Long:  `List the objects in the configured media store (local directory or MinIO bucket).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := server.NewMediaStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		objects, err := store.List(cmd.Context(), mediaPrefix)
		if err != nil {
			return err
		}

		var total int64
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tTYPE\tMODIFIED")
		for _, obj := range objects {
			total += obj.Size
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", obj.Key, obj.Size, obj.ContentType, obj.LastModified.Format("2006-01-02 15:04"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d object(s), %.2f MB\n", len(objects), float64(total)/1024/1024)
		return nil
	},
}

func init() {
	mediaCmd.Flags().StringVar(&mediaPrefix, "prefix", "", "only list names starting with this prefix")
	rootCmd.AddCommand(mediaCmd)
}
