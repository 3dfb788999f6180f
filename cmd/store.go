package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"moodfm/repository"
	"moodfm/server"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	storeOwner string
	storeAs    string
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the local music store",
	Long:  `Read and edit the JSON file that holds music records while the generation backend is unavailable.`,
}

func openRepository(ctx context.Context) (repository.MusicRepository, error) {
	media, err := server.NewMediaStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open media store: %w", err)
	}
	return repository.NewJSONMusicRepository(cfg.MusicDataFile, media, cfg.MediaPlaceholder), nil
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		records, err := repo.ListForOwner(storeOwner)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tOWNER\tSOURCE\tCREATED")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Title, rec.UserID, rec.SourceType, rec.CreatedAt)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d record(s) in %s\n", len(records), cfg.MusicDataFile)
		return nil
	},
}

var storeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		rec, err := repo.FindByID(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", repository.ErrNotFound, args[0])
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a record and its media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		removed, err := repo.DeleteByID(args[0], storeAs)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s (%s)\n", removed.ID, removed.Title)
		return nil
	},
}

var storeCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the store file parses",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		records, err := repo.Load()
		if err != nil {
			return err
		}
		var unowned, undated int
		for _, rec := range records {
			if !rec.HasOwner() {
				unowned++
			}
			if rec.CreatedAt == "" {
				undated++
			}
		}
		fmt.Printf("%s: %d record(s), %d without owner, %d without created_at\n",
			cfg.MusicDataFile, len(records), unowned, undated)
		return nil
	},
}

func init() {
	storeListCmd.Flags().StringVar(&storeOwner, "owner", "", "only list records of this user id")
	storeDeleteCmd.Flags().StringVar(&storeAs, "as", "", "delete on behalf of this user id (ownership is enforced)")

	storeCmd.AddCommand(storeListCmd, storeShowCmd, storeDeleteCmd, storeCheckCmd)
	rootCmd.AddCommand(storeCmd)
}
