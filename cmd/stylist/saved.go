package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/stylist/pkg/outfits"
)

func newSavedCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "List and delete saved outfits",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved outfits, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := outfits.NewStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			list, err := store.List(cmd.Context(), 0)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No saved outfits.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tGENDER\tTOP\tBOTTOM\tEXTRA\tSAVED")
			for _, o := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
					o.ID, o.Name, o.Gender, optionalID(o.TopID), optionalID(o.BottomID),
					len(o.AdditionalIDs), o.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved outfit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid outfit id %q", args[0])
			}
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := outfits.NewStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Deleted outfit %d.\n", id)
			return nil
		},
	}

	cmd.AddCommand(listCmd, deleteCmd)
	return cmd
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}
