package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/privacybydesign/irmarequestor/internal/sessionstore"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the recorded sessions",
	Run: func(cmd *cobra.Command, args []string) {
		unfinished, _ := cmd.Flags().GetBool("unfinished")
		asJSON, _ := cmd.Flags().GetBool("json")

		store := openStore()
		defer closeStore(store)
		ctx := context.Background()

		var (
			records []*sessionstore.Record
			err     error
		)
		if unfinished {
			records, err = sessionstore.Unfinished(ctx, store)
		} else {
			records, err = store.List(ctx)
		}
		if err != nil {
			die("Failed to list sessions", err)
		}

		if asJSON {
			fmt.Println(prettyprint(records))
			return
		}
		printHistory(records)
	},
}

func init() {
	RootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Bool("unfinished", false, "Only list sessions that have not finished")
	historyCmd.Flags().Bool("json", false, "Print records as JSON")
}

func printHistory(records []*sessionstore.Record) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tTYPE\tSTATUS\tSTARTED\tUPDATED\tSERVER")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Token, r.Type, r.Status,
			r.Started.Format(time.RFC3339), r.Updated.Format(time.RFC3339),
			r.Server,
		)
	}
	_ = w.Flush()
}
