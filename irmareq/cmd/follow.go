package cmd

import (
	"context"
	"fmt"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	irma "github.com/privacybydesign/irmarequestor"
	"github.com/privacybydesign/irmarequestor/internal/sessionstore"
)

var statusCmd = &cobra.Command{
	Use:   "status TOKEN",
	Short: "Print the status of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		token := irma.RequestorToken(args[0])
		client := configureClient()
		status, err := client.Status(ctx, token)
		if err != nil {
			die("Failed to get session status", err)
		}
		fmt.Println(status)

		store := openStore()
		defer closeStore(store)
		observe(ctx, store, token, status, nil)
	},
}

var resultCmd = &cobra.Command{
	Use:   "result TOKEN",
	Short: "Print the result of a finished session",
	Long: `Print the result of a session that finished successfully. The command fails if the session
was cancelled, timed out, or has not yet finished.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		token := irma.RequestorToken(args[0])
		client := configureClient()
		store := openStore()
		defer closeStore(store)

		result, err := client.Result(ctx, token)
		var serr *irma.SessionError
		if errors.As(err, &serr) && serr.Status != "" {
			observe(ctx, store, token, serr.Status, nil)
		}
		if err != nil {
			die("Failed to get session result", err)
		}
		observe(ctx, store, token, result.Status, result)
		printSessionResult(result)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel TOKEN",
	Short: "Cancel a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		token := irma.RequestorToken(args[0])
		if err := configureClient().Cancel(ctx, token); err != nil {
			die("Failed to cancel session", err)
		}
		store := openStore()
		defer closeStore(store)
		observe(ctx, store, token, irma.ServerStatusCancelled, nil)
	},
}

func init() {
	RootCmd.AddCommand(statusCmd, resultCmd, cancelCmd)
}

// observe updates the stored record of the session, if there is one.
// A session that already finished keeps its final status.
func observe(
	ctx context.Context,
	store sessionstore.Store,
	token irma.RequestorToken,
	status irma.ServerStatus,
	result *irma.SessionResult,
) {
	record, err := store.Get(ctx, token)
	if errors.Is(err, sessionstore.ErrUnknownSession) {
		return
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to load session record")
		return
	}
	if record.Status.Finished() && record.Status != status {
		logger.WithField("token", token).Debug("Session record already finished")
		return
	}
	record.Observe(status, result)
	if err = store.Update(ctx, record); err != nil {
		logger.WithError(err).Warn("Failed to update session record")
	}
}
