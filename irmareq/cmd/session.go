package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/go-errors/errors"
	"github.com/mdp/qrterminal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	irma "github.com/privacybydesign/irmarequestor"
	"github.com/privacybydesign/irmarequestor/internal/sessionstore"
	"github.com/privacybydesign/irmarequestor/requestor"
)

// sessionCmd represents the session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Perform an IRMA disclosure, issuance or signature session",
	Long: `Perform an IRMA disclosure, issuance or signature session at an IRMA server

The session is started at the IRMA server specified with --server; the QR is printed in the
terminal; and the session result is printed when the session completes or fails. Interrupting
the command cancels the session.

A session request can either be constructed using the --disclose, --issue, and --sign together
with --message flags, or it can be specified as JSON to the --request flag.`,
	Example: `irmareq session --disclose pbdf.sidn-pbdf.email.email
irmareq session --sign pbdf.sidn-pbdf.email.email --message message
irmareq session --issue irma-demo.MijnOverheid.root=BSN:12345 --disclose pbdf.sidn-pbdf.email.email
irmareq session --server https://irma.example.com -a token --key mytoken --disclose pbdf.sidn-pbdf.email.email`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		noqr, _ := flags.GetBool("noqr")
		nowait, _ := flags.GetBool("no-wait")
		interval, _ := flags.GetDuration("poll-interval")

		request, err := constructRequest(flags)
		if err != nil {
			die("", err)
		}
		client := configureClient()
		store := openStore()
		defer closeStore(store)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		record, err := startSession(ctx, client, store, request)
		if err != nil {
			die("Failed to start session", err)
		}
		logger.Debug("QR: ", prettyprint(record.Qr))
		if err = printQr(os.Stdout, record.Qr, noqr || !term.IsTerminal(int(os.Stdout.Fd()))); err != nil {
			die("Failed to print QR", err)
		}
		if nowait {
			fmt.Println("Session token:", record.Token)
			return
		}

		result, err := awaitResult(ctx, client, store, record, interval)
		if ctx.Err() != nil {
			cancelInterrupted(client, store, record)
			die("Session interrupted", nil)
		}
		if err != nil {
			die("Session failed", err)
		}
		printSessionResult(result)
	},
}

func init() {
	RootCmd.AddCommand(sessionCmd)

	flags := sessionCmd.Flags()
	flags.SortFlags = false
	flags.Bool("noqr", false, "Print JSON instead of draw QR")
	flags.Bool("no-wait", false, "Exit after starting the session, leaving it to the watch command")
	flags.Duration("poll-interval", time.Second, "Interval at which the session status is polled")

	addRequestFlags(flags)
}

// startSession starts the session at the IRMA server and records it in the store.
func startSession(
	ctx context.Context,
	client *requestor.Client,
	store sessionstore.Store,
	request *irma.RequestorRequest,
) (*sessionstore.Record, error) {
	pkg, err := client.StartExtended(ctx, request)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	record := &sessionstore.Record{
		Token:   pkg.Token,
		Type:    request.Action(),
		Server:  client.URL(),
		Qr:      pkg.SessionPtr,
		Started: now,
		Updated: now,
		Status:  irma.ServerStatusInitialized,
	}
	if err = store.Add(ctx, record); err != nil {
		return nil, errors.WrapPrefix(err, "failed to record session", 0)
	}
	logger.WithFields(logrus.Fields{"token": record.Token, "type": record.Type}).Info("Session started")
	return record, nil
}

// awaitResult polls the session until it finishes and returns its result.
func awaitResult(
	ctx context.Context,
	client *requestor.Client,
	store sessionstore.Store,
	record *sessionstore.Record,
	interval time.Duration,
) (*irma.SessionResult, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := refresh(ctx, client, store, record); err != nil {
			return nil, err
		}
		if record.Status.Finished() {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	if record.Result != nil {
		return record.Result, nil
	}
	// the status already told us how the session ended, so this reports the failure
	return client.Result(ctx, record.Token)
}

// refresh fetches the current status of the session and records it if it changed.
// The result of sessions that completed successfully is recorded along with their status.
func refresh(ctx context.Context, client *requestor.Client, store sessionstore.Store, record *sessionstore.Record) error {
	status, err := client.Status(ctx, record.Token)
	if err != nil {
		return err
	}
	if status == record.Status {
		return nil
	}
	logger.WithFields(logrus.Fields{"token": record.Token, "status": status}).Info("Session status changed")

	var result *irma.SessionResult
	if status == irma.ServerStatusDone {
		if result, err = client.Result(ctx, record.Token); err != nil {
			return err
		}
	}
	record.Observe(status, result)
	if err = store.Update(ctx, record); err != nil {
		return errors.WrapPrefix(err, "failed to record session status", 0)
	}
	return nil
}

func cancelInterrupted(client *requestor.Client, store sessionstore.Store, record *sessionstore.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Cancel(ctx, record.Token); err != nil {
		logger.WithError(err).Warn("Failed to cancel session")
		return
	}
	record.Observe(irma.ServerStatusCancelled, nil)
	if err := store.Update(ctx, record); err != nil {
		logger.WithError(err).Warn("Failed to record session cancellation")
	}
}

func printQr(w io.Writer, qr *irma.Qr, noqr bool) error {
	qrBts, err := json.Marshal(qr)
	if err != nil {
		return err
	}
	if noqr {
		_, err = fmt.Fprintln(w, string(qrBts))
		return err
	}
	qrterminal.GenerateWithConfig(string(qrBts), qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    w,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
	})
	return nil
}

func printSessionResult(result *irma.SessionResult) {
	fmt.Println("Session result:")
	fmt.Println(prettyprint(result))
}

func closeStore(store sessionstore.Store) {
	if err := store.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close session store")
	}
}
