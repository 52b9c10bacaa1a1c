package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/privacybydesign/irmarequestor/internal/sessionstore"
	"github.com/privacybydesign/irmarequestor/requestor"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the recorded sessions until they finish",
	Long: `Periodically poll the status of all recorded sessions that have not yet finished, recording
their status changes and the results of sessions that complete. Only sessions started at the
configured IRMA server are followed.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		keepRunning, _ := cmd.Flags().GetBool("keep-running")

		store := openStore()
		defer closeStore(store)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		w := newWatcher(configureClient(), store, interval)
		w.keepRunning = keepRunning
		if err := w.run(ctx); err != nil {
			die("Failed to watch sessions", err)
		}
	},
}

func init() {
	RootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", 5*time.Second, "Interval at which sessions are polled")
	watchCmd.Flags().Bool("keep-running", false, "Keep running when no unfinished sessions remain")
}

type watcher struct {
	client      *requestor.Client
	store       sessionstore.Store
	interval    time.Duration
	keepRunning bool
	scheduler   *gocron.Scheduler
	done        chan struct{}
}

func newWatcher(client *requestor.Client, store sessionstore.Store, interval time.Duration) *watcher {
	gocron.SetPanicHandler(gocronPanicHandler(logger))
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &watcher{
		client:    client,
		store:     store,
		interval:  interval,
		scheduler: s,
		done:      make(chan struct{}),
	}
}

// run polls the unfinished sessions until ctx is done or, unless keepRunning is set, until no
// unfinished sessions remain.
func (w *watcher) run(ctx context.Context) error {
	if _, err := w.scheduler.Every(w.interval).Do(func() {
		remaining, err := w.poll(ctx)
		if err != nil {
			logger.WithError(err).Error("Failed to poll sessions")
			return
		}
		if remaining == 0 && !w.keepRunning {
			select {
			case <-w.done:
			default:
				close(w.done)
			}
		}
	}); err != nil {
		return err
	}
	w.scheduler.StartAsync()
	defer w.scheduler.Stop()

	select {
	case <-ctx.Done():
	case <-w.done:
		logger.Info("All sessions finished")
	}
	return nil
}

// poll refreshes all unfinished sessions of the configured server, and returns how many
// of them remain unfinished.
func (w *watcher) poll(ctx context.Context) (int, error) {
	records, err := sessionstore.Unfinished(ctx, w.store)
	if err != nil {
		return 0, err
	}
	remaining := 0
	for _, record := range records {
		if record.Server != w.client.URL() {
			logger.WithFields(logrus.Fields{"token": record.Token, "server": record.Server}).
				Trace("Skipping session of other server")
			continue
		}
		if err = refresh(ctx, w.client, w.store, record); err != nil {
			logger.WithError(err).WithField("token", record.Token).Warn("Failed to refresh session")
		}
		if !record.Status.Finished() {
			remaining++
		}
	}
	return remaining, nil
}

func gocronPanicHandler(logger *logrus.Logger) gocron.PanicHandlerFunc {
	return func(jobName string, recoverData interface{}) {
		var details string
		b, err := json.Marshal(recoverData)
		if err == nil {
			details = string(b)
		} else {
			details = "failed to marshal recovered data: " + err.Error()
		}
		logger.Error(fmt.Sprintf("panic during gocron job '%s': %s", jobName, details))
	}
}
