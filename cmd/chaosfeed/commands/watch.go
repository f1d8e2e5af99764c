package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NethermindEth/chaosfeed/communication"
)

var watchURL string

// WatchCmd prints the activity a running server publishes on NATS
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow published activity on NATS",
	RunE:  runWatch,
}

func init() {
	WatchCmd.Flags().StringVar(&watchURL, "nats", "", "NATS URL (default from config)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url := cfg.NATS.URL
	if watchURL != "" {
		url = watchURL
	}
	if url == "" {
		return errors.New("no NATS URL configured, set nats.url or --nats")
	}

	pub, err := communication.NewNATSPublisher(url, cfg.NATS.SubjectPrefix, zap.NewNop())
	if err != nil {
		return err
	}
	defer pub.Close()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	sub, err := pub.Subscribe(func(subject string, msg communication.Message) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "%s %-24s %s\n", msg.Published.Format(time.TimeOnly), subject, msg.Payload)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s.> on %s\n", cfg.NATS.SubjectPrefix, url)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
