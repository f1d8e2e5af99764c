package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NethermindEth/chaosfeed/api"
	"github.com/NethermindEth/chaosfeed/api/handlers"
	"github.com/NethermindEth/chaosfeed/communication"
	"github.com/NethermindEth/chaosfeed/insights"
	"github.com/NethermindEth/chaosfeed/logging"
)

const subscriberBuffer = 256

var (
	servePort  int
	serveStart bool
)

// ServeCmd runs the web page, the HTTP API and the websocket feed
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the feed in the browser",
	Long:  `Serve the single-page feed, the REST API and the live websocket, optionally publishing activity to NATS.`,
	RunE:  runServe,
}

func init() {
	addSimulationFlags(ServeCmd)
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (default from config, 3000)")
	ServeCmd.Flags().BoolVar(&serveStart, "start", false, "Start the simulation right away")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var pub *communication.NATSPublisher
	if cfg.NATS.URL != "" {
		pub, err = communication.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	hub := communication.NewHub(func() interface{} { return a.store.Snapshot() }, logger)
	wsEvents, unsubscribeWS := a.store.Subscribe(subscriberBuffer)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Forward(wsEvents)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		unsubscribeWS()
		return nil
	})

	if pub != nil {
		natsEvents, unsubscribeNATS := a.store.Subscribe(subscriberBuffer)
		g.Go(func() error {
			defer unsubscribeNATS()
			pub.Forward(gctx, natsEvents)
			return nil
		})
		logger.Info("publishing activity", zap.String("url", cfg.NATS.URL), zap.String("prefix", cfg.NATS.SubjectPrefix))
	}

	h := handlers.NewHandler(gctx, a.store, a.engine, cfg.Profiles.Path, logger)
	ins := insights.NewHandler(a.store, insights.NewExtractor(a.backend))
	srv := api.NewServer(h, ins, hub, logger)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Server.Port))
	})

	if serveStart {
		if err := a.engine.Start(gctx); err != nil {
			logger.Warn("could not start simulation", zap.Error(err))
		}
	}

	err = g.Wait()
	// the loop sees the cancelled context after its in-flight turn
	a.engine.Wait()
	logger.Info("shut down")
	return err
}
