// Command mdstore is the market-data storage service CLI: it collects
// candles for configured targets, queries stored ranges, detects and fills
// gaps, and manages the target list.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbtrade/mdstore/internal/collector"
	"github.com/cbtrade/mdstore/internal/config"
	"github.com/cbtrade/mdstore/internal/exchange"
	"github.com/cbtrade/mdstore/internal/gaps"
	"github.com/cbtrade/mdstore/internal/historical"
	"github.com/cbtrade/mdstore/internal/logger"
	"github.com/cbtrade/mdstore/internal/models"
	"github.com/cbtrade/mdstore/internal/storage"
	"github.com/cbtrade/mdstore/internal/targets"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the wired service components shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	backend storage.Backend
	manager *storage.Manager
	targets *targets.Manager
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	backend, err := storage.NewBackend(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	manager, err := storage.NewManager(backend, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		log:     log,
		backend: backend,
		manager: manager,
		targets: targets.NewManager(backend, log),
	}, nil
}

func (a *app) exchangeClient() (exchange.Client, error) {
	return exchange.NewHTTPClient(exchange.Options{
		Name:            a.cfg.Exchange.Name,
		BaseURL:         a.cfg.Exchange.BaseURL,
		RateLimitPerSec: a.cfg.Exchange.RateLimitPerSec,
		Timeout:         a.cfg.Exchange.Timeout,
	}, a.log)
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:     "mdstore",
		Short:   "OHLCV market-data collection and storage service",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	root.AddCommand(
		newCollectCmd(&configFile),
		newFetchCmd(&configFile),
		newGapsCmd(&configFile),
		newTargetsCmd(&configFile),
		newServeCmd(&configFile),
	)
	return root
}

func newCollectCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass over all enabled targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configFile)
			if err != nil {
				return err
			}
			client, err := a.exchangeClient()
			if err != nil {
				return err
			}
			current := historical.NewCurrentFetcher(a.manager, a.cfg.Collector.LatestWindow, a.log)
			c := collector.New(a.targets, client, a.manager, current, a.cfg.Collector.Lookback, a.log)
			n, err := c.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("collected %d records\n", n)
			return nil
		},
	}
}

func newFetchCmd(configFile *string) *cobra.Command {
	var (
		exchangeName, coin, interval string
		startStr, endStr             string
		limit, offset                int
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Print stored records for a dataset and time range as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configFile)
			if err != nil {
				return err
			}
			start, end, err := parseRange(startStr, endStr)
			if err != nil {
				return err
			}
			fetcher := historical.NewFetcher(a.manager, a.log)
			meta := models.Metadata{DataType: models.DataTypeOHLCV, Exchange: exchangeName, Coin: coin, Interval: interval}
			batch, err := fetcher.FetchData(ctx, meta, start, end, limit, offset)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(batch.Records)
		},
	}
	cmd.Flags().StringVar(&exchangeName, "exchange", "", "exchange name")
	cmd.Flags().StringVar(&coin, "coin", "", "coin pair, e.g. BTC_USDT")
	cmd.Flags().StringVar(&interval, "interval", "1h", "candle interval")
	cmd.Flags().StringVar(&startStr, "start", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&endStr, "end", "", "range end (RFC3339), defaults to now")
	cmd.Flags().IntVar(&limit, "limit", 0, "max records (0 = unlimited)")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	_ = cmd.MarkFlagRequired("exchange")
	_ = cmd.MarkFlagRequired("coin")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newGapsCmd(configFile *string) *cobra.Command {
	var (
		exchangeName, coin, interval string
		startStr, endStr             string
		fill                         bool
	)
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Detect (and optionally fill) missing candles in a stored dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configFile)
			if err != nil {
				return err
			}
			start, end, err := parseRange(startStr, endStr)
			if err != nil {
				return err
			}
			client, err := a.exchangeClient()
			if err != nil {
				return err
			}
			backfiller := gaps.NewBackfiller(client, a.manager, a.log)
			meta := models.Metadata{DataType: models.DataTypeOHLCV, Exchange: exchangeName, Coin: coin, Interval: interval}
			if fill {
				n, err := backfiller.Backfill(ctx, meta, start, end)
				if err != nil {
					return err
				}
				fmt.Printf("filled %d records\n", n)
				return nil
			}
			ranges, err := backfiller.Detect(ctx, meta, start, end)
			if err != nil {
				return err
			}
			if len(ranges) == 0 {
				fmt.Println("no gaps")
				return nil
			}
			for _, r := range ranges {
				fmt.Printf("%s .. %s\n", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exchangeName, "exchange", "", "exchange name")
	cmd.Flags().StringVar(&coin, "coin", "", "coin pair")
	cmd.Flags().StringVar(&interval, "interval", "1h", "candle interval")
	cmd.Flags().StringVar(&startStr, "start", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&endStr, "end", "", "range end (RFC3339), defaults to now")
	cmd.Flags().BoolVar(&fill, "fill", false, "backfill detected gaps from the exchange")
	_ = cmd.MarkFlagRequired("exchange")
	_ = cmd.MarkFlagRequired("coin")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newTargetsCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage collection targets",
	}

	var (
		coin, exchangeName, exchangeID, interval string
		disabled                                 bool
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a collection target",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			t, err := a.targets.Add(cmd.Context(), targets.Target{
				Coin:       coin,
				Exchange:   exchangeName,
				ExchangeID: exchangeID,
				Interval:   interval,
				Enabled:    !disabled,
			})
			if err != nil {
				return err
			}
			fmt.Println(t.ID)
			return nil
		},
	}
	add.Flags().StringVar(&coin, "coin", "", "coin pair")
	add.Flags().StringVar(&exchangeName, "exchange", "", "exchange name")
	add.Flags().StringVar(&exchangeID, "exchange-id", "", "exchange-native symbol")
	add.Flags().StringVar(&interval, "interval", "1h", "candle interval")
	add.Flags().BoolVar(&disabled, "disabled", false, "create the target disabled")
	_ = add.MarkFlagRequired("coin")
	_ = add.MarkFlagRequired("exchange")

	var enabledOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List collection targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			all, err := a.targets.List(cmd.Context(), enabledOnly)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		},
	}
	list.Flags().BoolVar(&enabledOnly, "enabled", false, "only enabled targets")

	remove := &cobra.Command{
		Use:   "remove <target-id>",
		Short: "Remove a collection target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			return a.targets.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func newServeCmd(configFile *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve historical data over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configFile)
			if err != nil {
				return err
			}
			fetcher := historical.NewFetcher(a.manager, a.log)
			current := historical.NewCurrentFetcher(a.manager, a.cfg.Collector.LatestWindow, a.log)
			hm := historical.NewManager(fetcher, current, a.log)

			mux := http.NewServeMux()
			mux.Handle("/ws/historical", historical.NewStreamHandler(hm, a.log))
			server := &http.Server{Addr: addr, Handler: mux}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()
			a.log.Info("serving historical stream", "addr", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q: %w", startStr, err)
	}
	end := time.Now().UTC()
	if endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q: %w", endStr, err)
		}
	}
	return start.UTC(), end.UTC(), nil
}
