package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Spinkelben/MarketDash/client"
	"github.com/Spinkelben/MarketDash/internal/env"
	"github.com/Spinkelben/MarketDash/server"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// Whether to share the http port with other marketdash processes
	useReuseport bool
)

func init() {
	flags := StartCmd.PersistentFlags()

	flags.StringVar(&httpPort, "http-port", "8000", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.BoolVar(&useReuseport, "reuseport", false, "Listen with SO_REUSEPORT so several processes can share the port")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start up the MarketDash backend",
	Long: `Start up the MarketDash backend

Usage
	marketdash start --http-port 8000

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		fileLimit, err := setFileLimit()
		if err != nil {
			log.Warn("Could not raise the file limit", zap.Error(err))
		} else {
			log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))
		}

		upstream := client.New(client.Options{
			Endpoint:   client.SocketURL(conf.SocketHost, conf.ProtocolVersion, conf.Namespace),
			ClientUnit: conf.ClientUnit,
			Log:        log.Named("client"),
		})

		market := server.NewMarket(server.MarketOptions{
			Upstream:     upstream,
			Timeslots:    server.NewTimeslotClient(conf.TimeslotsURL, nil, log.Named("timeslots")),
			QueryTimeout: conf.QueryTimeout,
			CacheTTL:     conf.CacheTTL,
			Log:          log.Named("market"),
		})

		router := server.NewRouter(market, server.RouterOptions{
			DebugHTTP:   conf.DebugHTTP,
			CORSOrigins: conf.CORSOrigins,
			StaticDir:   conf.StaticDir,
			Log:         log.Named("http"),
		})

		listener, err := listen(net.JoinHostPort(host, httpPort))
		if err != nil {
			return multierr.Append(err, upstream.Close())
		}

		s := &http.Server{
			Handler: router,

			// Request contexts end when a shutdown signal arrives
			BaseContext: func(net.Listener) context.Context { return ctx },
		}

		// Serve in a goroutine so that it won't block the graceful shutdown
		// handling below
		go func() {
			if err := s.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		// A failed first connect is retried by the next request
		if err := upstream.Connect(ctx); err != nil {
			log.Warn("Realtime database unavailable, will retry on demand", zap.Error(err))
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.String("host", host),
			zap.String("httpPort", httpPort),
			zap.Bool("reuseport", useReuseport))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The server has 5 seconds to finish the requests it is handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
			return multierr.Append(err, upstream.Close())
		}

		if err := upstream.Close(); err != nil {
			log.Error("Realtime database connection did not close cleanly", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func listen(addr string) (net.Listener, error) {
	if useReuseport {
		return reuseport.Listen("tcp", addr)
	}

	return net.Listen("tcp", addr)
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
