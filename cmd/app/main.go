package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/repostash/repostash/hosting"
	"github.com/repostash/repostash/mirror"
	"github.com/repostash/repostash/repository"
	"github.com/repostash/repostash/taskqueue"
)

const metricsNamespace = "repostash"

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("REPOSTASH_CONFIG"),
			Value:   "/etc/repostash/config.yaml",
			Usage:   "Absolute path to the config file.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
		&cli.StringFlag{
			Name:    "listen-address",
			Sources: cli.EnvVars("LISTEN_ADDRESS"),
			Value:   ":9090",
			Usage:   "Address to serve metrics on",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

func parseConfigFile(path string) (*mirror.Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	conf := &mirror.Config{}
	if err := yaml.Unmarshal(yamlFile, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "repostash",
		Usage: "repostash periodically mirrors remote repositories to local disk.",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {

			// set log level according to argument
			if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
				loggerLevel.Set(v)
			}

			conf, err := parseConfigFile(c.String("config"))
			if err != nil {
				logger.Error("unable to parse repostash config file", "err", err)
				os.Exit(1)
			}

			repository.EnableMetrics(metricsNamespace, prometheus.DefaultRegisterer)
			taskqueue.EnableMetrics(metricsNamespace, prometheus.DefaultRegisterer)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			meta, err := hosting.NewClient(ctx, conf.Auth, logger)
			if err != nil {
				logger.Error("could not create hosting client", "err", err)
				os.Exit(1)
			}

			git := repository.NewGoGitClient(logger.With("logger", "git"))

			svc, err := mirror.New(ctx, *conf, git, meta, logger)
			if err != nil {
				logger.Error("could not create mirror service", "err", err)
				os.Exit(1)
			}

			// start mirror loop
			go svc.StartLoop()

			// serve metrics
			go func() {
				http.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(c.String("listen-address"), nil); err != nil {
					logger.Error("metrics listener failed", "err", err)
				}
			}()

			// listenForShutdown
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			logger.Info("Shutting down")

			cancel()

			// wait for in-flight clone tasks to drain
			<-svc.Stopped

			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}
