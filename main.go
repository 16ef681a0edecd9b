package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/skysweep/skysweep/configuration"
	awschecks "github.com/skysweep/skysweep/internal/checks/aws"
	kuberneteschecks "github.com/skysweep/skysweep/internal/checks/kubernetes"
	"github.com/skysweep/skysweep/internal/compliance"
	"github.com/skysweep/skysweep/internal/connector"
	"github.com/skysweep/skysweep/internal/connector/kubernetes"
	"github.com/skysweep/skysweep/internal/connector/static"
	"github.com/skysweep/skysweep/internal/executor"
	"github.com/skysweep/skysweep/internal/registry"
	"github.com/skysweep/skysweep/internal/scan"
	"github.com/skysweep/skysweep/internal/sink/elastic"
	"github.com/skysweep/skysweep/internal/sink/filesystem"
	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

type cliOptions struct {
	ConfigFile string
	LogLevel   string
	OutputFile string
}

func main() {
	options := cliOptions{}
	app := cli.NewApp()
	app.Version = "0.1.0"
	app.Name = "skysweep"
	app.Usage = "Scans cloud accounts and clusters for security misconfigurations"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config-file",
			Usage:       "path to the scanner configuration file",
			Destination: &options.ConfigFile,
			Value:       "config.toml",
			EnvVars:     []string{"SKYSWEEP_CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "app log level",
			Destination: &options.LogLevel,
			Value:       "info",
			EnvVars:     []string{"SKYSWEEP_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:        "output-file",
			Usage:       "file path to write findings to, overrides the configured filesystem sink",
			Destination: &options.OutputFile,
			EnvVars:     []string{"SKYSWEEP_OUTPUT_FILE"},
		},
		&cli.StringSliceFlag{
			Name:    "provider",
			Usage:   "provider to scan, repeatable; defaults to every enabled provider",
			EnvVars: []string{"SKYSWEEP_PROVIDER"},
		},
		&cli.StringSliceFlag{
			Name:    "region",
			Usage:   "region to scan, repeatable; defaults to every account region",
			EnvVars: []string{"SKYSWEEP_REGION"},
		},
		&cli.StringSliceFlag{
			Name:    "check",
			Usage:   "check id to run, repeatable; bypasses the other check filters",
			EnvVars: []string{"SKYSWEEP_CHECK"},
		},
		&cli.StringSliceFlag{
			Name:    "exclude-check",
			Usage:   "check id to exclude, repeatable; wins over every other filter",
			EnvVars: []string{"SKYSWEEP_EXCLUDE_CHECK"},
		},
		&cli.StringSliceFlag{
			Name:    "service",
			Usage:   "provider service to restrict the scan to, repeatable",
			EnvVars: []string{"SKYSWEEP_SERVICE"},
		},
		&cli.StringSliceFlag{
			Name:    "severity",
			Usage:   "severity to restrict the scan to, repeatable",
			EnvVars: []string{"SKYSWEEP_SEVERITY"},
		},
		&cli.StringSliceFlag{
			Name:    "category",
			Usage:   "check category to restrict the scan to, repeatable",
			EnvVars: []string{"SKYSWEEP_CATEGORY"},
		},
		&cli.StringSliceFlag{
			Name:    "compliance",
			Usage:   "compliance framework to restrict the scan to and summarize, repeatable",
			EnvVars: []string{"SKYSWEEP_COMPLIANCE"},
		},
		&cli.BoolFlag{
			Name:  "list-checks",
			Usage: "list the registered checks and exit",
		},
		&cli.BoolFlag{
			Name:  "list-services",
			Usage: "list the services covered per provider and exit",
		},
		&cli.BoolFlag{
			Name:  "list-frameworks",
			Usage: "list the loaded compliance frameworks and exit",
		},
	}

	app.Before = func(c *cli.Context) error {
		switch options.LogLevel {
		case "info":
			logger.Config(logger.InfoLevel)
		case "warn":
			logger.Config(logger.WarnLevel)
		case "debug":
			logger.Config(logger.DebugLevel)
		case "error":
			logger.Config(logger.ErrorLevel)
		default:
			return fmt.Errorf("invalid log level specified")
		}
		return nil
	}

	app.Action = func(contextCli *cli.Context) error {
		config := configuration.GetConfiguration(options.ConfigFile)

		reg := registry.Discover(
			kuberneteschecks.Pack(),
			awschecks.Pack(),
		)
		logger.Infow("check registry initialized", "checks", reg.Len())

		if contextCli.Bool("list-checks") {
			for _, id := range reg.IDs() {
				metadata, _ := reg.Metadata(id)
				fmt.Printf("%s\t%s\t%s\t%s\n", metadata.ID, metadata.Provider, metadata.Severity, metadata.Title)
			}
			return nil
		}

		if contextCli.Bool("list-services") {
			for _, provider := range []domain.Provider{
				domain.ProviderAWS, domain.ProviderAzure, domain.ProviderGCP,
				domain.ProviderKubernetes, domain.ProviderM365, domain.ProviderGitHub,
			} {
				for _, service := range reg.Services(provider) {
					fmt.Printf("%s\t%s\n", provider, service)
				}
			}
			return nil
		}

		frameworks, err := compliance.LoadDir(config.Compliance.FrameworksDir)
		if err != nil {
			return fmt.Errorf("failed to load compliance frameworks, %w", err)
		}
		if contextCli.Bool("list-frameworks") {
			for _, framework := range frameworks {
				fmt.Printf("%s\t%d requirements\n", framework.Name, len(framework.Requirements))
			}
			return nil
		}

		connectors, err := buildConnectors(config)
		if err != nil {
			return err
		}
		if len(connectors) == 0 {
			return fmt.Errorf("no provider is enabled in the configuration")
		}

		ctx, stop := signal.NotifyContext(contextCli.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sinks, cleanup, err := buildSinks(ctx, config, options.OutputFile)
		if err != nil {
			return err
		}
		defer cleanup()

		scanner := scan.NewScanner(
			reg,
			connectors,
			frameworks,
			executor.Config{
				MaxWorkers:          config.Engine.MaxWorkers,
				ProviderConcurrency: config.Engine.ProviderConcurrency,
			},
			sinks...,
		)

		go func() {
			for event := range scanner.Events() {
				if event.Type == scan.EventCheckCompleted {
					logger.Debugw("check finished", "check", event.CheckID, "state", event.State)
				}
			}
		}()

		scope := domain.ScanScope{
			Providers:     scopeProviders(contextCli.StringSlice("provider"), connectors),
			Regions:       contextCli.StringSlice("region"),
			Checks:        contextCli.StringSlice("check"),
			ExcludeChecks: contextCli.StringSlice("exclude-check"),
			Services:      contextCli.StringSlice("service"),
			Severities:    contextCli.StringSlice("severity"),
			Categories:    contextCli.StringSlice("category"),
			Frameworks:    contextCli.StringSlice("compliance"),
		}

		report, err := scanner.Run(ctx, scope)
		if err != nil {
			return fmt.Errorf("scan failed, %w", err)
		}

		for _, summary := range report.Summaries {
			logger.Infow(
				"compliance summary",
				"framework", summary.Framework,
				"passed", summary.Passed,
				"failed", summary.Failed,
				"not-applicable", summary.NotApplicable,
				"pass-rate", fmt.Sprintf("%.1f%%", summary.PassRate*100),
			)
		}
		for _, failure := range report.CollectionFailures {
			logger.Warnw(
				"resources could not be collected",
				"provider", failure.Provider,
				"region", failure.Region,
				"kind", failure.Kind,
				"error", failure.Error,
			)
		}
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		logger.Fatal(err)
	}
}

// buildConnectors assembles one resilient connector per enabled provider
func buildConnectors(config configuration.Config) ([]domain.Connector, error) {
	resilience := connector.Config{
		Retry: connector.RetryConfig{
			MaxRetries:      config.Engine.Retry.MaxRetries,
			InitialInterval: config.Engine.Retry.InitialInterval,
			MaxElapsedTime:  config.Engine.Retry.MaxElapsedTime,
		},
		RateLimit: connector.RateLimitConfig{
			RPS:   config.Engine.RateLimit.RequestsPerSecond,
			Burst: config.Engine.RateLimit.Burst,
		},
	}

	var connectors []domain.Connector
	if config.Providers.Kubernetes.Enabled {
		kubeConnector, err := kubernetes.NewFromKubeconfig(
			config.Providers.Kubernetes.KubeConfigFile,
			config.Providers.Kubernetes.ClusterName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kubernetes connector, %w", err)
		}
		connectors = append(connectors, connector.NewResilient(kubeConnector, resilience))
	}
	if config.Providers.Static.Enabled {
		for _, name := range config.Providers.Static.Providers {
			provider, err := domain.ParseProvider(name)
			if err != nil {
				return nil, fmt.Errorf("invalid static provider in configuration, %w", err)
			}
			staticConnector, err := static.New(provider, config.Providers.Static.FixturesDir)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize static connector for %s, %w", provider, err)
			}
			connectors = append(connectors, connector.NewResilient(staticConnector, resilience))
		}
	}
	return connectors, nil
}

// buildSinks assembles the configured finding sinks, starting their workers.
// The returned cleanup stops the workers and flushes buffered findings.
func buildSinks(ctx context.Context, config configuration.Config, outputFile string) ([]domain.FindingsSink, func(), error) {
	var sinks []domain.FindingsSink
	var stops []func()

	sinkCtx, cancelSinks := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(sinkCtx)

	filePath := outputFile
	if filePath == "" && config.Sinks.FilesystemSink != nil {
		filePath = config.Sinks.FilesystemSink.FilePath
	}
	if filePath != "" {
		fileSink, err := filesystem.New(filePath)
		if err != nil {
			cancelSinks()
			return nil, nil, fmt.Errorf("failed to initialize file system sink, %w", err)
		}
		logger.Infow("starting file system sink", "file", filePath)
		eg.Go(func() error {
			return fileSink.Start(egCtx)
		})
		stops = append(stops, func() {
			if err := fileSink.Stop(); err != nil {
				logger.Errorw("failed to stop file system sink", "error", err)
			}
		})
		sinks = append(sinks, fileSink)
	}

	if config.Sinks.ElasticsearchSink != nil {
		esConfig := config.Sinks.ElasticsearchSink
		elasticSink, err := elastic.New(esConfig.Address, esConfig.Username, esConfig.Password, esConfig.IndexName)
		if err != nil {
			cancelSinks()
			return nil, nil, fmt.Errorf("failed to initialize elasticsearch sink, %w", err)
		}
		logger.Infow("starting elasticsearch sink", "index", esConfig.IndexName)
		eg.Go(func() error {
			return elasticSink.Start(egCtx)
		})
		sinks = append(sinks, elasticSink)
	}

	cleanup := func() {
		for _, stopSink := range stops {
			stopSink()
		}
		// cancelling lets the workers flush their remaining batches
		cancelSinks()
		_ = eg.Wait()
	}
	return sinks, cleanup, nil
}

// scopeProviders resolves the providers to scan: the explicit flag values, or
// every provider a connector is configured for
func scopeProviders(flagValues []string, connectors []domain.Connector) []domain.Provider {
	if len(flagValues) > 0 {
		providers := make([]domain.Provider, 0, len(flagValues))
		for _, value := range flagValues {
			providers = append(providers, domain.Provider(value))
		}
		return providers
	}
	providers := make([]domain.Provider, 0, len(connectors))
	for _, conn := range connectors {
		providers = append(providers, conn.Provider())
	}
	return providers
}
