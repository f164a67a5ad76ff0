package main

import (
	"context"
	"fmt"
	"os"

	"github.com/core-tools/hsu-bootstrap/pkg/bootstrap"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config     string `long:"config" description:"path to the YAML settings file"`
	EnvFile    string `long:"env-file" description:"override file with KEY=VALUE lines"`
	Variant    string `long:"variant" description:"variable set to recognize (sbx, nezha, tunnel, custom)"`
	LogLevel   string `long:"log-level" description:"debug, info, warn or error"`
	LogFormat  string `long:"log-format" description:"console or json"`
	StatusAddr string `long:"status-addr" description:"address for the /metrics and /health endpoint"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] [-- host-command [args...]]"
	hostArgs, err := parser.ParseArgs(argv)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(2)
	}

	config := bootstrap.DefaultConfig()
	if opts.Config != "" {
		config, err = bootstrap.LoadConfigFromFile(opts.Config)
		if err != nil {
			fmt.Printf("Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}
	applyFlags(config, opts)

	zapLogger, err := logging.NewZapLogger(logging.ZapConfig{
		Level:  config.Bootstrap.LogLevel,
		Format: config.Bootstrap.LogFormat,
		Output: "stdout",
	})
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(
		logPrefix("hsu-bootstrap"), logging.LogFuncs{
			Debugf: zapLogger.Debugf,
			Infof:  zapLogger.Infof,
			Warnf:  zapLogger.Warnf,
			Errorf: zapLogger.Errorf,
		})

	logger.Debugf("opts: %+v, host: %v", opts, hostArgs)

	// Only the bootstrap options stop the run; Run reports the rest as it goes
	if err := bootstrap.ValidateConfig(config); err != nil {
		logger.Warnf("Configuration check failed: %v", err)
	}

	host := bootstrap.WaitHost()
	if len(hostArgs) > 0 {
		host = bootstrap.CommandHost(hostArgs, config.Bootstrap.GracePeriod, logger)
	}

	code, err := bootstrap.Run(context.Background(), config, host, bootstrap.RunOptions{}, logger)
	if err != nil {
		logger.Errorf("Bootstrap failed: %v", err)
		if code == 0 {
			code = 1
		}
	}

	_ = zapLogger.Sync()
	os.Exit(code)
}

// applyFlags lets command line flags win over the settings file
func applyFlags(config *bootstrap.Config, opts flagOptions) {
	if opts.EnvFile != "" {
		config.Bootstrap.EnvFile = opts.EnvFile
	}
	if opts.Variant != "" {
		config.Bootstrap.Variant = opts.Variant
	}
	if opts.LogLevel != "" {
		config.Bootstrap.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		config.Bootstrap.LogFormat = opts.LogFormat
	}
	if opts.StatusAddr != "" {
		config.Bootstrap.StatusAddress = opts.StatusAddr
	}
}
