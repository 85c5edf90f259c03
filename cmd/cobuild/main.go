// cobuild CLI - transaction cobuild inspection, signing and verification
//
// The CLI works on JSON fixtures holding a molecule-encoded transaction and
// the cells its inputs consume (see pkg/fixture).
//
// Example usage:
//
//	# Show how the witnesses are classified and what each Otx claims
//	cobuild inspect --fixture tx.json
//
//	# Print every signing message hash
//	cobuild hash --fixture tx.json
//
//	# Seal the Otx at witness 3 and write the result back
//	cobuild sign --fixture tx.json --key 0x... --otx 3
//
//	# Run the engine for every input lock
//	cobuild verify --fixture tx.json
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/suffix-labs/ckb-cobuild/pkg/cobuild"
	"github.com/suffix-labs/ckb-cobuild/pkg/config"
)

// Version is the CLI version.
const Version = "0.1.0"

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML configuration file",
		EnvVars: []string{"COBUILD_CONFIG"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "override the configured log level (debug, info, warn, error)",
	}
	fixtureFlag = &cli.PathFlag{
		Name:     "fixture",
		Aliases:  []string{"f"},
		Usage:    "transaction fixture (JSON)",
		Required: true,
	}
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, exit.Error())
			os.Exit(exit.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "cobuild"
	app.Usage = "inspect, sign and verify CKB transaction cobuild witnesses"
	app.Version = Version
	app.Flags = []cli.Flag{configFlag, logLevelFlag}
	app.Before = setup
	// main reports errors and picks the exit code.
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.After = func(c *cli.Context) error {
		if logger, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
			_ = logger.Sync()
		}
		return nil
	}
	app.Commands = []*cli.Command{
		inspectCommand,
		hashCommand,
		signCommand,
		verifyCommand,
		versionCommand,
	}
	return app
}

// setup loads the configuration and builds the logger shared by every
// command.
func setup(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if level := c.String(logLevelFlag.Name); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	c.App.Metadata["config"] = cfg
	c.App.Metadata["logger"] = logger
	return nil
}

func appConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata["config"].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func appLogger(c *cli.Context) *zap.Logger {
	if logger, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// engineOptions configures the engine from the application config.
func engineOptions(c *cli.Context) []cobuild.Option {
	cfg := appConfig(c)
	return []cobuild.Option{
		cobuild.WithLogger(appLogger(c).Named("engine")),
		cobuild.WithChunkSize(int(cfg.ChunkSize.Bytes())),
	}
}

// exitError turns an engine failure into an exit error carrying its code
// when error_codes is enabled.
func exitError(c *cli.Context, err error) error {
	if err == nil {
		return nil
	}
	if code := cobuild.CodeOf(err); code != 0 && appConfig(c).ErrorCodes {
		return cli.Exit(err.Error(), int(code))
	}
	return cli.Exit(err.Error(), 1)
}
