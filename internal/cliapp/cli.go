// Package cliapp parses flags, configures logging, and drives the analysis
// runtime for the pklsense binary.
package cliapp

import "flag"

const versionString = "1.0.0"
const defaultConfigPath = "./pklsense.toml"

type cliOptions struct {
	configPath string
	once       bool
	watch      bool
	trend      bool
	metrics    bool
	resolve    string
	verbose    bool
	version    bool
	args       []string
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("pklsense", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.BoolVar(&opts.once, "once", false, "Run a single analysis pass and exit")
	fs.BoolVar(&opts.watch, "watch", false, "Watch the workspace and re-analyze on change")
	fs.BoolVar(&opts.trend, "trend", false, "Print the diagnostics trend from history and exit")
	fs.BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics while running")
	fs.StringVar(&opts.resolve, "resolve", "", "Resolve a module URI against the workspace and exit")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.args = fs.Args()
	return opts, nil
}
