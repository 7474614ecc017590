package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	spec "github.com/linskybing/device-arbiter/api/config/v1"
)

type options struct {
	configFile     string
	socketPath     string
	fallbackPolicy string
	watchConfig    bool
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		klog.Error(err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	o := &options{}

	c := cli.NewApp()
	c.Name = "device-arbiter"
	c.Usage = "Pick the best compute device for an inference request"
	c.Flags = []cli.Flag{
		&cli.IntFlag{
			Name:    "v",
			Usage:   "log verbosity",
			EnvVars: []string{"DEVICE_ARBITER_LOG_LEVEL"},
		},
	}
	c.Before = func(c *cli.Context) error {
		fs := flag.NewFlagSet("klog", flag.ContinueOnError)
		klog.InitFlags(fs)
		return fs.Set("v", strconv.Itoa(c.Int("v")))
	}

	socketFlag := &cli.StringFlag{
		Name:        "socket",
		Usage:       "the unix socket the arbiter listens on",
		Destination: &o.socketPath,
		EnvVars:     []string{"DEVICE_ARBITER_SOCKET"},
	}

	c.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "run the arbiter on a unix socket",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:        "config-file",
					Aliases:     []string{"config"},
					Usage:       "the path to a config file",
					Destination: &o.configFile,
					EnvVars:     []string{"DEVICE_ARBITER_CONFIG_FILE"},
				},
				socketFlag,
				&cli.StringFlag{
					Name:        "fallback-policy",
					Usage:       "what to return when every capable device is held by a more important class:\n\t\t[share | share-last | fail]",
					Destination: &o.fallbackPolicy,
					EnvVars:     []string{"DEVICE_ARBITER_FALLBACK_POLICY"},
				},
				&cli.BoolFlag{
					Name:        "watch-config",
					Usage:       "reload the device pool when the config file changes",
					Destination: &o.watchConfig,
					EnvVars:     []string{"DEVICE_ARBITER_WATCH_CONFIG"},
				},
			},
			Action: func(c *cli.Context) error {
				return runServe(c.Context, o)
			},
		},
		{
			Name:  "select",
			Usage: "ask a running arbiter for a device",
			Flags: []cli.Flag{
				socketFlag,
				&cli.StringFlag{
					Name:     "precision",
					Usage:    "the precision the workload needs [FP32 | FP16 | INT8 | BIN]",
					Required: true,
				},
				&cli.UintFlag{
					Name:  "importance",
					Usage: "the requester's importance class; lower is more important",
				},
			},
			Action: func(c *cli.Context) error {
				return runSelect(c, clientSocket(o))
			},
		},
		{
			Name:  "release",
			Usage: "drop a reservation held by an importance class",
			Flags: []cli.Flag{
				socketFlag,
				&cli.StringFlag{
					Name:     "device",
					Usage:    "the unique name of the device to release",
					Required: true,
				},
				&cli.UintFlag{
					Name:  "importance",
					Usage: "the importance class holding the reservation",
				},
			},
			Action: func(c *cli.Context) error {
				return runRelease(c, clientSocket(o))
			},
		},
		{
			Name:  "status",
			Usage: "show the device pool and reservation table",
			Flags: []cli.Flag{
				socketFlag,
				&cli.StringFlag{
					Name:  "output",
					Usage: "write the status to this file instead of stdout",
				},
			},
			Action: func(c *cli.Context) error {
				return runStatus(c, clientSocket(o))
			},
		},
	}
	return c
}

func clientSocket(o *options) string {
	if o.socketPath != "" {
		return o.socketPath
	}
	return spec.DefaultSocketPath
}

// loadConfig reads the config file, if any, and applies command line overrides.
func loadConfig(o *options) (*spec.Config, error) {
	var config *spec.Config
	var err error
	if o.configFile != "" {
		config, err = spec.Load(o.configFile)
	} else {
		config, err = spec.Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load config: %w", err)
	}
	if o.socketPath != "" {
		config.Flags.SocketPath = o.socketPath
	}
	if o.fallbackPolicy != "" {
		config.Flags.FallbackPolicy = spec.FallbackPolicy(o.fallbackPolicy)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}
