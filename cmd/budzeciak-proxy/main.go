/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command budzeciak-proxy serves the rate-limited RPC proxy in front of the Budżeciak backend.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/budzeciak/rpc-proxy/internal/appinfo"
)

const flagConfig = "config"

func buildCLI() *cli.App {
	app := cli.NewApp()
	app.Name = appinfo.Name
	app.Usage = "rate-limited RPC proxy for the Budżeciak backend"
	app.Version = appinfo.Version()
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   flagConfig + ", c",
			Usage:  "path to a YAML or JSON config file; environment variables always apply",
			EnvVar: "BUDZECIAK_CONFIG",
		},
	}
	app.Action = func(c *cli.Context) error {
		return run(c.String(flagConfig))
	}
	return app
}

func main() {
	if err := buildCLI().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
