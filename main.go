package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/homgar-integration/cmd"
)

func main() {
	app := &cli.App{
		Name:   "homgar-integration",
		Usage:  "polls the HomGar cloud for RainPoint water flow meters",
		Action: cmd.HomgarCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML file with email and password",
				EnvVars: []string{"HOMGAR_CONFIG"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "cache",
				Usage:   "session cache file",
				EnvVars: []string{"CACHE_FILE"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "poll once, print the discovered devices and exit",
				Value: false,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
