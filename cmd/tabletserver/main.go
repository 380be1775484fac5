package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v2"

	"github.com/tiglabs/tabletengine/server"
	"github.com/tiglabs/tabletengine/util/config"
	"github.com/tiglabs/tabletengine/util/log"
)

const flagConfig = "config"

var (
	app = &cli.App{
		Name:        "tablet-server",
		Usage:       "tablet-server [command]",
		Description: "Tablet engine replication server.",
		Version:     "0.1.0",
		Commands:    []*cli.Command{startCmd},
	}
	startCmd = &cli.Command{
		Name:        "start",
		Usage:       "tablet-server start --config <file>",
		Description: "Start the tablet server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "config file path",
			},
		},
		Action: func(cmdCtx *cli.Context) error {
			conf, err := config.LoadConfigFile(cmdCtx.String(flagConfig))
			if err != nil {
				fmt.Printf("Tablet server load config error: %s\n", err)
				return err
			}
			serverConf, err := server.LoadConfig(conf)
			if err != nil {
				fmt.Printf("Tablet server config error: %s\n", err)
				return err
			}

			if serverConf.LogDir != "" {
				if err := log.InitFileLog(serverConf.LogDir, serverConf.LogModule, serverConf.LogLevel); err != nil {
					fmt.Printf("Tablet server init log error: %s\n", err)
					return err
				}
			}

			s, err := server.NewServer(conf)
			if err != nil {
				fmt.Printf("Tablet server start error: %s\n", err)
				return err
			}
			log.Info("%s %s started on node %d", serverConf.AppName, serverConf.AppVersion, serverConf.NodeID)

			waitShutdown(s.Stop)
			return nil
		},
	}
)

func waitShutdown(stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs

	log.Info("received signal %s, shutting down", sig)
	stop()
	log.Sync()
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
