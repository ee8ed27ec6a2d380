// Command statenode is the single binary run at every position of the
// state-machine tree. The same executable plays every node: the root
// is launched by the operator, and every interior node spawns its own
// children by re-executing this binary with `--parent` pointed back at
// itself.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.dedis.ch/statetree/config"
	"go.dedis.ch/statetree/log"
	"go.dedis.ch/statetree/supervisor"
)

func main() {
	app := cli.NewApp()
	app.Name = "statenode"
	app.Usage = "run one node of a distributed hierarchical state-machine tree"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "port", Usage: "this node's 5-digit port/id"},
		cli.IntFlag{Name: "levels", Usage: "tree depth D"},
		cli.IntFlag{Name: "children", Usage: "tree arity A"},
		cli.StringFlag{Name: "parent", Usage: "parent's ip:port, empty for the root"},
		cli.StringFlag{Name: "architecture", Usage: "direct or broker"},
		cli.StringFlag{Name: "config", Usage: "path to a TOML configuration file"},
		cli.BoolFlag{Name: "debug", Usage: "enable verbose logging"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	sources := []config.Source{config.NewCliSource(c)}
	if path := c.String("config"); path != "" {
		v, err := config.NewViperSourceFromFile(path)
		log.ErrFatal(err, "loading config file", path)
		sources = append(sources, v)
	}
	hub := config.NewSourceHub(sources...)

	if hub.Bool("debug") {
		log.SetDebugVisible(5)
	}

	cfg, err := supervisor.Load(hub)
	log.ErrFatal(err, "loading node configuration")

	sup, err := supervisor.New(cfg)
	log.ErrFatal(err, "constructing node")

	log.ErrFatal(sup.Start(), "starting node")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Lvl1("statenode: received terminate signal, shutting down")
	sup.Shutdown()
	return nil
}
