// hey runs a mesh node and inspects what it leaves behind.
package main

import (
	"os"
	"path/filepath"

	"go.dedis.ch/onet/v3/cfgpath"
	"go.dedis.ch/onet/v3/log"
	cli "gopkg.in/urfave/cli.v1"
)

const appName = "hey"

// getDataPath is a function pointer so that tests can hook and modify this.
var getDataPath = cfgpath.GetDataPath

var gitTag = "dev"

func newApp() *cli.App {
	cliApp := cli.NewApp()
	cliApp.Name = appName
	cliApp.Usage = "Self-discovering UDP mesh of evolving node states."
	cliApp.Version = gitTag
	cliApp.Commands = cmds // stored in "commands.go"
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
		cli.StringFlag{
			Name:   "config, c",
			EnvVar: "HEY_CONFIG",
			Value:  filepath.Join(getDataPath(appName), "hey.toml"),
			Usage:  "path to the configuration file",
		},
	}
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
	return cliApp
}

func main() {
	log.ErrFatal(newApp().Run(os.Args))
}
