package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.dedis.ch/hey/entropy"
	"go.dedis.ch/hey/evolve"
	"go.dedis.ch/hey/framelog"
	"go.dedis.ch/hey/mesh"
	"go.dedis.ch/hey/node"
	"go.dedis.ch/hey/peerstore"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	cli "gopkg.in/urfave/cli.v1"
)

// runFlags override the values of the config file.
var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "log, l",
		Usage: "frame log path, \"none\" to disable",
	},
	cli.StringFlag{
		Name:  "peers, p",
		Usage: "peer store path, \"none\" to disable",
	},
	cli.StringFlag{
		Name:  "host",
		Usage: "address to bind",
	},
	cli.StringFlag{
		Name:  "peerhost",
		Usage: "host of the root node",
	},
	cli.IntFlag{
		Name:  "tick",
		Usage: "polling interval in milliseconds",
	},
	cli.BoolFlag{
		Name:  "biased, b",
		Usage: "mix the entropy stream into every fold",
	},
	cli.StringFlag{
		Name:  "root",
		Usage: "root literal",
	},
	cli.BoolFlag{
		Name:  "save",
		Usage: "write the resulting configuration back to the config file",
	},
}

var cmds = cli.Commands{
	{
		Name:    "run",
		Usage:   "join the mesh, folding stdin and peer messages into the state",
		Aliases: []string{"r"},
		Flags:   runFlags,
		Action:  run,
	},
	{
		Name:      "port",
		Usage:     "print the port a literal derives, and after each failed bind",
		Aliases:   []string{"p"},
		ArgsUsage: "[literal]",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "retries, n",
				Value: 0,
				Usage: "number of failed binds to simulate",
			},
		},
		Action: printPort,
	},
	{
		Name:    "replay",
		Usage:   "list the states stored in a frame log",
		Aliases: []string{"l"},
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "log, l",
				Usage: "frame log path",
			},
			cli.BoolFlag{
				Name:  "tree, t",
				Usage: "print the trees",
			},
		},
		Action: replay,
	},
	{
		Name:    "entropy",
		Usage:   "print bits of the entropy stream",
		Aliases: []string{"e"},
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "start, s",
				Value: 0,
				Usage: "first position",
			},
			cli.IntFlag{
				Name:  "count, n",
				Value: 64,
				Usage: "number of bits",
			},
		},
		Action: printEntropy,
	},
}

// resolveConfig merges the config file with the flags of c.
func resolveConfig(c *cli.Context) (config, error) {
	cfg, err := loadConfig(c.GlobalString("config"), getDataPath(appName))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("log") {
		cfg.FrameLog = c.String("log")
	}
	if c.IsSet("peers") {
		cfg.PeerDB = c.String("peers")
	}
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("peerhost") {
		cfg.PeerHost = c.String("peerhost")
	}
	if c.IsSet("tick") {
		cfg.TickMS = c.Int("tick")
	}
	if c.IsSet("biased") {
		cfg.Biased = c.Bool("biased")
	}
	if c.IsSet("root") {
		cfg.Root = c.String("root")
	}
	if c.GlobalIsSet("debug") {
		cfg.Debug = c.GlobalInt("debug")
	}
	if cfg.Root == "" {
		return cfg, xerrors.New("empty root literal")
	}
	return cfg, nil
}

func enabled(path string) bool {
	return path != "" && path != "none"
}

func run(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}
	log.SetDebugVisible(cfg.Debug)
	if c.Bool("save") {
		if err := cfg.save(c.GlobalString("config")); err != nil {
			return err
		}
	}

	d, err := newDaemon(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	m := d.mesh

	g, ctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	g.Go(func() error {
		select {
		case s := <-sig:
			log.Lvl1("received", s, "- shutting down")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if err := m.Bind(ctx); err != nil {
		cancel()
		g.Wait()
		if xerrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	fmt.Fprintf(c.App.Writer, "Serving on port %d (root port %d).\n", m.Port(), m.RootPort())

	q := mesh.NewQueue()
	go func() {
		if err := mesh.ReadLines(os.Stdin, q); err != nil {
			log.Error(err)
		}
	}()
	g.Go(func() error {
		defer cancel()
		return m.Serve(ctx, q)
	})
	return g.Wait()
}

// daemon is what run opens for one node: its stores, evolver and mesh.
type daemon struct {
	ev     *evolve.Evolver
	mesh   *mesh.Mesh
	frames *framelog.Store
	peers  *peerstore.Store
}

// newDaemon opens the stores cfg enables and builds an unbound mesh
// starting from the root literal.
func newDaemon(cfg config) (*daemon, error) {
	d := &daemon{ev: evolve.New(evolve.Biased(cfg.Biased))}
	var opts []mesh.Option
	if enabled(cfg.FrameLog) {
		if err := os.MkdirAll(filepath.Dir(cfg.FrameLog), 0700); err != nil {
			return nil, err
		}
		store, err := framelog.Open(cfg.FrameLog)
		if err != nil {
			return nil, err
		}
		d.frames = store
		opts = append(opts, mesh.WithRecorder(store))
	}
	if enabled(cfg.PeerDB) {
		if err := os.MkdirAll(filepath.Dir(cfg.PeerDB), 0700); err != nil {
			d.Close()
			return nil, err
		}
		peers, err := peerstore.Open(cfg.PeerDB)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.peers = peers
		opts = append(opts, mesh.WithPeerBook(peers))
	}

	mc := cfg.meshConfig()
	m, err := mesh.New(mesh.RootNode(mc.Root), d.ev, mc, opts...)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.mesh = m
	return d, nil
}

// Close releases the socket and the stores.
func (d *daemon) Close() error {
	var errs []error
	if d.mesh != nil {
		errs = append(errs, d.mesh.Close())
	}
	if d.frames != nil {
		errs = append(errs, d.frames.Close())
	}
	if d.peers != nil {
		errs = append(errs, d.peers.Close())
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func printPort(c *cli.Context) error {
	literal := c.Args().First()
	if literal == "" {
		cfg, err := loadConfig(c.GlobalString("config"), getDataPath(appName))
		if err != nil {
			return err
		}
		literal = cfg.Root
	}
	state, err := node.FromBytes([]byte(literal))
	if err != nil {
		return err
	}
	ev := evolve.New()
	for i := 0; ; i++ {
		fmt.Fprintf(c.App.Writer, "%d\t%d\n", i, mesh.Port(state))
		if i >= c.Int("retries") {
			return nil
		}
		if state, err = ev.Next(state, node.One); err != nil {
			return err
		}
	}
}

func replay(c *cli.Context) error {
	path := c.String("log")
	if path == "" {
		cfg, err := loadConfig(c.GlobalString("config"), getDataPath(appName))
		if err != nil {
			return err
		}
		path = cfg.FrameLog
	}
	if _, err := os.Stat(path); err != nil {
		return xerrors.Errorf("frame log: %w", err)
	}
	store, err := framelog.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	it, err := store.Iterate()
	if err != nil {
		return err
	}
	w := c.App.Writer
	for i := 0; ; i++ {
		n, err := it.Next()
		if err == io.EOF {
			fmt.Fprintf(w, "%d frames\n", i)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\tleaves=%d\tdepth=%d\tport=%d\t%s\n", i, node.Size(n),
			node.Depth(n), mesh.Port(n), hex.EncodeToString(node.Digest(n)[:8]))
		if c.Bool("tree") {
			fmt.Fprintln(w, "\t"+n.String())
		}
	}
}

func printEntropy(c *cli.Context) error {
	start, count := c.Int("start"), c.Int("count")
	if start < 0 {
		return xerrors.New("negative start")
	}
	if count < 0 {
		return xerrors.New("negative count")
	}
	var sb strings.Builder
	for _, b := range entropy.New().Bits(start, count) {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	fmt.Fprintln(c.App.Writer, sb.String())
	return nil
}
