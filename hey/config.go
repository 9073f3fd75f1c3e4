package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.dedis.ch/hey"
	"go.dedis.ch/hey/mesh"
	"golang.org/x/xerrors"
)

// config is the content of hey.toml.
type config struct {
	// Host is the address to bind.
	Host string
	// PeerHost is where the root node lives.
	PeerHost string
	// TickMS is the polling interval in milliseconds.
	TickMS int
	// FrameLog is the path of the frame log; empty disables it.
	FrameLog string
	// PeerDB is the path of the peer store; empty disables it.
	PeerDB string
	// Biased mixes the entropy stream into every fold.
	Biased bool
	// Debug is the log level.
	Debug int
	// Root is the root literal.
	Root string
}

func defaultConfig(dir string) config {
	return config{
		Host:     "0.0.0.0",
		PeerHost: "127.0.0.1",
		TickMS:   int(mesh.DefaultTick / time.Millisecond),
		FrameLog: filepath.Join(dir, "frames.log"),
		PeerDB:   filepath.Join(dir, "peers.db"),
		Root:     string(hey.Root),
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path, dir string) (config, error) {
	cfg := defaultConfig(dir)
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, xerrors.Errorf("reading config %s: %w", path, err)
	}
	if cfg.Root == "" {
		return cfg, xerrors.New("empty root literal in config")
	}
	return cfg, nil
}

func (c config) meshConfig() mesh.Config {
	return mesh.Config{
		Host:     c.Host,
		PeerHost: c.PeerHost,
		Tick:     time.Duration(c.TickMS) * time.Millisecond,
		Root:     []byte(c.Root),
	}
}

func (c config) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return xerrors.Errorf("could not write %v: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
