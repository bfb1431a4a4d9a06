// Command p2pnode is a thin composition root exercising the whole
// network core stack: it loads a config, wires up logging and
// metrics, starts the coordinator, and blocks until interrupted. CLI
// flag parsing stays intentionally minimal — spec.md section 1 scopes
// full configuration loading out of this core.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lastcanal/libbitcoin-network/addressbook"
	"github.com/lastcanal/libbitcoin-network/config"
	"github.com/lastcanal/libbitcoin-network/internal/logger"
	"github.com/lastcanal/libbitcoin-network/p2p"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		hostsFile   = flag.String("hosts-file", "", "path to the address book flat file (leveldb used if the path ends in /)")
		inboundPort = flag.Uint("inbound-port", 0, "inbound listen port (0 uses the default)")
		outbound    = flag.Int("outbound-connections", 0, "target outbound connection count (0 uses the default)")
		seeds       = flag.String("seeds", "", "comma-separated DNS seed hostnames")
		metricsAddr = flag.String("metrics-addr", "", "address to serve Prometheus metrics on, empty disables it")
	)
	flag.Parse()

	backend := logger.DefaultBackend()
	if err := backend.AddLogWriter(logger.NopCloser(os.Stdout), logger.LevelInfo); err != nil {
		fmt.Fprintln(os.Stderr, "add log writer:", err)
		os.Exit(1)
	}
	if err := backend.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "start logger:", err)
		os.Exit(1)
	}
	defer backend.Close()

	cfg := config.Config{HostsFile: *hostsFile}
	if *inboundPort != 0 {
		cfg.InboundPort = uint16(*inboundPort)
	}
	if *outbound != 0 {
		cfg.OutboundConnections = *outbound
	}
	if *seeds != "" {
		cfg.Seeds = strings.Split(*seeds, ",")
	}
	cfg, err := config.ApplyDefaults(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "apply config defaults:", err)
		os.Exit(1)
	}

	store, err := openStore(cfg.HostsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open address store:", err)
		os.Exit(1)
	}

	node := p2p.New(cfg, store)

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := node.Metrics().Register(reg); err != nil {
			fmt.Fprintln(os.Stderr, "register metrics:", err)
			os.Exit(1)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintln(os.Stderr, "metrics server:", err)
			}
		}()
	}

	startErr := make(chan error, 1)
	node.Start(func(err error) { startErr <- err })
	if err := <-startErr; err != nil {
		fmt.Fprintln(os.Stderr, "start p2p:", err)
		os.Exit(1)
	}

	runErr := make(chan error, 1)
	node.Run(func(err error) { runErr <- err })
	if err := <-runErr; err != nil {
		fmt.Fprintln(os.Stderr, "run p2p:", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	stopErr := make(chan error, 1)
	node.Stop(func(err error) { stopErr <- err })
	if err := <-stopErr; err != nil {
		fmt.Fprintln(os.Stderr, "stop p2p:", err)
		os.Exit(1)
	}
}

// openStore picks the flat-file or leveldb address book backing store
// based on hostsFile's shape: a trailing slash selects a leveldb
// directory, anything else a line-oriented flat file.
func openStore(hostsFile string) (addressbook.Store, error) {
	if strings.HasSuffix(hostsFile, string(os.PathSeparator)) {
		return addressbook.OpenLevelDBStore(hostsFile)
	}
	return addressbook.NewFlatFileStore(hostsFile), nil
}
