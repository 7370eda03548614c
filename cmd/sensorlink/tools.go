package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/config"
	"github.com/luki/sensorlink/internal/discovery"
	"github.com/luki/sensorlink/internal/transport"
	"github.com/luki/sensorlink/internal/viewer"
)

func listPorts() error {
	ports, err := transport.DescribePorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func discover(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Network.DiscoveryTimeout)
	defer cancel()

	fmt.Printf("browsing %s for %s...\n", cfg.Network.Service, cfg.Network.DiscoveryTimeout)
	records, err := discovery.New(zap.NewNop()).Resolve(ctx, cfg.Network.Service)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no instances found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tHOST\tADDRESSES\tPORT\t")
	for _, r := range records {
		mark := ""
		if r.Instance == cfg.Network.Instance {
			mark = "*"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%v\t%d\t\n", r.Instance, mark, r.Host, r.Addrs, r.Port)
	}
	return w.Flush()
}

func browseHistory(cfg *config.Config) error {
	return viewer.Run(cfg.Record.Dir)
}
