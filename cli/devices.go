package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/nixxel-company-limited/todo-receipts/adapter"
	"github.com/nixxel-company-limited/todo-receipts/logger"
	"github.com/nixxel-company-limited/todo-receipts/poller"
	"github.com/nixxel-company-limited/todo-receipts/server"
	"go.uber.org/zap"
)

func (a *App) doRelay(ctx context.Context, args []string) error {
	fs := a.newFlagSet("relay", "[flags]")
	listen := fs.StringP("listen", "l", a.cfg.RelayAddress, "address to accept raw print jobs on")
	iface := fs.StringP("printer", "p", a.cfg.Printer, "printer interface jobs are forwarded to")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *iface == "" {
		return fmt.Errorf("no printer specified, use --printer <interface> or set one via: todo-receipts config --set printer=<interface>")
	}

	transport, err := adapter.Open(*iface)
	if err != nil {
		return err
	}

	svr := server.New(transport, *listen)
	if err := svr.StartAsync(); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Relaying jobs from %s to %s (Ctrl+C to stop)\n", svr.Addr(), transport)

	<-ctx.Done()
	return svr.Stop()
}

func (a *App) doPoll(ctx context.Context, args []string) error {
	fs := a.newFlagSet("poll", "[flags]")
	cloudURL := fs.String("cloud-url", a.cfg.CloudURL, "dashboard base URL")
	interval := fs.Duration("interval", a.cfg.PollInterval, "poll interval")
	iface := fs.StringP("printer", "p", a.cfg.Printer, "printer interface")
	once := fs.Bool("once", false, "poll a single time and exit")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *interval <= 0 {
		return usageErr("interval must be positive")
	}

	cfg := *a.cfg
	cfg.CloudURL = *cloudURL
	cfg.PollInterval = *interval
	cfg.Printer = *iface

	p := poller.New(&cfg, a.newPrinter())
	if *once {
		n, err := p.PollOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "Printed %d job(s)\n", n)
		return nil
	}

	fmt.Fprintf(a.Stdout, "Polling %s every %s for print jobs (Ctrl+C to stop)\n", cfg.CloudURL, cfg.PollInterval)
	return p.Run(ctx)
}

func (a *App) doDetect(ctx context.Context, args []string) error {
	fs := a.newFlagSet("detect", "")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	fmt.Fprintln(a.Stdout, "USB devices:")
	devices, err := adapter.ListUSBDevices()
	switch {
	case err != nil:
		logger.Debug("USB enumeration failed", zap.Error(err))
		fmt.Fprintf(a.Stdout, "  USB not available: %v\n", err)
	case len(devices) == 0:
		fmt.Fprintln(a.Stdout, "  No USB devices found")
	}
	for i, d := range devices {
		name := d.Manufacturer + " - " + d.Product
		if d.Manufacturer == "" && d.Product == "" {
			name = "Device " + d.Spec() + " (unable to read details)"
		}
		marker := ""
		if d.IsPrinter {
			marker = " [printer]"
		}
		fmt.Fprintf(a.Stdout, "  [%d] %s%s\n", i+1, name, marker)
		fmt.Fprintf(a.Stdout, "      To use: todo-receipts config --set printer=%s\n", d.Spec())
	}

	fmt.Fprintln(a.Stdout)
	fmt.Fprintln(a.Stdout, "CUPS printers:")
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dests, err := adapter.ListDestinations(ctx)
	switch {
	case err != nil:
		fmt.Fprintln(a.Stdout, "  CUPS not available or no printers found")
	case len(dests) == 0:
		fmt.Fprintln(a.Stdout, "  No CUPS printers configured")
	}
	for i, d := range dests {
		fmt.Fprintf(a.Stdout, "  [%d] %s (%s)\n", i+1, d.Name, d.Status)
		fmt.Fprintf(a.Stdout, "      To use: todo-receipts config --set printer=%s\n", d.Name)
	}
	return nil
}
