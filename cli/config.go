package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/nixxel-company-limited/todo-receipts/config"
)

func (a *App) doConfig(_ context.Context, args []string) error {
	fs := a.newFlagSet("config", "--show | --set key=value | --reset")
	show := fs.Bool("show", false, "display the current configuration")
	set := fs.String("set", "", "set a configuration value (key=value)")
	reset := fs.Bool("reset", false, "reset the configuration to defaults")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	switch {
	case *reset:
		if err := a.manager.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(a.Stdout, "Configuration reset to defaults")
		return nil

	case *set != "":
		key, value, ok := strings.Cut(*set, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return usageErr("invalid format, use --set key=value")
		}
		if err := a.manager.Set(key, strings.TrimSpace(value)); err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "Updated %s = %s\n", strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value))
		return nil

	case *show || fs.NArg() == 0:
		a.showConfig()
		return nil
	}
	return usageErr("config takes no arguments")
}

func (a *App) showConfig() {
	c := a.cfg
	printer := c.Printer
	if printer == "" {
		printer = "(not set)"
	}

	fmt.Fprintf(a.Stdout, "Configuration (%s)\n", a.manager.Path())
	tw := tabwriter.NewWriter(a.Stdout, 0, 0, 2, ' ', 0)
	rows := []struct {
		key   string
		value any
	}{
		{"version", c.Version},
		{"printer", printer},
		{"serverport", c.ServerPort},
		{"datadir", c.DataDir},
		{"logopath", c.LogoPath},
		{"logowidth", c.LogoWidth},
		{"cloudurl", c.CloudURL},
		{"pollinterval", c.PollInterval},
		{"relayaddress", c.RelayAddress},
		{"title", c.Title},
		{"terminalname", c.TerminalName},
		{"qrmode", c.QRMode},
		{"loglevel", c.LogLevel},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%v\n", r.key, r.value)
	}
	tw.Flush()
	fmt.Fprintf(a.Stdout, "\nValid keys: %s\n", strings.Join(config.Keys(), ", "))
}
