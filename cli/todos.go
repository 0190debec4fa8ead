package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/nixxel-company-limited/todo-receipts/printer"
	"github.com/nixxel-company-limited/todo-receipts/receipt"
	"github.com/nixxel-company-limited/todo-receipts/store"
)

func (a *App) openStore() (*store.Store, error) {
	return store.Open(a.cfg.DatabasePath())
}

func (a *App) newPrinter() *printer.Printer {
	return printer.New(printer.WithLogo(a.cfg.LogoPath, a.cfg.LogoWidth))
}

func (a *App) doPrint(ctx context.Context, args []string) error {
	fs := a.newFlagSet("print", "[flags]")
	iface := fs.StringP("printer", "p", "", `printer interface ("usb", "usb:VID:PID", "tcp://host:port" or CUPS name)`)
	category := fs.String("category", "", "only items of this category")
	date := fs.String("date", "", "only items scheduled on this date (YYYY-MM-DD)")
	out := fs.StringP("out", "o", "", "write the raw printer stream to this file instead of printing")
	shareURL := fs.String("share-url", "", "print a QR code linking to this URL")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usageErr("print takes no arguments")
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	todos, err := st.List(ctx, store.Filter{Category: *category, Date: *date})
	if err != nil {
		return err
	}

	data := receipt.NewData(todos, time.Now(), a.cfg)
	data.ShareURL = *shareURL
	p := a.newPrinter()

	if *out != "" {
		buf, err := p.Render(data)
		if err != nil {
			return err
		}
		if dir := filepath.Dir(*out); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		if err := os.WriteFile(*out, buf, 0o644); err != nil {
			return fmt.Errorf("failed to write receipt: %w", err)
		}
		fmt.Fprintf(a.Stdout, "Receipt saved to: %s (%d items, %d bytes)\n", *out, len(todos), len(buf))
		return nil
	}

	target := *iface
	if target == "" {
		target = a.cfg.Printer
	}
	if target == "" {
		return fmt.Errorf("no printer specified, use --printer <interface> or set one via: todo-receipts config --set printer=<interface>")
	}

	ctx, cancel := context.WithTimeout(ctx, PrintTimeout)
	defer cancel()
	if err := p.Print(ctx, data, target); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Receipt sent to printer: %s (%d items)\n", target, len(todos))
	return nil
}

func (a *App) doAdd(ctx context.Context, args []string) error {
	fs := a.newFlagSet("add", "<title...> [flags]")
	category := fs.StringP("category", "c", "", "category (default General)")
	priority := fs.String("priority", string(receipt.PriorityMedium), "high, medium or low")
	estimate := fs.StringP("estimate", "e", "", "time estimate printed in the SCHED column")
	date := fs.String("date", "", "scheduled date (YYYY-MM-DD)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	title := joinArgs(fs.Args())
	if title == "" {
		return usageErr("add needs a title")
	}
	switch receipt.Priority(*priority) {
	case receipt.PriorityHigh, receipt.PriorityMedium, receipt.PriorityLow:
	default:
		return usageErr("invalid priority %q (valid: high, medium, low)", *priority)
	}
	if *date != "" {
		if _, err := time.Parse(time.DateOnly, *date); err != nil {
			return usageErr("invalid date %q, expected YYYY-MM-DD", *date)
		}
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	todo, err := st.Add(ctx, store.NewTodo{
		Title:         title,
		Category:      *category,
		Priority:      receipt.Priority(*priority),
		TimeEstimate:  *estimate,
		ScheduledDate: *date,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Added #%d %s\n", todo.ID, todo.Title)
	return nil
}

func (a *App) doList(ctx context.Context, args []string) error {
	fs := a.newFlagSet("ls", "[flags]")
	category := fs.String("category", "", "only items of this category")
	date := fs.String("date", "", "only items scheduled on this date (YYYY-MM-DD)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	todos, err := st.List(ctx, store.Filter{Category: *category, Date: *date})
	if err != nil {
		return err
	}
	if len(todos) == 0 {
		fmt.Fprintln(a.Stdout, "No tasks!")
		return nil
	}

	tw := tabwriter.NewWriter(a.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tTITLE\tCATEGORY\tPRIORITY\tSCHED\tDATE")
	for _, t := range todos {
		done := "[ ]"
		if t.Completed {
			done = "[x]"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, done, t.Title, t.Category, t.Priority, t.TimeEstimate, t.ScheduledDate)
	}
	return tw.Flush()
}

func (a *App) doDone(ctx context.Context, args []string) error {
	id, err := parseID("done", args)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetCompleted(ctx, id, true); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Completed #%d\n", id)
	return nil
}

func (a *App) doRemove(ctx context.Context, args []string) error {
	id, err := parseID("rm", args)
	if err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Removed #%d\n", id)
	return nil
}
