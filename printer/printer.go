package printer

import (
	"context"
	"fmt"
	"time"

	"github.com/nixxel-company-limited/todo-receipts/adapter"
	"github.com/nixxel-company-limited/todo-receipts/escpos"
	"github.com/nixxel-company-limited/todo-receipts/logger"
	"github.com/nixxel-company-limited/todo-receipts/raster"
	"github.com/nixxel-company-limited/todo-receipts/receipt"
	"go.uber.org/zap"
)

// Printer renders receipts and sends them to a printer interface. It keeps
// no state between calls and is safe for concurrent use.
type Printer struct {
	logoPath  string
	logoWidth int
	open      func(spec adapter.Spec) (adapter.Transport, error)
	logger    *zap.Logger
}

// Option configures a Printer.
type Option func(*Printer)

// WithLogo sets the logo file and its width in dots.
func WithLogo(path string, width int) Option {
	return func(p *Printer) {
		p.logoPath = path
		p.logoWidth = width
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Printer) {
		p.logger = l
	}
}

// WithTransports replaces the transport factory.
func WithTransports(open func(spec adapter.Spec) (adapter.Transport, error)) Option {
	return func(p *Printer) {
		p.open = open
	}
}

// New creates a Printer. Without WithLogo no logo is printed.
func New(opts ...Option) *Printer {
	p := &Printer{
		logoWidth: raster.DefaultLogoWidth,
		open:      adapter.New,
		logger:    logger.Named("printer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render builds the complete command stream for data. The logo file is
// read on every call.
func (p *Printer) Render(data receipt.Data) ([]byte, error) {
	var logo *escpos.Bitmap
	if p.logoPath != "" {
		bm, err := raster.LoadLogo(p.logoPath, p.logoWidth)
		if err != nil {
			return nil, err
		}
		logo = bm
	}

	doc, err := receipt.Layout(data, logo)
	if err != nil {
		return nil, err
	}
	return doc.Bytes(), nil
}

// Print renders data and delivers it to the printer named by iface. The
// job is attempted once.
func (p *Printer) Print(ctx context.Context, data receipt.Data, iface string) error {
	start := time.Now()

	buf, err := p.Render(data)
	if err != nil {
		return fmt.Errorf("failed to render receipt: %w", err)
	}

	spec, err := adapter.ParseSpec(iface)
	if err != nil {
		return err
	}
	transport, err := p.open(spec)
	if err != nil {
		return err
	}

	if err := transport.Deliver(ctx, buf); err != nil {
		p.logger.Error("Print failed",
			zap.Stringer("printer", transport),
			zap.Int("bytes", len(buf)),
			zap.Error(err))
		return err
	}

	p.logger.Info("Receipt printed",
		zap.Stringer("printer", transport),
		zap.Int("items", len(data.Todos)),
		zap.Int("bytes", len(buf)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
