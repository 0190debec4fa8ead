package adapter

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/google/gousb"
	"github.com/nixxel-company-limited/todo-receipts/logger"
	"go.uber.org/zap"
)

// printerInterface is the interface number jobs are written to.
const printerInterface = 0

// maxVisibleDevices bounds the device sample attached to not-found errors.
const maxVisibleDevices = 10

// usbBus is the part of a libusb context the transport needs.
type usbBus interface {
	// open returns nil, nil when no device matches
	open(vid, pid uint16) (usbDevice, error)
	visible() ([]string, error)
	Close() error
}

// usbDevice is an opened device.
type usbDevice interface {
	claim(num int) (usbClaim, error)
	Close() error
}

// usbClaim is a claimed interface.
type usbClaim interface {
	endpoints() []gousb.EndpointDesc
	write(ctx context.Context, ep int, data []byte) (int, error)
	release()
}

// USBTransport writes jobs to the bulk OUT endpoint of a USB printer.
type USBTransport struct {
	spec   USB
	newBus func() usbBus
	logger *zap.Logger
}

// NewUSBTransport creates a transport for spec backed by libusb.
func NewUSBTransport(spec USB) *USBTransport {
	return &USBTransport{
		spec:   spec,
		newBus: newGousbBus,
		logger: logger.Named("usb"),
	}
}

// String returns the usb:VID:PID form.
func (t *USBTransport) String() string {
	return t.spec.String()
}

// Deliver opens the device, claims interface 0, writes data in one bulk
// transfer and then releases the interface and closes the device, whatever
// the outcome. Concurrent jobs against the same device are not serialized.
func (t *USBTransport) Deliver(ctx context.Context, data []byte) error {
	bus := t.newBus()
	defer t.cleanup("close usb context", bus.Close)

	dev, err := bus.open(t.spec.VendorID, t.spec.ProductID)
	if err != nil {
		return fmt.Errorf("failed to open usb device %04x:%04x: %w", t.spec.VendorID, t.spec.ProductID, err)
	}
	if dev == nil {
		return &DeviceNotFoundError{
			VendorID:  t.spec.VendorID,
			ProductID: t.spec.ProductID,
			Visible:   visibleSample(bus),
		}
	}
	defer t.cleanup("close usb device", dev.Close)

	claim, err := dev.claim(printerInterface)
	if err != nil {
		return fmt.Errorf("failed to claim usb interface %d: %w", printerInterface, err)
	}
	defer claim.release()

	ep, err := bulkOut(claim.endpoints())
	if err != nil {
		return err
	}

	n, err := claim.write(ctx, ep, data)
	if err != nil {
		return fmt.Errorf("usb transfer failed: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("usb transfer incomplete: wrote %d of %d bytes", n, len(data))
	}

	t.logger.Debug("USB transfer complete",
		zap.Stringer("device", t.spec),
		zap.Int("endpoint", ep),
		zap.Int("bytes", n))
	return nil
}

func (t *USBTransport) cleanup(what string, fn func() error) {
	if err := fn(); err != nil {
		t.logger.Debug("USB cleanup failed", zap.String("step", what), zap.Error(err))
	}
}

// visibleSample lists up to maxVisibleDevices attached devices. Enumeration
// failures yield an empty list.
func visibleSample(bus usbBus) []string {
	ids, err := bus.visible()
	if err != nil {
		return nil
	}
	if len(ids) > maxVisibleDevices {
		ids = ids[:maxVisibleDevices]
	}
	return ids
}

// bulkOut picks the bulk OUT endpoint with the lowest number.
func bulkOut(eps []gousb.EndpointDesc) (int, error) {
	sort.Slice(eps, func(i, j int) bool { return eps[i].Number < eps[j].Number })
	for _, ep := range eps {
		if ep.Direction == gousb.EndpointDirectionOut && ep.TransferType == gousb.TransferTypeBulk {
			return ep.Number, nil
		}
	}

	described := make([]string, 0, len(eps))
	for _, ep := range eps {
		described = append(described, fmt.Sprintf("%s (%s %s)", ep.Address, ep.TransferType, ep.Direction))
	}
	if len(described) == 0 {
		described = append(described, "none")
	}
	return 0, fmt.Errorf("no bulk OUT endpoint found on usb interface %d, endpoints: %s",
		printerInterface, strings.Join(described, ", "))
}

// gousbBus implements usbBus with a libusb context.
type gousbBus struct {
	ctx *gousb.Context
}

func newGousbBus() usbBus {
	return &gousbBus{ctx: gousb.NewContext()}
}

func (b *gousbBus) open(vid, pid uint16) (usbDevice, error) {
	dev, err := b.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		if dev != nil {
			dev.Close()
		}
		return nil, err
	}
	if dev == nil {
		return nil, nil
	}
	return &gousbDevice{dev: dev}, nil
}

func (b *gousbBus) visible() ([]string, error) {
	var ids []string
	// The opener never accepts, so no device is actually opened
	_, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		ids = append(ids, fmt.Sprintf("%s:%s", desc.Vendor, desc.Product))
		return false
	})
	return ids, err
}

func (b *gousbBus) Close() error {
	return b.ctx.Close()
}

type gousbDevice struct {
	dev *gousb.Device
}

func (d *gousbDevice) claim(num int) (usbClaim, error) {
	// Let libusb detach an active kernel driver while the interface is claimed
	if runtime.GOOS == "linux" {
		if err := d.dev.SetAutoDetach(true); err != nil {
			return nil, fmt.Errorf("failed to enable kernel driver auto-detach: %w", err)
		}
	}

	cfgNum, err := d.dev.ActiveConfigNum()
	if err != nil {
		return nil, fmt.Errorf("failed to get active config: %w", err)
	}

	cfg, err := d.dev.Config(cfgNum)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	iface, err := cfg.Interface(num, 0)
	if err != nil {
		cfg.Close()
		return nil, err
	}
	return &gousbClaim{cfg: cfg, iface: iface}, nil
}

func (d *gousbDevice) Close() error {
	return d.dev.Close()
}

type gousbClaim struct {
	cfg   *gousb.Config
	iface *gousb.Interface
}

func (c *gousbClaim) endpoints() []gousb.EndpointDesc {
	eps := make([]gousb.EndpointDesc, 0, len(c.iface.Setting.Endpoints))
	for _, ep := range c.iface.Setting.Endpoints {
		eps = append(eps, ep)
	}
	return eps
}

func (c *gousbClaim) write(ctx context.Context, ep int, data []byte) (int, error) {
	out, err := c.iface.OutEndpoint(ep)
	if err != nil {
		return 0, err
	}
	return out.WriteContext(ctx, data)
}

func (c *gousbClaim) release() {
	c.iface.Close()
	c.cfg.Close()
}

// USBDevice describes an attached USB device.
type USBDevice struct {
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	IsPrinter    bool
}

// Spec returns the interface specifier that selects this device.
func (d USBDevice) Spec() string {
	return USB{VendorID: d.VendorID, ProductID: d.ProductID}.String()
}

// ListUSBDevices opens every attached device long enough to read its
// descriptors. Devices that cannot be opened are still listed by id.
func ListUSBDevices() ([]USBDevice, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	type location struct{ bus, address int }
	var order []location
	found := make(map[location]*USBDevice)

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		loc := location{desc.Bus, desc.Address}
		order = append(order, loc)
		found[loc] = &USBDevice{VendorID: uint16(desc.Vendor), ProductID: uint16(desc.Product)}
		return true
	})
	if err != nil && len(order) == 0 {
		return nil, fmt.Errorf("failed to enumerate usb devices: %w", err)
	}

	for _, dev := range devices {
		if info, ok := found[location{dev.Desc.Bus, dev.Desc.Address}]; ok {
			info.Manufacturer, _ = dev.Manufacturer()
			info.Product, _ = dev.Product()
			info.IsPrinter = IsPrinter(dev)
		}
		dev.Close()
	}

	all := make([]USBDevice, 0, len(order))
	for _, loc := range order {
		all = append(all, *found[loc])
	}
	return all, nil
}

// IsPrinter checks if a device exposes a printer class interface
func IsPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}

	cfg, err := dev.ActiveConfigNum()
	if err != nil {
		return false
	}

	desc, ok := dev.Desc.Configs[cfg]
	if !ok {
		return false
	}
	return hasPrinterInterface(desc)
}

func hasPrinterInterface(desc gousb.ConfigDesc) bool {
	for _, iface := range desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == gousb.ClassPrinter {
				return true
			}
		}
	}
	return false
}

// DeviceNotFoundError reports a USB printer that is not attached, with a
// sample of the devices that are.
type DeviceNotFoundError struct {
	VendorID  uint16
	ProductID uint16
	Visible   []string
}

func (e *DeviceNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "USB printer not found (looking for %04x:%04x).\nVisible USB devices:", e.VendorID, e.ProductID)
	if len(e.Visible) == 0 {
		b.WriteString("\n  (none)")
	}
	for _, id := range e.Visible {
		b.WriteString("\n  " + id)
	}
	return b.String()
}

// IsDeviceNotFound reports whether err is a DeviceNotFoundError.
func IsDeviceNotFound(err error) bool {
	var nf *DeviceNotFoundError
	return errors.As(err, &nf)
}
