package adapter

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultTCPPort is the raw printing port used when tcp:// omits one.
const DefaultTCPPort = 9100

// Default USB identity: Epson TM-T88V.
const (
	DefaultVendorID  uint16 = 0x04B8
	DefaultProductID uint16 = 0x0202
)

// ErrEmptySpec is returned when no printer interface was given.
var ErrEmptySpec = errors.New("no printer interface specified")

// Spec identifies one printer destination. It is one of TCP, USB or CUPS.
type Spec interface {
	fmt.Stringer
	isSpec()
}

// TCP is a network printer reached over a raw socket.
type TCP struct {
	Host string
	Port int
}

// USB is a printer attached by USB, identified by vendor and product id.
type USB struct {
	VendorID  uint16
	ProductID uint16
}

// CUPS is a named print queue.
type CUPS struct {
	Name string
}

func (TCP) isSpec()  {}
func (USB) isSpec()  {}
func (CUPS) isSpec() {}

func (s TCP) String() string {
	return "tcp://" + s.Address()
}

// Address returns host:port.
func (s TCP) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s USB) String() string {
	return fmt.Sprintf("usb:%04x:%04x", s.VendorID, s.ProductID)
}

func (s CUPS) String() string {
	return s.Name
}

// ParseSpec reads a printer interface specifier:
//
//	tcp://host[:port]  network printer, port 9100 by default
//	usb                USB printer with the default vendor/product id
//	usb:VID:PID        USB printer with hexadecimal vendor/product id; extra
//	                   fields are ignored and fewer select the default ids
//	anything else      CUPS destination name, used verbatim
func ParseSpec(s string) (Spec, error) {
	switch {
	case s == "":
		return nil, ErrEmptySpec
	case strings.HasPrefix(s, "tcp://"):
		return parseTCP(s)
	case s == "usb":
		return USB{VendorID: DefaultVendorID, ProductID: DefaultProductID}, nil
	case strings.HasPrefix(s, "usb:"):
		return parseUSB(s)
	default:
		if err := checkCUPSName(s); err != nil {
			return nil, err
		}
		return CUPS{Name: s}, nil
	}
}

func parseTCP(s string) (Spec, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid tcp printer address %q: %w", s, err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid tcp printer address %q: missing host", s)
	}

	port := DefaultTCPPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid tcp printer port %q", p)
		}
	}
	return TCP{Host: host, Port: port}, nil
}

func parseUSB(s string) (Spec, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return USB{VendorID: DefaultVendorID, ProductID: DefaultProductID}, nil
	}
	vid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid usb vendor id %q: %w", parts[1], err)
	}
	pid, err := strconv.ParseUint(parts[2], 16, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid usb product id %q: %w", parts[2], err)
	}
	return USB{VendorID: uint16(vid), ProductID: uint16(pid)}, nil
}

// checkCUPSName rejects names lpstat and lp would read as options.
func checkCUPSName(name string) error {
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("invalid CUPS printer name %q: must not start with '-'", name)
	}
	return nil
}
