package probe

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// KindNetworkInterfaces is the registry kind of the network interface probe.
const KindNetworkInterfaces = "network-interfaces"

// Interface is a snapshot of one host network interface.
type Interface struct {
	Name         string
	HardwareAddr []byte
	Index        int
	Addrs        []string
	AddrErr      error
	MTU          int
	Up           bool
	Virtual      bool
	Loopback     bool
	PointToPoint bool
	Multicast    bool
	Parent       string // Empty when the interface has no parent
}

// InterfaceLister enumerates host interfaces.
type InterfaceLister func() ([]Interface, error)

// NetworkInterfaces reports the host's network interfaces.
type NetworkInterfaces struct {
	list InterfaceLister
}

// NetworkInterfacesOption configures a NetworkInterfaces probe.
type NetworkInterfacesOption func(*NetworkInterfaces)

// WithInterfaceLister replaces the system enumeration.
func WithInterfaceLister(list InterfaceLister) NetworkInterfacesOption {
	return func(p *NetworkInterfaces) {
		if list != nil {
			p.list = list
		}
	}
}

// NewNetworkInterfaces creates the network interface probe.
func NewNetworkInterfaces(opts ...NetworkInterfacesOption) *NetworkInterfaces {
	p := &NetworkInterfaces{list: SystemInterfaces}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Kind returns KindNetworkInterfaces.
func (p *NetworkInterfaces) Kind() string { return KindNetworkInterfaces }

// Spec returns the wire form of the probe.
func (p *NetworkInterfaces) Spec() Spec { return Spec{Kind: KindNetworkInterfaces} }

// Call enumerates interfaces and renders the report.
// Enumeration failures are rendered inline; Call never returns an error.
func (p *NetworkInterfaces) Call(_ context.Context) (string, error) {
	ifaces, err := p.list()
	return RenderInterfaces(ifaces, err), nil
}

// RenderInterfaces renders interfaces in the support bundle layout.
// Interfaces without a hardware address contribute only their name.
// A non-nil err is appended after whatever was enumerated.
func RenderInterfaces(ifaces []Interface, err error) string {
	var b strings.Builder

	for _, ni := range ifaces {
		b.WriteString("-----------\n")
		fmt.Fprintf(&b, " * Name %s\n", ni.Name)

		// No permission, or no address at all
		if len(ni.HardwareAddr) == 0 {
			continue
		}

		fmt.Fprintf(&b, " ** Hardware Address - %s\n", hex.EncodeToString(ni.HardwareAddr))
		fmt.Fprintf(&b, " ** Index - %d\n", ni.Index)
		if ni.AddrErr != nil {
			fmt.Fprintf(&b, " ** Inet Address - error: %v\n", ni.AddrErr)
		} else {
			fmt.Fprintf(&b, " ** Inet Address - [%s]\n", strings.Join(ni.Addrs, ", "))
		}
		fmt.Fprintf(&b, " ** MTU - %d\n", ni.MTU)
		fmt.Fprintf(&b, " ** Is Up - %s\n", strconv.FormatBool(ni.Up))
		fmt.Fprintf(&b, " ** Is Virtual - %s\n", strconv.FormatBool(ni.Virtual))
		fmt.Fprintf(&b, " ** Is Loopback - %s\n", strconv.FormatBool(ni.Loopback))
		fmt.Fprintf(&b, " ** Is Point to Point - %s\n", strconv.FormatBool(ni.PointToPoint))
		fmt.Fprintf(&b, " ** Supports multicast - %s\n", strconv.FormatBool(ni.Multicast))

		if ni.Parent != "" {
			fmt.Fprintf(&b, " ** Child of - %s\n", ni.Parent)
		}
	}

	if err != nil {
		fmt.Fprintf(&b, "Error enumerating network interfaces: %v\n", err)
	}

	return b.String()
}

// SystemInterfaces enumerates the interfaces of the current host.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]string, len(ifaces))
	for _, iface := range ifaces {
		byIndex[iface.Index] = iface.Name
	}

	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		ni := Interface{
			Name:         iface.Name,
			HardwareAddr: []byte(iface.HardwareAddr),
			Index:        iface.Index,
			MTU:          iface.MTU,
			Up:           iface.Flags&net.FlagUp != 0,
			Loopback:     iface.Flags&net.FlagLoopback != 0,
			PointToPoint: iface.Flags&net.FlagPointToPoint != 0,
			Multicast:    iface.Flags&net.FlagMulticast != 0,
			Virtual:      isVirtual(iface.Name),
		}

		if idx, ok := parentIndex(iface.Name, iface.Index); ok {
			ni.Parent = byIndex[idx]
		}

		addrs, err := iface.Addrs()
		if err != nil {
			ni.AddrErr = err
		} else {
			for _, addr := range addrs {
				ni.Addrs = append(ni.Addrs, addr.String())
			}
		}

		out = append(out, ni)
	}

	return out, nil
}

// Ensure NetworkInterfaces implements Probe
var _ Probe = (*NetworkInterfaces)(nil)
