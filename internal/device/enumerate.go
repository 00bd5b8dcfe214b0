package device

import (
	"fmt"
	"sort"

	serial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial port found on the host.
type PortInfo struct {
	Name    string `json:"name"`
	IsUSB   bool   `json:"is_usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
}

// String formats the port for a selection list.
func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s [USB %s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	return s
}

// ListPorts returns the serial ports present on the host, sorted by name.
// It uses the detailed USB enumerator where the platform supports it and
// falls back to the plain port list. An empty result is ErrNoDevice.
func ListPorts() ([]PortInfo, error) {
	var ports []PortInfo
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		for _, d := range details {
			ports = append(ports, PortInfo{
				Name:    d.Name,
				IsUSB:   d.IsUSB,
				VID:     d.VID,
				PID:     d.PID,
				Serial:  d.SerialNumber,
				Product: d.Product,
			})
		}
	} else {
		names, lerr := serial.GetPortsList()
		if lerr != nil {
			return nil, fmt.Errorf("error reading ports: %w", lerr)
		}
		for _, n := range names {
			ports = append(ports, PortInfo{Name: n})
		}
	}
	if len(ports) == 0 {
		return nil, ErrNoDevice
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}
