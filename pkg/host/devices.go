package host

import (
	"fmt"
	"strings"
)

// DeviceRow is one line of the server's device list.
type DeviceRow struct {
	// Serial identifies the device ("emulator-5554", "HT85X1A...",
	// "192.168.1.77:5555").
	Serial string

	// State is the connection state ("device", "offline",
	// "unauthorized", ...).
	State string

	// Properties holds the k:v annotations of the long listing
	// (product, model, device, transport_id).
	Properties map[string]string
}

// ParseDeviceRows parses a device list body: one row per line,
// tab-separated serial and state, then optional k:v pairs.
func ParseDeviceRows(body []byte) ([]DeviceRow, error) {
	var rows []DeviceRow
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadDeviceRow, line)
		}
		row := DeviceRow{
			Serial: fields[0],
			State:  fields[1],
		}
		for _, field := range fields[2:] {
			k, v, ok := strings.Cut(field, ":")
			if !ok {
				continue
			}
			if row.Properties == nil {
				row.Properties = make(map[string]string)
			}
			row.Properties[k] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
