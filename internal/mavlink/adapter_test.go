package mavlink

import (
	"testing"

	"github.com/bluenviron/gomavlib/v3"

	"github.com/skybridge-systems/mavsessiond/internal/config"
)

func testMavCfg() config.MAVLinkConfig {
	return config.MAVLinkConfig{DefaultPort: "/dev/ttyUSB0", DefaultBaudRate: 57600}
}

func TestParseEndpointUDP(t *testing.T) {
	ep, err := parseEndpoint("udp:127.0.0.1:14550", testMavCfg())
	if err != nil {
		t.Fatalf("parseEndpoint returned error: %v", err)
	}
	udp, ok := ep.(gomavlib.EndpointUDPServer)
	if !ok {
		t.Fatalf("expected EndpointUDPServer, got %T", ep)
	}
	if udp.Address != "127.0.0.1:14550" {
		t.Errorf("Address = %q, want 127.0.0.1:14550", udp.Address)
	}
}

func TestParseEndpointTCP(t *testing.T) {
	ep, err := parseEndpoint("tcp:192.168.1.1:5760", testMavCfg())
	if err != nil {
		t.Fatalf("parseEndpoint returned error: %v", err)
	}
	tcp, ok := ep.(gomavlib.EndpointTCPClient)
	if !ok {
		t.Fatalf("expected EndpointTCPClient, got %T", ep)
	}
	if tcp.Address != "192.168.1.1:5760" {
		t.Errorf("Address = %q, want 192.168.1.1:5760", tcp.Address)
	}
}

func TestParseEndpointSerialWithBaud(t *testing.T) {
	ep, err := parseEndpoint("serial:/dev/ttyACM0:115200", testMavCfg())
	if err != nil {
		t.Fatalf("parseEndpoint returned error: %v", err)
	}
	serial, ok := ep.(gomavlib.EndpointSerial)
	if !ok {
		t.Fatalf("expected EndpointSerial, got %T", ep)
	}
	if serial.Device != "/dev/ttyACM0" || serial.Baud != 115200 {
		t.Errorf("got device=%s baud=%d, want /dev/ttyACM0 115200", serial.Device, serial.Baud)
	}
}

func TestParseEndpointBarePathUsesDefaultBaud(t *testing.T) {
	ep, err := parseEndpoint("/dev/ttyUSB1", testMavCfg())
	if err != nil {
		t.Fatalf("parseEndpoint returned error: %v", err)
	}
	serial, ok := ep.(gomavlib.EndpointSerial)
	if !ok {
		t.Fatalf("expected EndpointSerial, got %T", ep)
	}
	if serial.Device != "/dev/ttyUSB1" || serial.Baud != 57600 {
		t.Errorf("got device=%s baud=%d, want /dev/ttyUSB1 57600 (default)", serial.Device, serial.Baud)
	}
}

func TestParseEndpointRejectsMalformedUDP(t *testing.T) {
	if _, err := parseEndpoint("udp:", testMavCfg()); err == nil {
		t.Error("expected an error for a udp connection string missing host:port")
	}
}

func TestSplitSerialTargetWithBaud(t *testing.T) {
	device, baud := splitSerialTarget("/dev/ttyUSB0:9600", 57600)
	if device != "/dev/ttyUSB0" || baud != 9600 {
		t.Errorf("got device=%s baud=%d, want /dev/ttyUSB0 9600", device, baud)
	}
}

func TestSplitSerialTargetWithoutBaud(t *testing.T) {
	device, baud := splitSerialTarget("/dev/ttyUSB0", 57600)
	if device != "/dev/ttyUSB0" || baud != 57600 {
		t.Errorf("got device=%s baud=%d, want /dev/ttyUSB0 57600 (default)", device, baud)
	}
}

func TestSplitSerialTargetNonNumericSuffixTreatedAsDevice(t *testing.T) {
	// A device path like "/dev/tty:USB0" (no real baud suffix) should not be
	// misparsed; the whole string is kept as the device with the default baud.
	device, baud := splitSerialTarget("/dev/tty:USB0", 57600)
	if device != "/dev/tty:USB0" || baud != 57600 {
		t.Errorf("got device=%s baud=%d, want /dev/tty:USB0 57600", device, baud)
	}
}
