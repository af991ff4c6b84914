package deck

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gousb"

	"github.com/deckpilot/deckd/internal/render"
)

const (
	// VendorID is the key-grid hardware vendor.
	VendorID = 0x0fd9
	// ProductID15 is the original 15-key, 5-column model.
	ProductID15 = 0x0060

	keyImageSize  = 72
	reportSize    = 8191
	reportHeader  = 16
	readTimeout   = 500 * time.Millisecond
	writeTimeout  = 2 * time.Second
	maxBrightness = 99
)

// Encoder turns a key visual into the raw image payload the hardware
// expects for one key.
type Encoder interface {
	Encode(visual render.KeyVisual) ([]byte, error)
}

// USBDevice drives the hardware over gousb: interrupt IN for key state
// reports, paged output reports for key images.
type USBDevice struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()

	epIn *gousb.InEndpoint

	keys    int
	cols    int
	encoder Encoder
	logger  *slog.Logger

	events chan KeyEvent
	stop   chan struct{}
}

// OpenUSB finds and claims the first matching device. The kernel HID
// driver is detached so the interrupt endpoint can be read directly.
func OpenUSB(vid, pid uint16, encoder Encoder, logger *slog.Logger) (*USBDevice, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usb open: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		logger.Warn("auto-detach unavailable", "error", err)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("claim interface: %w", err)
	}

	d := &USBDevice{
		ctx:     ctx,
		dev:     dev,
		intf:    intf,
		done:    done,
		keys:    15,
		cols:    5,
		encoder: encoder,
		logger:  logger.With("component", "deck"),
		events:  make(chan KeyEvent, 64),
		stop:    make(chan struct{}),
	}
	if err := d.findInterruptIn(); err != nil {
		d.Close()
		return nil, err
	}
	go d.readLoop()
	return d, nil
}

func (d *USBDevice) findInterruptIn() error {
	for _, ep := range d.intf.Setting.Endpoints {
		if ep.TransferType == gousb.TransferTypeInterrupt && ep.Direction == gousb.EndpointDirectionIn {
			in, err := d.intf.InEndpoint(ep.Number)
			if err != nil {
				return fmt.Errorf("open interrupt endpoint: %w", err)
			}
			d.epIn = in
			return nil
		}
	}
	return fmt.Errorf("no interrupt IN endpoint")
}

// readLoop polls key state reports and emits edge events. Report layout:
// byte 0 is the report id, bytes 1..keys are per-key press states.
func (d *USBDevice) readLoop() {
	prev := make([]byte, d.keys)
	buf := make([]byte, d.epIn.Desc.MaxPacketSize)
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		n, err := d.epIn.Read(buf)
		if err != nil {
			select {
			case <-d.stop:
				return
			default:
			}
			d.logger.Error("key report read failed", "error", err)
			time.Sleep(readTimeout)
			continue
		}
		if n < d.keys+1 {
			continue
		}
		for i := 0; i < d.keys; i++ {
			state := buf[i+1]
			if state != prev[i] {
				key := d.translateKey(i)
				select {
				case d.events <- KeyEvent{Key: key, Pressed: state != 0}:
				case <-d.stop:
					return
				}
			}
			prev[i] = state
		}
	}
}

// translateKey flips the column order: the 15-key hardware numbers keys
// right to left within each row.
func (d *USBDevice) translateKey(raw int) int {
	row := raw / d.cols
	col := raw % d.cols
	return row*d.cols + (d.cols - 1 - col)
}

func (d *USBDevice) KeyCount() int { return d.keys }

func (d *USBDevice) Layout() (int, int) { return d.keys / d.cols, d.cols }

// SetKey encodes the visual and ships it in paged output reports. Each
// page carries a 16-byte header naming the page number and target key.
func (d *USBDevice) SetKey(idx int, visual render.KeyVisual) error {
	if idx < 0 || idx >= d.keys {
		return fmt.Errorf("key %d out of range", idx)
	}
	payload, err := d.encoder.Encode(visual)
	if err != nil {
		return fmt.Errorf("encode key %d: %w", idx, err)
	}
	raw := d.translateKey(idx)

	chunk := reportSize - reportHeader
	page := 1
	for offset := 0; offset < len(payload); offset += chunk {
		end := offset + chunk
		last := byte(0)
		if end >= len(payload) {
			end = len(payload)
			last = 1
		}
		report := make([]byte, reportSize)
		report[0] = 0x02
		report[1] = 0x01
		report[2] = byte(page)
		report[4] = last
		report[5] = byte(raw + 1)
		copy(report[reportHeader:], payload[offset:end])
		if _, err := d.dev.Control(0x21, 0x09, 0x0202, 0, report); err != nil {
			return fmt.Errorf("write key %d page %d: %w", idx, page, err)
		}
		page++
	}
	return nil
}

// SetBrightness sends the brightness feature report (0..99).
func (d *USBDevice) SetBrightness(percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > maxBrightness {
		percent = maxBrightness
	}
	report := []byte{0x05, 0x55, 0xaa, 0xd1, 0x01, byte(percent), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := d.dev.Control(0x21, 0x09, 0x0305, 0, report); err != nil {
		return fmt.Errorf("set brightness: %w", err)
	}
	return nil
}

func (d *USBDevice) Events() <-chan KeyEvent { return d.events }

// Reset sends the firmware reset feature report, blanking all keys.
func (d *USBDevice) Reset() error {
	report := []byte{0x0b, 0x63, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := d.dev.Control(0x21, 0x09, 0x030b, 0, report); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (d *USBDevice) Close() error {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	if d.done != nil {
		d.done()
	}
	if d.dev != nil {
		d.dev.Close()
	}
	if d.ctx != nil {
		return d.ctx.Close()
	}
	return nil
}
