// Package pcap reads USB request blocks of FX3 transfers from usbmon captures.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/hed1ad/fx3analysis/pkg/analysis"
)

// Source is a packet source that knows its link type, such as a
// *pcap.Handle or a *pcapgo.Reader.
type Source interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader reads observations from a packet source.
type Reader struct {
	source    Source
	close     func()
	extractor *Extractor
	isLive    bool
}

// NewFileReader creates a reader for a capture file.
func NewFileReader(filename string, opts ...Option) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", filename, err)
	}

	r := NewReader(handle, opts...)
	r.close = handle.Close
	return r, nil
}

// NewLiveReader creates a reader on a usbmon interface such as usbmon1.
func NewLiveReader(iface string, snaplen int32, timeout time.Duration, opts ...Option) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, false, timeout)
	if err != nil {
		return nil, fmt.Errorf("open interface %s: %w", iface, err)
	}

	r := NewReader(handle, opts...)
	r.close = handle.Close
	r.isLive = true
	return r, nil
}

// NewReader reads from src. Close does not close src.
func NewReader(src Source, opts ...Option) *Reader {
	return &Reader{
		source:    src,
		extractor: NewExtractor(opts...),
	}
}

// Read returns the observations of every matching URB. It must not be used on
// a live reader, which never reaches end of input.
func (r *Reader) Read() ([]analysis.Observation, error) {
	if r.source == nil {
		return nil, errors.New("reader not initialized")
	}
	if r.isLive {
		return nil, errors.New("read on live capture: use Stream")
	}

	var data []analysis.Observation
	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())

	for packet := range packetSource.Packets() {
		if obs, ok := r.extractor.Extract(packet); ok {
			data = append(data, obs)
		}
	}

	return data, nil
}

// Stream returns a channel of observations for incremental processing.
func (r *Reader) Stream(ctx context.Context) (<-chan analysis.Observation, error) {
	if r.source == nil {
		return nil, errors.New("reader not initialized")
	}

	out := make(chan analysis.Observation, 1000)
	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-packetSource.Packets():
				if !ok {
					return
				}
				obs, ok := r.extractor.Extract(packet)
				if !ok {
					continue
				}
				select {
				case out <- obs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Err always returns nil: gopacket's PacketSource ends its channel on read
// errors without reporting them.
func (r *Reader) Err() error {
	return nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.close != nil {
		r.close()
	}
	return nil
}

// Option configures URB extraction.
type Option func(*Extractor)

// WithDevice keeps only URBs addressed to the given USB device.
func WithDevice(addr uint8) Option {
	return func(e *Extractor) {
		e.device = &addr
	}
}

// WithEndpoint keeps only URBs on the given endpoint number.
func WithEndpoint(ep uint8) Option {
	return func(e *Extractor) {
		e.endpoint = &ep
	}
}

// WithEvents selects the usbmon event types to keep. The default keeps
// completions only, so each transfer is counted once.
func WithEvents(events ...layers.USBEventType) Option {
	return func(e *Extractor) {
		e.events = events
	}
}

// WithMaxPoints caps the number of payload bytes carried as points. Zero
// keeps them all.
func WithMaxPoints(n int) Option {
	return func(e *Extractor) {
		e.maxPoints = n
	}
}

// Extractor turns usbmon packets into observations.
type Extractor struct {
	device    *uint8
	endpoint  *uint8
	events    []layers.USBEventType
	maxPoints int
	next      int
}

// NewExtractor creates an extractor with the given filters.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		events: []layers.USBEventType{layers.USBEventTypeComplete},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Extract converts a packet to an observation. The second result is false for
// non-USB packets and for URBs rejected by the filters.
//
// Value is the URB data length, Points the captured data bytes, Valid whether
// the URB status is zero.
func (e *Extractor) Extract(packet gopacket.Packet) (analysis.Observation, bool) {
	usbLayer := packet.Layer(layers.LayerTypeUSB)
	if usbLayer == nil {
		return analysis.Observation{}, false
	}
	urb := usbLayer.(*layers.USB)

	if !e.accept(urb) {
		return analysis.Observation{}, false
	}

	ts := urbTime(urb)
	if md := packet.Metadata(); md != nil && !md.Timestamp.IsZero() {
		ts = md.Timestamp
	}

	obs := analysis.Observation{
		Index:     e.next,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Value:     float64(urb.UrbDataLength),
		Description: fmt.Sprintf("%v %v bus %d dev %d ep %d",
			urb.EventType, urb.TransferType, urb.BusID, urb.DeviceAddress, urb.EndpointNumber),
		Points: e.points(urb),
		Valid:  urb.Status == 0,
	}
	e.next++

	return obs, true
}

func (e *Extractor) accept(urb *layers.USB) bool {
	if e.device != nil && urb.DeviceAddress != *e.device {
		return false
	}
	if e.endpoint != nil && urb.EndpointNumber != *e.endpoint {
		return false
	}
	if len(e.events) == 0 {
		return true
	}
	for _, ev := range e.events {
		if urb.EventType == ev {
			return true
		}
	}
	return false
}

// points returns the transfer data, the trailing UrbDataLength bytes of the
// layer payload.
func (e *Extractor) points(urb *layers.USB) []float64 {
	payload := urb.LayerPayload()
	if n := int(urb.UrbDataLength); n < len(payload) {
		payload = payload[len(payload)-n:]
	}
	if e.maxPoints > 0 && len(payload) > e.maxPoints {
		payload = payload[:e.maxPoints]
	}
	if len(payload) == 0 {
		return nil
	}

	out := make([]float64, len(payload))
	for i, b := range payload {
		out[i] = float64(b)
	}
	return out
}

func urbTime(urb *layers.USB) time.Time {
	return time.Unix(urb.TimestampSec, int64(urb.TimestampUsec)*int64(time.Microsecond))
}
