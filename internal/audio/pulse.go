package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// DefaultHardwareFormat is what the Pulse backend records in unless configured
// otherwise: the device's native rate and layout, converted at capture time.
var DefaultHardwareFormat = Format{SampleRate: 48000, Channels: 2, BitDepth: 32}

// PulseBackend captures from PulseAudio/PipeWire sources.
type PulseBackend struct {
	appName string
	format  Format
}

// NewPulseBackend builds a backend recording in format (zero value selects DefaultHardwareFormat).
func NewPulseBackend(appName string, format Format) *PulseBackend {
	if format.SampleRate <= 0 {
		format.SampleRate = DefaultHardwareFormat.SampleRate
	}
	if format.Channels <= 0 {
		format.Channels = DefaultHardwareFormat.Channels
	}
	if format.BitDepth == 0 {
		format.BitDepth = DefaultHardwareFormat.BitDepth
	}
	if appName == "" {
		appName = "bettervoice"
	}
	return &PulseBackend{appName: appName, format: format}
}

func (b *PulseBackend) newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(b.appName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// Devices returns Pulse input sources with default/availability metadata.
func (b *PulseBackend) Devices(_ context.Context) ([]Device, error) {
	client, err := b.newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// Open connects to Pulse and resolves the source without starting a stream.
func (b *PulseBackend) Open(_ context.Context, device Device) (Source, error) {
	if b.format.BitDepth != 16 && b.format.BitDepth != 32 {
		return nil, fmt.Errorf("%w: unsupported hardware bit depth %d", ErrConversionFailed, b.format.BitDepth)
	}

	client, err := b.newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %v", ErrDeviceNotFound, device.ID, err)
	}

	return &pulseSource{client: client, source: source, format: b.format}, nil
}

type pulseSource struct {
	client *pulse.Client
	source *pulse.Source
	format Format

	mu      sync.Mutex
	stream  *pulse.RecordStream
	onChunk func([]byte)
	closed  bool
}

func (s *pulseSource) Format() Format {
	return s.format
}

func (s *pulseSource) Start(onChunk func([]byte)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	s.onChunk = onChunk
	s.mu.Unlock()

	sampleFormat := byte(pulseproto.FormatFloat32LE)
	if s.format.BitDepth == 16 {
		sampleFormat = pulseproto.FormatInt16LE
	}
	layout := pulse.RecordStereo
	if s.format.Channels == 1 {
		layout = pulse.RecordMono
	}

	// 20ms fragments keep the level meter responsive.
	fragment := s.format.SampleRate / 50 * s.format.FrameSize()

	writer := pulse.NewWriter(writerFunc(s.write), sampleFormat)
	stream, err := s.client.NewRecord(
		writer,
		pulse.RecordSource(s.source),
		layout,
		pulse.RecordSampleRate(s.format.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(fragment)),
		pulse.RecordMediaName("bettervoice dictation"),
	)
	if err != nil {
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	stream.Start()
	return nil
}

// Close stops the stream and disconnects. Safe to call more than once.
func (s *pulseSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
	}
	s.client.Close()
	return nil
}

// write receives raw Pulse frames and hands them to the capture callback.
func (s *pulseSource) write(buffer []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	onChunk := s.onChunk
	s.mu.Unlock()

	if closed {
		return 0, io.EOF
	}
	if onChunk != nil && len(buffer) > 0 {
		onChunk(buffer)
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
