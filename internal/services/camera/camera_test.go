package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/models"
)

type fakeStream struct {
	id       string
	deviceID string
	frames   chan image.Image
	failures chan error
	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakeStream(id, deviceID string) *fakeStream {
	return &fakeStream{
		id:       id,
		deviceID: deviceID,
		frames:   make(chan image.Image),
		failures: make(chan error),
		stopped:  make(chan struct{}),
	}
}

func (s *fakeStream) ID() string       { return s.id }
func (s *fakeStream) DeviceID() string { return s.deviceID }

func (s *fakeStream) ReadFrame() (image.Image, error) {
	select {
	case img := <-s.frames:
		return img, nil
	case err := <-s.failures:
		return nil, err
	case <-s.stopped:
		return nil, ErrStreamStopped
	}
}

func (s *fakeStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

func (s *fakeStream) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

type fakePlatform struct {
	mu          sync.Mutex
	devices     []models.MediaDevice
	enumErr     error
	openErr     error
	requests    []Constraints
	streams     []*fakeStream
	streamCount int
}

func (p *fakePlatform) EnumerateDevices(ctx context.Context) ([]models.MediaDevice, error) {
	return p.devices, p.enumErr
}

func (p *fakePlatform) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, c)
	if p.openErr != nil {
		return nil, p.openErr
	}

	deviceID := c.DeviceID
	if deviceID == "" && len(p.devices) > 0 {
		deviceID = p.devices[0].DeviceID
	}
	p.streamCount++
	s := newFakeStream(fmt.Sprintf("stream-%d", p.streamCount), deviceID)
	p.streams = append(p.streams, s)
	return s, nil
}

type memPrefs struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemPrefs() *memPrefs { return &memPrefs{values: make(map[string]string)} }

func (m *memPrefs) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memPrefs) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memPrefs) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func testDevices() []models.MediaDevice {
	return []models.MediaDevice{
		{DeviceID: "mic-1", Kind: models.DeviceKindAudioInput, Label: "Microphone"},
		{DeviceID: "cam-a", Kind: models.DeviceKindVideoInput, Label: "Front Camera"},
		{DeviceID: "cam-b", Kind: models.DeviceKindVideoInput, Label: ""},
		{DeviceID: "cam-c", Kind: models.DeviceKindVideoInput, Label: ""},
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
	}
}

func TestEnumerator_MapsVideoInputsOneToOne(t *testing.T) {
	platform := &fakePlatform{devices: testDevices()}
	e := NewEnumerator(platform, newMemPrefs(), logger.NewNop())

	options, err := e.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	expected := []models.CameraOption{
		{Label: "Front Camera", DeviceID: "cam-a"},
		{Label: "camera 2", DeviceID: "cam-b"},
		{Label: "camera 3", DeviceID: "cam-c"},
	}
	if len(options) != len(expected) {
		t.Fatalf("Expected %d options, got %d: %+v", len(expected), len(options), options)
	}
	for i := range expected {
		if options[i] != expected[i] {
			t.Errorf("Option %d = %+v, expected %+v", i, options[i], expected[i])
		}
	}
}

func TestEnumerator_MarksPersistedSelection(t *testing.T) {
	prefs := newMemPrefs()
	prefs.Set(PreferenceCameraID, "cam-b")
	e := NewEnumerator(&fakePlatform{devices: testDevices()}, prefs, logger.NewNop())

	options, err := e.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	for _, o := range options {
		if o.Selected != (o.DeviceID == "cam-b") {
			t.Errorf("Option %s selected=%v", o.DeviceID, o.Selected)
		}
	}
}

func TestEnumerator_PreferenceErrorIsIgnored(t *testing.T) {
	prefs := newMemPrefs()
	prefs.err = errors.New("disk gone")
	e := NewEnumerator(&fakePlatform{devices: testDevices()}, prefs, logger.NewNop())

	options, err := e.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, o := range options {
		if o.Selected {
			t.Errorf("Expected no selection, %s is selected", o.DeviceID)
		}
	}
}

func TestEnumerator_PropagatesPlatformError(t *testing.T) {
	e := NewEnumerator(&fakePlatform{enumErr: errors.New("permission denied")}, nil, logger.NewNop())

	if _, err := e.List(context.Background()); err == nil {
		t.Error("Expected enumeration error")
	}
}

func TestCaptureSession_UsesFixedConstraints(t *testing.T) {
	platform := &fakePlatform{devices: testDevices()}
	sink := NewVideoSink(logger.NewNop())
	defaults := Constraints{FacingMode: "environment", MaxWidth: 1920, MaxHeight: 1080, IdealAspectRatio: 1.0}
	capture := NewCaptureSession(platform, sink, defaults, logger.NewNop())
	defer capture.Close()

	if _, err := capture.Open(context.Background(), "cam-c"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	want := defaults
	want.DeviceID = "cam-c"
	if len(platform.requests) != 1 || platform.requests[0] != want {
		t.Errorf("Expected request %+v, got %+v", want, platform.requests)
	}
	if sink.ActiveDeviceID() != "cam-c" {
		t.Errorf("Expected sink stream from cam-c, got %q", sink.ActiveDeviceID())
	}
}

func TestCaptureSession_OpenFailureLeavesSinkDetached(t *testing.T) {
	platform := &fakePlatform{openErr: errors.New("NotAllowedError")}
	sink := NewVideoSink(logger.NewNop())
	capture := NewCaptureSession(platform, sink, Constraints{}, logger.NewNop())

	if _, err := capture.Open(context.Background(), "cam-a"); err == nil {
		t.Fatal("Expected open error")
	}
	if sink.ActiveDeviceID() != "" {
		t.Errorf("Expected no active stream, got %q", sink.ActiveDeviceID())
	}
}

func TestCaptureSession_ProbeStopsStream(t *testing.T) {
	platform := &fakePlatform{devices: testDevices()}
	capture := NewCaptureSession(platform, NewVideoSink(logger.NewNop()), Constraints{MaxWidth: 1920}, logger.NewNop())

	if err := capture.Probe(context.Background()); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if platform.requests[0] != (Constraints{}) {
		t.Errorf("Expected generic request, got %+v", platform.requests[0])
	}
	if !platform.streams[0].isStopped() {
		t.Error("Expected probe stream to be stopped")
	}
}

func TestVideoSink_LoadedAfterFirstFrame(t *testing.T) {
	sink := NewVideoSink(logger.NewNop())
	clock := time.Unix(1000, 0)
	sink.now = func() time.Time { return clock }

	stream := newFakeStream("s1", "cam-a")
	loaded := sink.Attach(stream)
	defer sink.Detach()

	if _, _, ok := sink.CurrentFrame(); ok {
		t.Fatal("Expected no frame before the first decode")
	}

	stream.frames <- image.NewRGBA(image.Rect(0, 0, 4, 4))
	waitClosed(t, loaded, "loaded signal")

	_, currentTime, ok := sink.CurrentFrame()
	if !ok || currentTime != 0 {
		t.Errorf("Expected first frame at 0s, got %v ok=%v", currentTime, ok)
	}
}

func TestVideoSink_AttachStopsPreviousStream(t *testing.T) {
	sink := NewVideoSink(logger.NewNop())
	first := newFakeStream("s1", "cam-a")
	second := newFakeStream("s2", "cam-b")

	sink.Attach(first)
	sink.Attach(second)
	defer sink.Detach()

	if !first.isStopped() {
		t.Error("Expected previous stream to be stopped")
	}
	if second.isStopped() {
		t.Error("New stream should still be running")
	}
	if sink.ActiveDeviceID() != "cam-b" {
		t.Errorf("Expected cam-b active, got %q", sink.ActiveDeviceID())
	}
}

func TestVideoSink_StreamFailureDetachesAndNotifies(t *testing.T) {
	sink := NewVideoSink(logger.NewNop())
	ended := make(chan string, 1)
	sink.OnEnded(func(stream Stream, err error) { ended <- stream.ID() })

	stream := newFakeStream("s1", "cam-a")
	loaded := sink.Attach(stream)
	stream.frames <- image.NewRGBA(image.Rect(0, 0, 4, 4))
	waitClosed(t, loaded, "loaded signal")

	stream.failures <- errors.New("device unplugged")

	select {
	case id := <-ended:
		if id != "s1" {
			t.Errorf("Expected end of s1, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the ended callback")
	}
	if got := sink.ActiveDeviceID(); got != "" {
		t.Errorf("Expected sink to be detached, got %q", got)
	}
	if _, _, ok := sink.CurrentFrame(); ok {
		t.Error("Expected no frame after the stream ended")
	}
	if !stream.isStopped() {
		t.Error("Expected failed stream to be stopped")
	}
	sink.Detach()
}

func TestVideoSink_DetachDoesNotNotify(t *testing.T) {
	sink := NewVideoSink(logger.NewNop())
	ended := make(chan string, 1)
	sink.OnEnded(func(stream Stream, err error) { ended <- stream.ID() })

	sink.Attach(newFakeStream("s1", "cam-a"))
	sink.Detach()

	select {
	case id := <-ended:
		t.Errorf("Detach should not report %s as ended", id)
	case <-time.After(100 * time.Millisecond):
	}
}
