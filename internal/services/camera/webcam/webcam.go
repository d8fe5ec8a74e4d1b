// Package webcam implements camera.Platform on top of the pion/mediadevices driver manager.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/models"
	"webcamdetector/internal/services/camera"

	"github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"golang.org/x/image/draw"
)

var ErrDeviceBusy = errors.New("every matching camera is already in use")

// Platform enumerates and opens local video recorders.
type Platform struct {
	mu      sync.Mutex
	streams atomic.Uint64
	logger  *logger.Logger
}

func NewPlatform(logger *logger.Logger) *Platform {
	return &Platform{logger: logger}
}

func (p *Platform) videoDrivers() []driver.Driver {
	// Initialize rescans the OS so cameras plugged in after startup show up.
	mediadevicescamera.Initialize()
	return driver.GetManager().Query(driver.FilterVideoRecorder())
}

// deviceID is the stable part of a driver label (the device path on Linux).
func deviceID(info driver.Info) string {
	return strings.Split(info.Label, mediadevicescamera.LabelSeparator)[0]
}

func deviceName(info driver.Info) string {
	return strings.Split(info.Name, mediadevicescamera.LabelSeparator)[0]
}

// EnumerateDevices lists the video recorders known to the driver manager.
func (p *Platform) EnumerateDevices(ctx context.Context) ([]models.MediaDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drivers := p.videoDrivers()
	devices := make([]models.MediaDevice, 0, len(drivers))
	for _, d := range drivers {
		info := d.Info()
		devices = append(devices, models.MediaDevice{
			DeviceID: deviceID(info),
			Kind:     models.DeviceKindVideoInput,
			Label:    deviceName(info),
		})
	}
	return devices, nil
}

// GetUserMedia opens the requested camera, or the first free one when the id is empty or unknown.
func (p *Platform) GetUserMedia(ctx context.Context, constraints camera.Constraints) (camera.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drivers := p.videoDrivers()
	if len(drivers) == 0 {
		return nil, camera.ErrNoDevices
	}

	candidates := make([]candidate, len(drivers))
	for i, d := range drivers {
		candidates[i] = candidate{
			deviceID: deviceID(d.Info()),
			running:  d.Status() == driver.StateRunning,
		}
	}

	index, err := pickDevice(candidates, constraints.DeviceID)
	if err != nil {
		return nil, err
	}
	d := drivers[index]

	if constraints.DeviceID != "" && candidates[index].deviceID != constraints.DeviceID {
		p.logger.Warning("Camera %s not available, falling back to %s", constraints.DeviceID, candidates[index].deviceID)
	}

	if d.Status() == driver.StateClosed {
		if err := d.Open(); err != nil {
			return nil, fmt.Errorf("failed to open driver %s: %w", d.Info().Label, err)
		}
	}

	mode, err := selectMode(d.Properties(), constraints)
	if err != nil {
		d.Close()
		return nil, err
	}

	recorder, ok := d.(driver.VideoRecorder)
	if !ok {
		d.Close()
		return nil, fmt.Errorf("driver %s cannot record video", d.Info().Label)
	}

	reader, err := recorder.VideoRecord(mode)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start recording on %s: %w", d.Info().Label, err)
	}

	p.logger.Debug("Camera %s recording %dx%d %s", candidates[index].deviceID, mode.Width, mode.Height, mode.FrameFormat)

	return &stream{
		id:       fmt.Sprintf("stream-%d", p.streams.Add(1)),
		deviceID: candidates[index].deviceID,
		driver:   d,
		reader:   reader,
	}, nil
}

type candidate struct {
	deviceID string
	running  bool
}

// pickDevice prefers wanted, then the first device that is not recording.
func pickDevice(candidates []candidate, wanted string) (int, error) {
	if wanted != "" {
		for i, c := range candidates {
			if c.deviceID == wanted && !c.running {
				return i, nil
			}
		}
	}
	for i, c := range candidates {
		if !c.running {
			return i, nil
		}
	}
	return -1, ErrDeviceBusy
}

// selectMode picks the mode within the size limits closest to the ideal
// aspect ratio, larger modes winning ties.
func selectMode(modes []prop.Media, constraints camera.Constraints) (prop.Media, error) {
	best := -1
	bestDistance := math.Inf(1)

	for i, m := range modes {
		if m.Width <= 0 || m.Height <= 0 {
			continue
		}
		if constraints.MaxWidth > 0 && m.Width > constraints.MaxWidth {
			continue
		}
		if constraints.MaxHeight > 0 && m.Height > constraints.MaxHeight {
			continue
		}

		distance := 0.0
		if constraints.IdealAspectRatio > 0 {
			ratio := float64(m.Width) / float64(m.Height)
			distance = math.Abs(ratio-constraints.IdealAspectRatio) / constraints.IdealAspectRatio
		}

		if distance < bestDistance ||
			(distance == bestDistance && m.Width*m.Height > modes[best].Width*modes[best].Height) {
			best = i
			bestDistance = distance
		}
	}

	if best < 0 {
		return prop.Media{}, fmt.Errorf("no camera mode within %dx%d", constraints.MaxWidth, constraints.MaxHeight)
	}
	return modes[best], nil
}

type stream struct {
	id       string
	deviceID string
	driver   driver.Driver
	reader   video.Reader

	stopOnce sync.Once
	stopped  atomic.Bool
	stopErr  error
}

func (s *stream) ID() string       { return s.id }
func (s *stream) DeviceID() string { return s.deviceID }

// ReadFrame copies the driver frame so the driver buffer can be released right away.
func (s *stream) ReadFrame() (image.Image, error) {
	if s.stopped.Load() {
		return nil, camera.ErrStreamStopped
	}

	img, release, err := s.reader.Read()
	if err != nil {
		if release != nil {
			release()
		}
		if s.stopped.Load() {
			return nil, camera.ErrStreamStopped
		}
		return nil, fmt.Errorf("failed to read frame from %s: %w", s.deviceID, err)
	}

	frame := image.NewRGBA(img.Bounds())
	draw.Draw(frame, frame.Bounds(), img, img.Bounds().Min, draw.Src)
	if release != nil {
		release()
	}
	return frame, nil
}

// Stop closes the driver, which also ends a blocked ReadFrame.
func (s *stream) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.stopErr = s.driver.Close()
	})
	return s.stopErr
}
