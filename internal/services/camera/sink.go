package camera

import (
	"errors"
	"image"
	"sync"
	"time"
	"webcamdetector/internal/logger"
)

// VideoSink holds the active stream and its most recent decoded frame.
type VideoSink struct {
	mu          sync.RWMutex
	stream      Stream
	frame       image.Image
	currentTime float64 // Seconds since the stream's first frame
	hasFrame    bool
	pumpDone    chan struct{}
	onEnded     func(stream Stream, err error)

	now    func() time.Time
	logger *logger.Logger
}

func NewVideoSink(logger *logger.Logger) *VideoSink {
	return &VideoSink{
		now:    time.Now,
		logger: logger,
	}
}

// Attach replaces the current stream with stream, stopping the previous one.
// The returned channel is closed when the first frame of stream is decoded.
func (v *VideoSink) Attach(stream Stream) <-chan struct{} {
	v.Detach()

	loaded := make(chan struct{})
	done := make(chan struct{})

	v.mu.Lock()
	v.stream = stream
	v.frame = nil
	v.hasFrame = false
	v.currentTime = 0
	v.pumpDone = done
	v.mu.Unlock()

	go v.pump(stream, loaded, done)

	v.logger.Info("Stream %s from device %s attached", stream.ID(), stream.DeviceID())
	return loaded
}

// OnEnded sets fn to run when an attached stream stops delivering frames
// without being detached. fn runs on its own goroutine.
func (v *VideoSink) OnEnded(fn func(stream Stream, err error)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onEnded = fn
}

// Detach stops the current stream, if any, and waits for its reader to exit.
func (v *VideoSink) Detach() {
	v.mu.Lock()
	stream := v.stream
	done := v.pumpDone
	v.stream = nil
	v.pumpDone = nil
	v.hasFrame = false
	v.frame = nil
	v.mu.Unlock()

	if stream == nil {
		return
	}

	if err := stream.Stop(); err != nil {
		v.logger.Warning("Error stopping stream %s: %v", stream.ID(), err)
	}
	<-done
	v.logger.Info("Stream %s from device %s detached", stream.ID(), stream.DeviceID())
}

func (v *VideoSink) pump(stream Stream, loaded chan struct{}, done chan struct{}) {
	defer close(done)

	var firstFrameAt time.Time
	for {
		img, err := stream.ReadFrame()
		if err != nil {
			v.ended(stream, err)
			return
		}

		now := v.now()
		first := firstFrameAt.IsZero()
		if first {
			firstFrameAt = now
		}

		v.mu.Lock()
		if v.stream != stream {
			v.mu.Unlock()
			return
		}
		v.frame = img
		v.hasFrame = true
		v.currentTime = now.Sub(firstFrameAt).Seconds()
		v.mu.Unlock()

		if first {
			close(loaded)
		}
	}
}

// ended releases stream when it failed while still attached. A stream
// stopped by Detach is already gone from the sink and is left alone.
func (v *VideoSink) ended(stream Stream, err error) {
	v.mu.Lock()
	if v.stream != stream {
		v.mu.Unlock()
		return
	}
	v.stream = nil
	v.pumpDone = nil
	v.frame = nil
	v.hasFrame = false
	onEnded := v.onEnded
	v.mu.Unlock()

	if errors.Is(err, ErrStreamStopped) {
		v.logger.Warning("Stream %s from device %s stopped unexpectedly", stream.ID(), stream.DeviceID())
	} else {
		v.logger.Error("Stream %s from device %s ended: %v", stream.ID(), stream.DeviceID(), err)
	}
	if stopErr := stream.Stop(); stopErr != nil && !errors.Is(stopErr, ErrStreamStopped) {
		v.logger.Warning("Error stopping stream %s: %v", stream.ID(), stopErr)
	}
	if onEnded != nil {
		go onEnded(stream, err)
	}
}

// CurrentFrame returns the latest frame and its media time in seconds.
// ok is false until the first frame of the attached stream is decoded.
func (v *VideoSink) CurrentFrame() (img image.Image, currentTime float64, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.frame, v.currentTime, v.hasFrame
}

// ActiveDeviceID returns the device id of the attached stream, empty when detached.
func (v *VideoSink) ActiveDeviceID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.stream == nil {
		return ""
	}
	return v.stream.DeviceID()
}

// ActiveStreamID returns the id of the attached stream, empty when detached.
func (v *VideoSink) ActiveStreamID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.stream == nil {
		return ""
	}
	return v.stream.ID()
}
