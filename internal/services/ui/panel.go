package ui

import (
	"sync"
	"webcamdetector/internal/models"
)

// PanelState is the page state served to the browser.
type PanelState struct {
	Loading        bool                  `json:"loading"`
	ThresholdInput string                `json:"threshold_input"`
	ThresholdLabel string                `json:"threshold_label"`
	Cameras        []models.CameraOption `json:"cameras"`
	ActiveCamera   string                `json:"active_camera"`
	Streaming      bool                  `json:"streaming"`
}

// Panel holds the page elements the control handlers update.
type Panel struct {
	mu    sync.RWMutex
	state PanelState
}

// NewPanel starts with the loading indicator visible and the threshold shown as initial.
func NewPanel(initialThreshold string) *Panel {
	return &Panel{
		state: PanelState{
			Loading:        true,
			ThresholdInput: initialThreshold,
			ThresholdLabel: initialThreshold,
			Cameras:        []models.CameraOption{},
		},
	}
}

func (p *Panel) HideLoading() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Loading = false
}

// SetThreshold mirrors the raw input value into the input and its label.
func (p *Panel) SetThreshold(raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ThresholdInput = raw
	p.state.ThresholdLabel = raw
}

// ClearCameras empties the select list.
func (p *Panel) ClearCameras() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Cameras = []models.CameraOption{}
}

// SetCameras replaces the select list.
func (p *Panel) SetCameras(options []models.CameraOption) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Cameras = append([]models.CameraOption(nil), options...)
}

// SelectCamera moves the selected flag to deviceID.
func (p *Panel) SelectCamera(deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.state.Cameras {
		p.state.Cameras[i].Selected = p.state.Cameras[i].DeviceID == deviceID
	}
}

// SetStreaming records whether the video sink has a live stream and from which device.
func (p *Panel) SetStreaming(streaming bool, deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Streaming = streaming
	p.state.ActiveCamera = deviceID
}

// Snapshot returns a copy of the current state.
func (p *Panel) Snapshot() PanelState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state := p.state
	state.Cameras = append([]models.CameraOption{}, p.state.Cameras...)
	return state
}
