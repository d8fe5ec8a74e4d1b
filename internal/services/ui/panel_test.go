package ui

import (
	"testing"
	"webcamdetector/internal/models"
)

func TestPanel_InitialState(t *testing.T) {
	p := NewPanel("0.35")
	s := p.Snapshot()

	if !s.Loading {
		t.Error("Expected loading indicator visible")
	}
	if s.ThresholdInput != "0.35" || s.ThresholdLabel != "0.35" {
		t.Errorf("Unexpected threshold state %+v", s)
	}
	if s.Cameras == nil || len(s.Cameras) != 0 {
		t.Errorf("Expected empty camera list, got %v", s.Cameras)
	}

	p.HideLoading()
	if p.Snapshot().Loading {
		t.Error("Expected loading indicator hidden")
	}
}

func TestPanel_ThresholdLabelIsRaw(t *testing.T) {
	p := NewPanel("0.35")
	p.SetThreshold("0.7abc")

	if got := p.Snapshot().ThresholdLabel; got != "0.7abc" {
		t.Errorf("Expected raw label 0.7abc, got %q", got)
	}
}

func TestPanel_SelectCamera(t *testing.T) {
	p := NewPanel("0.35")
	p.SetCameras([]models.CameraOption{
		{Label: "A", DeviceID: "a", Selected: true},
		{Label: "B", DeviceID: "b"},
	})

	p.SelectCamera("b")

	for _, c := range p.Snapshot().Cameras {
		if c.Selected != (c.DeviceID == "b") {
			t.Errorf("Camera %s selected=%v", c.DeviceID, c.Selected)
		}
	}
}

func TestPanel_SnapshotIsCopy(t *testing.T) {
	p := NewPanel("0.35")
	p.SetCameras([]models.CameraOption{{Label: "A", DeviceID: "a"}})

	s := p.Snapshot()
	s.Cameras[0].Label = "changed"

	if p.Snapshot().Cameras[0].Label != "A" {
		t.Error("Snapshot should not alias panel state")
	}

	p.ClearCameras()
	if len(p.Snapshot().Cameras) != 0 {
		t.Error("Expected cleared camera list")
	}
}
