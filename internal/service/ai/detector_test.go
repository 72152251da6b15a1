package ai

import (
	"errors"
	"path/filepath"
	"testing"

	"falldetector/internal/config"
	"falldetector/internal/dto"
	"falldetector/internal/logger"

	"gocv.io/x/gocv"
)

func TestNewDetectorService_MissingModel(t *testing.T) {
	cfg := config.Default()
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")

	svc := NewDetectorService(cfg, logger.NewDiscard())
	defer svc.Close()

	if svc.Loaded() {
		t.Error("Service should stay unloaded without a model file")
	}
	if svc.ModelPath() != cfg.ModelPath {
		t.Errorf("ModelPath = %q, expected %q", svc.ModelPath(), cfg.ModelPath)
	}
	if err := svc.Reload(); err == nil {
		t.Error("Reload should fail while the model file is missing")
	}

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if _, _, err := svc.DetectObjects(frame); !errors.Is(err, dto.ErrModelNotLoaded) {
		t.Errorf("Expected ErrModelNotLoaded, got %v", err)
	}
}
