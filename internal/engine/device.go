package engine

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"subgen/internal/domain"
	"subgen/internal/execx"
)

var (
	deviceOnce sync.Once
	deviceKind domain.DeviceKind
)

// detectDeviceOnce probes GPU availability exactly once per process.
// The result is stable for the process lifetime and never re-probed.
func detectDeviceOnce(log *slog.Logger) domain.DeviceKind {
	deviceOnce.Do(func() {
		deviceKind = probeDevice(exec.LookPath, &execx.ExecRunner{}, log)
	})
	return deviceKind
}

// DetectDevice reports the inference device the engine will select.
// It shares the process-wide probe result with Initialize.
func DetectDevice(log *slog.Logger) domain.DeviceKind {
	return detectDeviceOnce(log)
}

// probeDevice checks for a usable NVIDIA GPU via nvidia-smi.
func probeDevice(lookPath func(string) (string, error), runner execx.Runner, log *slog.Logger) domain.DeviceKind {
	if _, err := lookPath("nvidia-smi"); err != nil {
		log.Info("no GPU management tool on PATH, selecting CPU inference")
		return domain.DeviceCPU
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := runner.Run(ctx, "nvidia-smi", "-L")
	if err != nil || strings.TrimSpace(result.Stdout) == "" {
		log.Info("GPU probe failed, selecting CPU inference", "exit_code", result.ExitCode)
		return domain.DeviceCPU
	}

	first := strings.SplitN(strings.TrimSpace(result.Stdout), "\n", 2)[0]
	log.Info("GPU detected, selecting GPU inference", "gpu", first)
	return domain.DeviceGPU
}
