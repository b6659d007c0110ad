package domain

// DeviceKind names the compute device used for inference.
type DeviceKind string

const (
	DeviceGPU DeviceKind = "gpu"
	DeviceCPU DeviceKind = "cpu"
)

// DeviceProfile is the process-wide inference configuration: selected
// device, resolved model, and the cache directory holding its weights.
// It is initialized once per process and reused across jobs.
type DeviceProfile struct {
	Device    DeviceKind `json:"device"`
	ModelID   string     `json:"modelId"`
	ModelPath string     `json:"modelPath"`
	CacheDir  string     `json:"cacheDir"`
}
