package engine

import "fmt"

// DType is the numeric precision the model collaborators run inference at.
type DType string

const (
	DTypeBF16 DType = "bf16"
	DTypeF16  DType = "f16"
	DTypeF32  DType = "f32"
)

// AcceleratorCaps describes the GPU this instance is scheduled onto, enough
// to decide whether a bf16 checkpoint needs a fp16 fallback. Pre-Ampere
// parts (compute capability major < 8) don't implement bf16 tensor cores.
type AcceleratorCaps struct {
	ComputeCapabilityMajor int
	ComputeCapabilityMinor int
}

const ampereMajor = 8

// IsPreAmpere reports whether this accelerator predates Ampere.
func (c AcceleratorCaps) IsPreAmpere() bool { return c.ComputeCapabilityMajor < ampereMajor }

// ResolveComputeDType picks the precision to run at: an explicit override
// always wins, otherwise bf16 is preferred and silently downgraded to f16
// on pre-Ampere hardware, mirroring the gpu-check/sm75-prep tooling's
// pre-Ampere fp16-conversion path for the same checkpoints.
func ResolveComputeDType(override string, caps AcceleratorCaps) (DType, error) {
	switch DType(override) {
	case DTypeBF16, DTypeF16, DTypeF32:
		return DType(override), nil
	case "":
		if caps.IsPreAmpere() {
			return DTypeF16, nil
		}
		return DTypeBF16, nil
	default:
		return "", fmt.Errorf("engine: unknown dtype override %q", override)
	}
}
