package utils

import (
	"time"

	"github.com/shirou/gopsutil/cpu"
)

// CPUGate reports whether host CPU usage is at or below a ceiling.
type CPUGate func() (bool, float64)

func CheckCPUUsage(maxCPUUsage float64) (bool, float64) {
	usage, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(usage) == 0 {
		return true, 0
	}
	return usage[0] <= maxCPUUsage, usage[0]
}

func NewCPUGate(maxCPUUsage float64) CPUGate {
	return func() (bool, float64) {
		return CheckCPUUsage(maxCPUUsage)
	}
}
