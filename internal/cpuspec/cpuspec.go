// Package cpuspec picks an inference thread count from the host CPU.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
	LogicalCores     int
}

var (
	intelHybridRe = regexp.MustCompile(`core.*i[3579]-(1[234]\d00)`)
	intelUltraRe  = regexp.MustCompile(`core.*ultra\s+[579]\s+(?:processor\s+)?(\d{3})`)
	appleRe       = regexp.MustCompile(`apple\s+(m[1-4](?:\s+(?:pro|max|ultra))?)`)
)

// performance core counts for hybrid parts, keyed by model family
var (
	intelPCores = map[string]int{
		"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
		"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
		"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
	}
	intelUltraPCores = map[string]int{"285": 8, "265": 8, "255": 8, "235": 6, "225": 4}
	applePCores      = map[string]int{
		"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
		"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
		"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
		"m4": 6, "m4 pro": 8, "m4 max": 12,
	}
)

// GetCPUSpec returns CPU specifications including the number of performance cores
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		PerformanceCores: performanceCores(cpuid.CPU.BrandName),
		LogicalCores:     cpuid.CPU.LogicalCores,
	}
}

// GetOptimalThreadCount returns the recommended number of inference threads.
// Hybrid CPUs use their performance cores only.
func (c CPUSpec) GetOptimalThreadCount() int {
	available := runtime.NumCPU()
	if c.PerformanceCores > 0 {
		return min(c.PerformanceCores, available)
	}
	if c.LogicalCores > 0 {
		return min(c.LogicalCores, available)
	}
	return available
}

func performanceCores(brandName string) int {
	brand := strings.ToLower(brandName)
	if m := intelHybridRe.FindStringSubmatch(brand); m != nil {
		return intelPCores[m[1]]
	}
	if m := intelUltraRe.FindStringSubmatch(brand); m != nil {
		return intelUltraPCores[m[1]]
	}
	if m := appleRe.FindStringSubmatch(brand); m != nil {
		return applePCores[strings.Join(strings.Fields(m[1]), " ")]
	}
	return 0
}
