package apdex

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidThresholds T/F 不满足 0 < T < F
var ErrInvalidThresholds = errors.New("apdex: thresholds must satisfy 0 < T < F")

// Thresholds Apdex 阈值（毫秒）
type Thresholds struct {
	T float64 `json:"apdex_t"` // 满意上限
	F float64 `json:"apdex_f"` // 可容忍上限
}

// DefaultThresholds T=500ms, F=1500ms
var DefaultThresholds = Thresholds{T: 500, F: 1500}

// Validate 校验阈值
func (t Thresholds) Validate() error {
	if math.IsNaN(t.T) || math.IsNaN(t.F) || t.T <= 0 || t.F <= t.T || math.IsInf(t.F, 0) {
		return fmt.Errorf("%w (T=%v, F=%v)", ErrInvalidThresholds, t.T, t.F)
	}
	return nil
}

// Zone Apdex 分区
type Zone int

const (
	Satisfied Zone = iota
	Tolerating
	Frustrated
)

func (z Zone) String() string {
	switch z {
	case Satisfied:
		return "satisfied"
	case Tolerating:
		return "tolerating"
	default:
		return "frustrated"
	}
}

// Zone 返回延迟所在分区：L<=T 满意，T<L<=F 可容忍，其余（含 NaN）失望
func (t Thresholds) Zone(latencyMs float64) Zone {
	switch {
	case latencyMs <= t.T:
		return Satisfied
	case latencyMs <= t.F:
		return Tolerating
	default:
		return Frustrated
	}
}

// Score 标准 Apdex 公式，可容忍按半权计算
func Score(satisfied, tolerating, frustrated uint64) float64 {
	total := satisfied + tolerating + frustrated
	if total == 0 {
		return 0
	}
	return (float64(satisfied) + float64(tolerating)/2) / float64(total)
}
