package main

import (
	"net/http"
	"time"
)

// Probe 每轮迭代中的一次探测
type Probe int

const (
	ProbeNoCache    Probe = iota // 无缓存站点
	ProbeCache                   // 缓存站点，期望 HIT
	ProbeForcedMiss              // 缓存站点 + 随机参数，强制 MISS
)

// Probes 每轮迭代的执行顺序
var Probes = []Probe{ProbeNoCache, ProbeCache, ProbeForcedMiss}

func (p Probe) String() string {
	switch p {
	case ProbeNoCache:
		return "No Cache"
	case ProbeCache:
		return "Cache"
	case ProbeForcedMiss:
		return "Cache MISS"
	default:
		return "Unknown"
	}
}

// CheckName 状态码检查的名称
func (p Probe) CheckName() string {
	return p.String() + ": status 200"
}

// 单次请求的测量结果
type RequestResult struct {
	Probe       Probe
	VU          int           // 虚拟用户编号
	Iteration   int           // VU 内迭代序号
	StatusCode  int           // HTTP状态码
	Duration    time.Duration // 发送 + 等待 + 接收（不含建连）
	TTFB        time.Duration // Time To First Byte
	Reused      bool          // 是否复用连接
	ActualProto string        // 实际使用的协议版本
	Headers     http.Header   // 响应头（仅用于缓存判定）
	Error       string        // 错误信息（如果有）
}

// DurationMs 请求耗时（毫秒）
func (r RequestResult) DurationMs() float64 {
	return float64(r.Duration.Microseconds()) / 1000.0
}

// OK 是否为成功请求（HTTP 200）
func (r RequestResult) OK() bool {
	return r.Error == "" && r.StatusCode == http.StatusOK
}
