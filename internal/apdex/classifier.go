package apdex

import (
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// Outcome 缓存探测结果
type Outcome int

const (
	Miss Outcome = iota
	Hit
)

func (o Outcome) String() string {
	if o == Hit {
		return "HIT"
	}
	return "MISS"
}

// signalRule 从响应头中提取缓存信号，ok=false 表示该规则未命中，交给下一条
type signalRule func(h http.Header) (o Outcome, ok bool)

// 按优先级排列，第一条给出结果的规则生效
var signalRules = []signalRule{
	cacheStatusRule,
	ageRule,
	xCacheRule,
}

// Classify 根据响应头判断是否命中缓存
//
// 规则顺序：X-Cache-Status（权威）> Age > X-Cache > 默认 MISS。
// 纯函数，任何输入都有确定结果。
func Classify(h http.Header) Outcome {
	for _, rule := range signalRules {
		if o, ok := rule(h); ok {
			return o
		}
	}
	return Miss
}

// X-Cache-Status 非空即为最终结果，空值视为不存在
func cacheStatusRule(h http.Header) (Outcome, bool) {
	v, ok := lookupHeader(h, "X-Cache-Status")
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return Miss, false
	}
	if strings.EqualFold(v, "hit") {
		return Hit, true
	}
	return Miss, true
}

// Age > 0 视为命中；解析失败或 <= 0 时视为不存在
func ageRule(h http.Header) (Outcome, bool) {
	v, ok := lookupHeader(h, "Age")
	if !ok {
		return Miss, false
	}
	age, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || age <= 0 {
		return Miss, false
	}
	return Hit, true
}

func xCacheRule(h http.Header) (Outcome, bool) {
	v, ok := lookupHeader(h, "X-Cache")
	if !ok || strings.TrimSpace(v) == "" {
		return Miss, false
	}
	if strings.Contains(strings.ToLower(v), "hit") {
		return Hit, true
	}
	return Miss, true
}

// lookupHeader 大小写不敏感地读取首个值。
// 手工构造的 http.Header 可能没有使用规范化的 key，所以规范 key 查不到时再逐个比较。
func lookupHeader(h http.Header, name string) (string, bool) {
	if vs, ok := h[textproto.CanonicalMIMEHeaderKey(name)]; ok && len(vs) > 0 {
		return vs[0], true
	}
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0], true
		}
	}
	return "", false
}
