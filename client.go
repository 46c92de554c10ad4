package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// ===============================
// HTTP 客户端
// ===============================

// cacheBustParam 强制 MISS 使用的查询参数
const cacheBustParam = "_cache_bust"

// ClientOptions 客户端参数
type ClientOptions struct {
	Protocol           Protocol
	PinIP              string // 非空时所有连接都指向该IP
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxConns           int // 每个 host 的最大空闲连接
}

// NewHTTPClient 按协议创建客户端
func NewHTTPClient(opts ClientOptions) *http.Client {
	switch opts.Protocol {
	case HTTP3:
		return createHTTP3Client(opts)
	case HTTP1:
		return createTCPClient(opts, false)
	default:
		return createTCPClient(opts, true)
	}
}

// 创建 HTTP/1.1 或 HTTP/2 客户端
func createTCPClient(opts ClientOptions, h2 bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
	}

	nextProtos := []string{"http/1.1"}
	if h2 {
		nextProtos = []string{"h2", "http/1.1"}
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 100
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, pinnedAddr(opts.PinIP, addr))
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
			NextProtos:         nextProtos,
		},
		ForceAttemptHTTP2:   h2,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
}

// 创建 HTTP/3 客户端
func createHTTP3Client(opts ClientOptions) *http.Client {
	transport := &http3.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
		Dial: func(ctx context.Context, addr string, tlsCfg *tls.Config, cfg *quic.Config) (*quic.Conn, error) {
			udpAddr, err := net.ResolveUDPAddr("udp", pinnedAddr(opts.PinIP, addr))
			if err != nil {
				return nil, fmt.Errorf("解析UDP地址失败: %w", err)
			}
			udpConn, err := net.ListenUDP("udp", nil)
			if err != nil {
				return nil, fmt.Errorf("创建UDP连接失败: %w", err)
			}
			conn, err := quic.Dial(ctx, udpConn, udpAddr, tlsCfg, cfg)
			if err != nil {
				udpConn.Close()
				return nil, err
			}
			return conn, nil
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
}

// pinnedAddr 把目标地址替换为指定IP，端口保持不变
func pinnedAddr(ip, addr string) string {
	if ip == "" {
		return addr
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		port = "443"
	}
	return net.JoinHostPort(ip, port)
}

// cacheBustURL 追加唯一查询参数，保证请求不会命中任何已有缓存
func cacheBustURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("解析URL失败: %w", err)
	}
	q := u.Query()
	q.Set(cacheBustParam, uuid.NewString())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ===============================
// 测量逻辑
// ===============================

// measureRequest 执行单次 GET 并测量耗时。
// Duration 从拿到连接开始计时，到响应体读取完毕为止，不包含 DNS/建连/TLS。
func measureRequest(ctx context.Context, client *http.Client, target string) RequestResult {
	result := RequestResult{}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Error = fmt.Sprintf("创建请求失败: %v", err)
		return result
	}
	req.Header.Set("User-Agent", "cache-apdex-tester/1.0")

	var start, connAt, firstByteAt time.Time
	var reused bool

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			connAt = time.Now()
			reused = info.Reused
		},
		GotFirstResponseByte: func() {
			firstByteAt = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start = time.Now()
	resp, err := client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("请求失败: %v", err)
		return result
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		result.Error = fmt.Sprintf("读取响应失败: %v", err)
	}
	end := time.Now()

	// HTTP/3 传输层不一定触发 GotConn，退化为从发起请求开始计时
	if connAt.IsZero() {
		connAt = start
	}
	if !firstByteAt.IsZero() {
		result.TTFB = firstByteAt.Sub(start)
	}

	result.Duration = end.Sub(connAt)
	result.StatusCode = resp.StatusCode
	result.Reused = reused
	result.ActualProto = resp.Proto
	result.Headers = resp.Header

	return result
}
