package httpx

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NewAudioClient 构造一次 run 共用的音频下载 HTTP client。
//
// 规则：
// - 连接池保持 keep-alive：同一 CDN 主机上的几千次 GET 必须复用连接
// - timeout 是单请求总超时（含 body 读取）；run 级别没有 deadline，
//   卡死由操作者中断并依赖幂等续传
// - proxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接，
//   代理池轮换依赖该行为）
//
// client 的连接池生命周期由调用方负责：run 结束（含失败/中断路径）
// 必须调用 client.CloseIdleConnections() 释放 socket。
func NewAudioClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	base := &http.Transport{
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Transport: base,
		Timeout:   timeout,
	}, nil
}
