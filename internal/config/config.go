package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultBaseURL 是远端音频 CDN 的默认地址（128kbps 子树）。
	DefaultBaseURL = "https://cdn.islamic.network/quran/audio/128"
	// DefaultConcurrency 是全 run 共享的并发上限默认值。
	DefaultConcurrency = 8
	// DefaultRequestDelay 是每次网络请求前的固定礼貌间隔。
	DefaultRequestDelay = 100 * time.Millisecond
	// DefaultTimeout 是单请求总超时（含 body 读取）。
	DefaultTimeout = 30 * time.Second
	// DefaultPauseThreshold 是触发降速停顿的章内失败率阈值。
	DefaultPauseThreshold = 0.5
	// DefaultPause 是降速停顿的时长。
	DefaultPause = 5 * time.Second
)

// DefaultReciters 是内置的 reciter 列表（CDN 全集覆盖已验证的两位）。
func DefaultReciters() []string {
	return []string{"ar.alafasy", "ar.husary"}
}

// CLIArgs 只包含 CLI 暴露的入口，并保留"是否显式指定"的信息，
// 保证覆盖优先级可实现（CLI > 配置文件 > 默认值）。
type CLIArgs struct {
	Path string

	Reciters []string // --reciter 可重复；非空即视为显式指定

	Concurrency    int
	ConcurrencySet bool

	BaseURL    string
	BaseURLSet bool
}

// FileConfig 对应 qam.json 的解析结构。
// 指针字段用于区分"未设置"与"显式设为零值"（例如 request_delay_ms=0）。
type FileConfig struct {
	Path           string       `json:"path"`
	BaseURL        string       `json:"base_url"`
	Reciters       []string     `json:"reciters"`
	Concurrency    int          `json:"concurrency"`
	RequestDelayMS *int         `json:"request_delay_ms"`
	TimeoutSec     int          `json:"timeout_sec"`
	PauseThreshold *float64     `json:"pause_threshold"`
	PauseSec       *int         `json:"pause_sec"`
	Proxy          *ProxyConfig `json:"proxy"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
// （实现层直接消费，不再做二次默认/优先级判断；run 期间不可变）。
type EffectiveConfig struct {
	Root string

	BaseURL  string
	Reciters []string

	Concurrency  int
	RequestDelay time.Duration
	Timeout      time.Duration

	PauseThreshold float64
	Pause          time.Duration

	ProxyURL string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/qam.json（可选）
// 2) CLI 未提供 path：尝试读取 <cwd>/qam.json（可选）；
//    配置也未给 path 时，镜像根默认为 <cwd>/mirror（保证无参可运行）
//
// 覆盖优先级（固定）：
// - path：CLI path > config path > <cwd>/mirror
// - reciters / base_url / concurrency：CLI > config > 默认
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath = filepath.Join(absPath, "qam.json")
		fc, _, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	cfgPath = filepath.Join(cwdAbs, "qam.json")
	fc, _, err = readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	absPath := filepath.Join(cwdAbs, "mirror")
	if strings.TrimSpace(fc.Path) != "" {
		absPath = absCleanFrom(cwdAbs, fc.Path)
	}
	return merge(absPath, cli, fc, cfgPath)
}

var reciterNameRE = regexp.MustCompile(`^[a-z]{2,3}\.[a-z][a-z0-9]*$`)

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// reciters：CLI > config > 默认
	reciters := DefaultReciters()
	if len(cli.Reciters) > 0 {
		reciters = append([]string(nil), cli.Reciters...)
	} else if len(fc.Reciters) > 0 {
		reciters = append([]string(nil), fc.Reciters...)
	}
	for _, r := range reciters {
		if !reciterNameRE.MatchString(r) {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("非法 reciter：%q（期望形如 ar.alafasy）", r)}
		}
	}
	if dup := firstDuplicate(reciters); dup != "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("重复的 reciter：%q", dup)}
	}

	// base_url：CLI > config > 默认
	baseURL := DefaultBaseURL
	if cli.BaseURLSet {
		baseURL = cli.BaseURL
	} else if strings.TrimSpace(fc.BaseURL) != "" {
		baseURL = fc.BaseURL
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if err := validateHTTPURL("base_url", baseURL); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// concurrency：CLI > config > 默认；范围 [1,32]，超出截断。
	concurrency := DefaultConcurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	} else if fc.Concurrency != 0 {
		concurrency = fc.Concurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	delay := DefaultRequestDelay
	if fc.RequestDelayMS != nil {
		if *fc.RequestDelayMS < 0 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("request_delay_ms 不能为负：%d", *fc.RequestDelayMS)}
		}
		delay = time.Duration(*fc.RequestDelayMS) * time.Millisecond
	}

	timeout := DefaultTimeout
	if fc.TimeoutSec != 0 {
		if fc.TimeoutSec < 1 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("timeout_sec 必须 >= 1：%d", fc.TimeoutSec)}
		}
		timeout = time.Duration(fc.TimeoutSec) * time.Second
	}

	threshold := DefaultPauseThreshold
	if fc.PauseThreshold != nil {
		threshold = *fc.PauseThreshold
		if threshold <= 0 || threshold > 1 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("pause_threshold 必须在 (0,1]：%v", threshold)}
		}
	}

	pause := DefaultPause
	if fc.PauseSec != nil {
		if *fc.PauseSec < 0 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("pause_sec 不能为负：%d", *fc.PauseSec)}
		}
		pause = time.Duration(*fc.PauseSec) * time.Second
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	return EffectiveConfig{
		Root:           absPath,
		BaseURL:        baseURL,
		Reciters:       reciters,
		Concurrency:    concurrency,
		RequestDelay:   delay,
		Timeout:        timeout,
		PauseThreshold: threshold,
		Pause:          pause,
		ProxyURL:       proxyURL,
	}, nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

func firstDuplicate(xs []string) string {
	seen := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			return x
		}
		seen[x] = struct{}{}
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
