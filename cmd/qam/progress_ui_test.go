package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/QAM/internal/config"
	"github.com/John-Robertt/QAM/internal/domain"
)

func TestProgressUI_SurahLine(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)
	p.total = 10

	p.OnSurahDone(1, 5, domain.SurahResult{
		Reciter: "ar.alafasy", Surah: 1, Total: 7, Downloaded: 6, Skipped: 0, Failed: 1,
	}, 1200*time.Millisecond)

	out := buf.String()
	if !strings.Contains(out, "surah   1") || !strings.Contains(out, "FAIL") {
		t.Fatalf("章完成行不符合预期：%q", out)
	}
	if !strings.Contains(out, "downloaded=6 skipped=0 failed=1") {
		t.Fatalf("计数不符合预期：%q", out)
	}
}

func TestProgressUI_StartBanner(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)

	cat, err := domain.NewCatalog([]int{3, 2})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	p.OnStart(config.EffectiveConfig{
		Root:           "/tmp/mirror",
		BaseURL:        "https://cdn.example/audio/128",
		Reciters:       []string{"ar.alafasy", "ar.husary"},
		Concurrency:    8,
		RequestDelay:   100 * time.Millisecond,
		Timeout:        30 * time.Second,
		PauseThreshold: 0.5,
		Pause:          5 * time.Second,
	}, cat)
	// 停掉 keepalive goroutine，避免测试间泄漏输出。
	p.mu.Lock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
	p.mu.Unlock()

	out := buf.String()
	if !strings.Contains(out, "配置（生效）:") {
		t.Fatalf("缺少配置 banner：%q", out)
	}
	if !strings.Contains(out, "reciters: ar.alafasy, ar.husary") {
		t.Fatalf("reciter 列表不符合预期：%q", out)
	}
	if !strings.Contains(out, "计划总量: 10") {
		t.Fatalf("计划总量不符合预期：%q", out)
	}
	if p.total != 10 {
		t.Fatalf("total 不符合预期：%d", p.total)
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(3*time.Hour + 2*time.Minute + 5*time.Second); got != "03:02:05" {
		t.Fatalf("formatElapsed 不符合预期：%q", got)
	}
	if got := formatElapsed(-time.Second); got != "00:00:00" {
		t.Fatalf("负数应当归零：%q", got)
	}
}
