package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/John-Robertt/QAM/internal/app/run"
	"github.com/John-Robertt/QAM/internal/config"
	"github.com/John-Robertt/QAM/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无章完成时也定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total      int
	done       int
	downloaded int
	skipped    int
	failed     int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, cat domain.Catalog) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.total = cat.TotalVerses() * len(eff.Reciters)

	fmt.Fprintf(p.w, "[%s] QAM run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  root: %s\n", eff.Root)
	fmt.Fprintf(p.w, "  base_url: %s\n", eff.BaseURL)
	fmt.Fprintf(p.w, "  reciters: %s\n", formatReciters(eff.Reciters))
	fmt.Fprintf(p.w, "  surahs: %d  verses: %d  计划总量: %d\n", cat.Surahs(), cat.TotalVerses(), p.total)
	fmt.Fprintf(p.w, "  concurrency: %d  request_delay: %s  timeout: %s\n", eff.Concurrency, eff.RequestDelay, eff.Timeout)
	fmt.Fprintf(p.w, "  pause: 失败率 > %.0f%% 时停顿 %s\n", eff.PauseThreshold*100, eff.Pause)
	if eff.ProxyURL != "" {
		fmt.Fprintf(p.w, "  proxy: on\n")
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if p.total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
	p.mu.Unlock()
}

func (p *progressUI) OnReciterStart(idx, total int, reciter string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "reciter %d/%d: %s\n", idx, total, reciter)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnSurahDone(idx, total int, res domain.SurahResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += res.Total
	p.downloaded += res.Downloaded
	p.skipped += res.Skipped
	p.failed += res.Failed

	status := "OK"
	if res.Failed > 0 {
		status = "FAIL"
	}
	fmt.Fprintf(p.w, "[%3d/%d] surah %3d (%3d 节) %s downloaded=%d skipped=%d failed=%d (%s)\n",
		idx, total, res.Surah, res.Total, status, res.Downloaded, res.Skipped, res.Failed, formatShortDuration(dur),
	)
	p.lastPrinted = time.Now()

	// 最后一章完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnCooldown(reciter string, surah int, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "失败过多（%s surah %d）：停顿 %s 后继续\n", reciter, surah, d)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnProgress(done, total, downloaded, skipped, failed int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "进度: done=%d/%d downloaded=%d skipped=%d failed=%d elapsed=%s\n",
		done, total, downloaded, skipped, failed, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d/%d downloaded=%d skipped=%d failed=%d elapsed=%s\n",
						p.done, p.total, p.downloaded, p.skipped, p.failed, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func formatReciters(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += ", "
		}
		out += x
	}
	return out
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
