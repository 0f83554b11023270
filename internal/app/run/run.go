package run

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/John-Robertt/QAM/internal/config"
	"github.com/John-Robertt/QAM/internal/domain"
	"github.com/John-Robertt/QAM/internal/fetch"
	"github.com/John-Robertt/QAM/internal/infra/httpx"
)

// Execute 执行一次完整的镜像同步并返回对外稳定的 RunReport。
//
// 错误语义：
// - 单节失败被完全吞在 fetch 层，只体现为计数与失败明细
// - 返回的 error 只代表会话级致命问题（例如 client 无法构造）；
//   此时 report 仍携带已累计的部分计数
// - ctx 取消：停止发起新的章，在途的节 resolve 后返回部分汇总
//   （Interrupted=true）；已落盘的文件对下一次续传依然有效
func Execute(ctx context.Context, eff config.EffectiveConfig, cat domain.Catalog, obs Observer) (domain.RunReport, error) {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff, cat)
	}

	rr := domain.RunReport{
		Root:      eff.Root,
		BaseURL:   eff.BaseURL,
		StartedAt: started,
		Items:     make([]domain.SurahResult, 0, cat.Surahs()*len(eff.Reciters)),
	}
	rr.Summary.Total = cat.TotalVerses() * len(eff.Reciters)

	client, err := httpx.NewAudioClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr, err
	}
	// 会话收尾必须覆盖所有退出路径（含中断），否则连接池泄漏。
	defer client.CloseIdleConnections()

	// 并发上限全 run 共享，不按章/reciter 重置。
	sem := semaphore.NewWeighted(int64(eff.Concurrency))
	f := fetch.New(client, sem, eff.Root, eff.BaseURL, eff.RequestDelay)

loop:
	for ri, reciter := range eff.Reciters {
		if obs != nil {
			obs.OnReciterStart(ri+1, len(eff.Reciters), reciter)
		}

		for surah := 1; surah <= cat.Surahs(); surah++ {
			if ctx.Err() != nil {
				rr.Interrupted = true
				break loop
			}

			surahStarted := time.Now()
			res := runSurah(ctx, f, cat, reciter, surah)

			// 失败率超阈值：停顿一拍再继续（不是中止——已完成的进度不能丢，
			// 但保持全速只会让远端限流更糟）。
			if float64(res.Failed) > eff.PauseThreshold*float64(res.Total) && ctx.Err() == nil {
				res.Cooldown = true
				if obs != nil {
					obs.OnCooldown(reciter, surah, eff.Pause)
				}
				sleepCtx(ctx, eff.Pause)
			}

			rr.Items = append(rr.Items, res)
			if obs != nil {
				obs.OnSurahDone(surah, cat.Surahs(), res, time.Since(surahStarted))
			}
		}
	}
	if ctx.Err() != nil {
		rr.Interrupted = true
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr, nil
}

// runSurah 并发取回一章的所有节，等全部 resolve 后返回聚合结果。
// 章级屏障是有意的取舍：牺牲一点吞吐，换取可解释的进度行与停顿决策。
func runSurah(ctx context.Context, f *fetch.Fetcher, cat domain.Catalog, reciter string, surah int) domain.SurahResult {
	n := cat.VerseCount(surah)
	res := domain.SurahResult{
		Reciter:  reciter,
		Surah:    surah,
		Total:    n,
		Failures: []domain.VerseFailure{},
	}

	type verseDone struct {
		verse int
		r     domain.VerseResult
	}

	out := make(chan verseDone, n)
	var wg sync.WaitGroup
	for v := 1; v <= n; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			out <- verseDone{verse: v, r: f.Fetch(ctx, reciter, surah, v, cat.GlobalIndex(surah, v))}
		}(v)
	}
	wg.Wait()
	close(out)

	// 计数只在本 goroutine 聚合，fetch 任务之间不共享可变状态。
	for d := range out {
		switch d.r.Status {
		case domain.VerseDownloaded:
			res.Downloaded++
		case domain.VerseSkipped:
			res.Skipped++
		case domain.VerseFailed:
			res.Failed++
			res.Failures = append(res.Failures, domain.VerseFailure{Verse: d.verse, Reason: d.r.Reason})
		}
	}

	// 完成顺序不确定：失败明细按节号排序，保证 report 稳定。
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Verse < res.Failures[j].Verse })
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
