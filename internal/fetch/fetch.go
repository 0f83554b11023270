package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/John-Robertt/QAM/internal/domain"
	"github.com/John-Robertt/QAM/internal/infra/fsx"
)

// Fetcher 对单节执行"取回并落盘"。
//
// 约束：
// - Sem 是全 run 共享的并发上限（不按章重置）
// - 单节失败只产生 failed 结果，绝不向外抛错；是否重试是操作者
//   重跑整个 run 的决定，这里不做任何进程内重试
// - 除 Sem 与底层连接池外不持有跨任务共享状态；Fetch 可被任意并发调用
type Fetcher struct {
	Client *http.Client
	Sem    *semaphore.Weighted

	Root    string
	BaseURL string

	// Delay 是每次网络请求前的固定礼貌间隔（即使有空闲并发额度也等待，
	// 避免请求成串砸向 CDN）。
	Delay time.Duration
}

func New(client *http.Client, sem *semaphore.Weighted, root, baseURL string, delay time.Duration) *Fetcher {
	return &Fetcher{
		Client:  client,
		Sem:     sem,
		Root:    root,
		BaseURL: baseURL,
		Delay:   delay,
	}
}

// Fetch 对 (reciter, surah, verse) 做一次幂等取回：
//
// 1) 本地已存在 => skipped，不发起任何网络请求（续传保证）
// 2) 占用一个并发额度（阻塞直到可用；ctx 取消则放弃）
// 3) 等待礼貌间隔
// 4) GET <base>/<reciter>/<global>.mp3
// 5) 200 => 原子写入镜像（绝不覆盖已有文件）=> downloaded
//    其他 => failed(原因)
//
// 存在性检查先于一切网络 I/O，且最多写出一个文件。
func (f *Fetcher) Fetch(ctx context.Context, reciter string, surah, verse, global int) domain.VerseResult {
	rel := domain.ArtifactRelPath(reciter, surah, verse)
	dst := filepath.Join(f.Root, rel)

	if _, err := os.Lstat(dst); err == nil {
		return domain.VerseResult{Status: domain.VerseSkipped}
	}

	if err := f.Sem.Acquire(ctx, 1); err != nil {
		return failed("canceled")
	}
	defer f.Sem.Release(1)

	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return failed("canceled")
		case <-t.C:
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, domain.VerseURL(f.BaseURL, reciter, global), nil)
	if err != nil {
		return failed(err.Error())
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return failed("canceled")
		}
		if isTimeout(err) {
			return failed("timeout")
		}
		return failed(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failed(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return failed("canceled")
		}
		if isTimeout(err) {
			return failed("timeout")
		}
		return failed(err.Error())
	}

	if err := fsx.WriteFileAtomicNoOverwrite(filepath.Dir(dst), filepath.Base(dst), body); err != nil {
		if errors.Is(err, os.ErrExist) {
			// 两次 run 并行等少见竞态下对方先写完：等价于已完成。
			return domain.VerseResult{Status: domain.VerseSkipped}
		}
		return failed(err.Error())
	}
	return domain.VerseResult{Status: domain.VerseDownloaded}
}

func failed(reason string) domain.VerseResult {
	return domain.VerseResult{Status: domain.VerseFailed, Reason: reason}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
