package run

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/QAM/internal/config"
	"github.com/John-Robertt/QAM/internal/domain"
)

func testConfig(root, baseURL string, reciters ...string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Root:           root,
		BaseURL:        baseURL,
		Reciters:       reciters,
		Concurrency:    8,
		RequestDelay:   0,
		Timeout:        5 * time.Second,
		PauseThreshold: 0.5,
		Pause:          0,
	}
}

func mustCatalog(t *testing.T, counts []int) domain.Catalog {
	t.Helper()
	cat, err := domain.NewCatalog(counts)
	if err != nil {
		t.Fatalf("构造目录表失败：%v", err)
	}
	return cat
}

func TestExecute_IdempotentAcrossRuns(t *testing.T) {
	root := t.TempDir()
	cat := mustCatalog(t, []int{3, 2})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	eff := testConfig(root, srv.URL, "ar.alafasy")

	// 第一次 run：全部下载。
	rr, err := Execute(context.Background(), eff, cat, nil)
	if err != nil {
		t.Fatalf("不期望致命错误：%v", err)
	}
	s := rr.Summary
	if s.Downloaded != 5 || s.Skipped != 0 || s.Failed != 0 || s.Total != 5 {
		t.Fatalf("第一次 run 计数不符合预期：%+v", s)
	}
	for surah := 1; surah <= cat.Surahs(); surah++ {
		for verse := 1; verse <= cat.VerseCount(surah); verse++ {
			p := filepath.Join(root, domain.ArtifactRelPath("ar.alafasy", surah, verse))
			if _, err := os.Stat(p); err != nil {
				t.Fatalf("期望落盘 %q：%v", p, err)
			}
		}
	}

	// 第二次 run：全部跳过，零下载（幂等/续传保证）。
	rr, err = Execute(context.Background(), eff, cat, nil)
	if err != nil {
		t.Fatalf("不期望致命错误：%v", err)
	}
	s = rr.Summary
	if s.Downloaded != 0 || s.Skipped != 5 || s.Failed != 0 {
		t.Fatalf("第二次 run 计数不符合预期：%+v", s)
	}
}

func TestExecute_PartialFailureContained(t *testing.T) {
	root := t.TempDir()
	cat := mustCatalog(t, []int{5})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/3.mp3") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	rr, err := Execute(context.Background(), testConfig(root, srv.URL, "ar.alafasy"), cat, nil)
	if err != nil {
		t.Fatalf("单节失败不应升级为致命错误：%v", err)
	}
	s := rr.Summary
	if s.Downloaded != 4 || s.Failed != 1 {
		t.Fatalf("计数不符合预期：%+v", s)
	}

	if len(rr.Items) != 1 {
		t.Fatalf("期望 1 个 item，实际 %d", len(rr.Items))
	}
	it := rr.Items[0]
	if len(it.Failures) != 1 || it.Failures[0].Verse != 3 || it.Failures[0].Reason != "HTTP 404" {
		t.Fatalf("失败明细不符合预期：%+v", it.Failures)
	}

	// 其余 4 节必须照常落盘。
	for _, verse := range []int{1, 2, 4, 5} {
		p := filepath.Join(root, domain.ArtifactRelPath("ar.alafasy", 1, verse))
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("期望落盘 %q：%v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, domain.ArtifactRelPath("ar.alafasy", 1, 3))); !os.IsNotExist(err) {
		t.Fatalf("失败的节不应落盘，但 Stat err=%v", err)
	}
}

// arrivalRecorder 记录每个请求路径的到达时刻。
type arrivalRecorder struct {
	mu sync.Mutex
	at map[string]time.Time
}

func (a *arrivalRecorder) record(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.at == nil {
		a.at = make(map[string]time.Time)
	}
	a.at[path] = time.Now()
}

func (a *arrivalRecorder) when(path string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts, ok := a.at[path]
	return ts, ok
}

func TestExecute_CooldownDelaysNextSurah(t *testing.T) {
	root := t.TempDir()
	cat := mustCatalog(t, []int{2, 1})

	rec := &arrivalRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r.URL.Path)
		// 第 1 章（全局 1、2）全失败；第 2 章（全局 3）成功。
		if strings.HasSuffix(r.URL.Path, "/1.mp3") || strings.HasSuffix(r.URL.Path, "/2.mp3") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	eff := testConfig(root, srv.URL, "ar.alafasy")
	eff.Pause = 500 * time.Millisecond

	rr, err := Execute(context.Background(), eff, cat, nil)
	if err != nil {
		t.Fatalf("不期望致命错误：%v", err)
	}

	if len(rr.Items) != 2 || !rr.Items[0].Cooldown {
		t.Fatalf("失败率 100%% 的章应标记 cooldown：%+v", rr.Items)
	}
	if rr.Items[1].Cooldown {
		t.Fatalf("成功的章不应标记 cooldown：%+v", rr.Items[1])
	}

	next, ok := rec.when("/ar.alafasy/3.mp3")
	if !ok {
		t.Fatalf("第 2 章的请求未到达")
	}
	// 章级屏障保证第 1 章先全部 resolve，停顿发生在两章之间：
	// 第 2 章首个请求距 run 开始至少一个停顿时长。
	if gap := next.Sub(rr.StartedAt); gap < 450*time.Millisecond {
		t.Fatalf("停顿未生效：第 2 章请求距 run 开始仅 %v", gap)
	}
}

func TestExecute_NoCooldownBelowThreshold(t *testing.T) {
	root := t.TempDir()
	cat := mustCatalog(t, []int{4, 1})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 第 1 章只有 1/4 失败（≤ 阈值 0.5）。
		if strings.HasSuffix(r.URL.Path, "/1.mp3") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	eff := testConfig(root, srv.URL, "ar.alafasy")
	eff.Pause = 5 * time.Second

	started := time.Now()
	rr, err := Execute(context.Background(), eff, cat, nil)
	if err != nil {
		t.Fatalf("不期望致命错误：%v", err)
	}
	if rr.Items[0].Cooldown {
		t.Fatalf("失败率未超阈值不应 cooldown：%+v", rr.Items[0])
	}
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("不应发生停顿，实际耗时 %v", elapsed)
	}
}

func TestExecute_SequentialRecitersDisjointTrees(t *testing.T) {
	root := t.TempDir()
	cat := mustCatalog(t, []int{2})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	rr, err := Execute(context.Background(), testConfig(root, srv.URL, "ar.alafasy", "ar.husary"), cat, nil)
	if err != nil {
		t.Fatalf("不期望致命错误：%v", err)
	}
	if rr.Summary.Downloaded != 4 || rr.Summary.Total != 4 {
		t.Fatalf("计数不符合预期：%+v", rr.Summary)
	}
	for _, reciter := range []string{"ar.alafasy", "ar.husary"} {
		for verse := 1; verse <= 2; verse++ {
			p := filepath.Join(root, domain.ArtifactRelPath(reciter, 1, verse))
			if _, err := os.Stat(p); err != nil {
				t.Fatalf("期望落盘 %q：%v", p, err)
			}
		}
	}
}

func TestExecute_CanceledContextPartialReport(t *testing.T) {
	root := t.TempDir()
	cat := mustCatalog(t, []int{3, 2})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr, err := Execute(ctx, testConfig(root, srv.URL, "ar.alafasy"), cat, nil)
	if err != nil {
		t.Fatalf("中断不是致命错误：%v", err)
	}
	if !rr.Interrupted {
		t.Fatalf("期望 Interrupted=true：%+v", rr)
	}
	if len(rr.Items) != 0 {
		t.Fatalf("取消后不应再发起新章：%+v", rr.Items)
	}
	// 计划总量不缩水：部分汇总的成功率仍以全量为分母。
	if rr.Summary.Total != 5 {
		t.Fatalf("期望 Total=5，实际 %d", rr.Summary.Total)
	}
}
