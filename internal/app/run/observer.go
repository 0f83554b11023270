package run

import (
	"time"

	"github.com/John-Robertt/QAM/internal/config"
	"github.com/John-Robertt/QAM/internal/domain"
)

// Observer 用于把"运行进度/阶段/章结果"从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：keepalive 与事件可能来自不同 goroutine。
type Observer interface {
	// OnStart 在 Execute 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig, cat domain.Catalog)
	// OnReciterStart 在开始处理某个 reciter 时调用。
	OnReciterStart(idx, total int, reciter string)
	// OnSurahDone 在一章的所有节都 resolve 后调用（章级屏障保证计数完整）。
	OnSurahDone(idx, total int, res domain.SurahResult, dur time.Duration)
	// OnCooldown 在失败率超阈值、即将停顿时调用。
	OnCooldown(reciter string, surah int, d time.Duration)
	// OnProgress 用于 keepalive（通常由 CLI 自己 ticker 触发；run 层不强制调用）。
	OnProgress(done, total, downloaded, skipped, failed int, elapsed time.Duration)
}
