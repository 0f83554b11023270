package domain

import (
	"sort"
	"time"
)

const (
	VerseDownloaded = "downloaded"
	VerseSkipped    = "skipped"
	VerseFailed     = "failed"
)

// VerseResult 是单节取回的结果标签（进程内传递，不直接落入 report）。
type VerseResult struct {
	Status string
	Reason string // 仅 Status==failed 时非空
}

// VerseFailure 是写入 report 的单节失败明细。
type VerseFailure struct {
	Verse  int    `json:"verse"`
	Reason string `json:"reason"`
}

// SurahResult 是一章（一个 reciter 下）的聚合结果。
type SurahResult struct {
	Reciter string `json:"reciter"`
	Surah   int    `json:"surah"`
	Total   int    `json:"total"`

	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`

	// Cooldown 表示该章结束后触发了降速停顿（失败率超过阈值）。
	Cooldown bool `json:"cooldown"`

	Failures []VerseFailure `json:"failures"`
}

type ReportSummary struct {
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`

	// Total 是本次 run 计划覆盖的节总数（目录节数 × reciter 数）。
	// 被中断时 Total 不缩水：成功率必须以计划总量为分母才有意义。
	Total int `json:"total"`
}

// SuccessRate 返回 (downloaded+skipped)/total，范围 [0,1]；total==0 时为 0。
func (s ReportSummary) SuccessRate() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Downloaded+s.Skipped) / float64(s.Total)
}

// RunReport 是对外稳定输出（stdout JSON）的结构。
type RunReport struct {
	Root    string `json:"root"`
	BaseURL string `json:"base_url"`

	// Interrupted 表示 run 被外部中断（SIGINT 等）；report 仍是准确的部分汇总。
	Interrupted bool `json:"interrupted"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []SurahResult `json:"items"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：先按 reciter 字典序，再按 surah 升序
// 3) summary 的计数由 items 计算得出（Total 保持调用方设置的计划总量）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i], r.Items[j]
		if a.Reciter != b.Reciter {
			return a.Reciter < b.Reciter
		}
		return a.Surah < b.Surah
	})

	total := r.Summary.Total
	var s ReportSummary
	for _, it := range r.Items {
		s.Downloaded += it.Downloaded
		s.Skipped += it.Skipped
		s.Failed += it.Failed
	}
	s.Total = total
	r.Summary = s
}

// Elapsed 返回 run 的总耗时。
func (r RunReport) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// AvgPerDownload 返回平均每个"实际下载"文件的耗时；没有下载时为 0。
func (r RunReport) AvgPerDownload() time.Duration {
	if r.Summary.Downloaded <= 0 {
		return 0
	}
	return r.Elapsed() / time.Duration(r.Summary.Downloaded)
}
