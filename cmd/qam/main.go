package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/John-Robertt/QAM/internal/app/run"
	"github.com/John-Robertt/QAM/internal/config"
	"github.com/John-Robertt/QAM/internal/domain"
	"github.com/John-Robertt/QAM/internal/infra/httpx"
	"github.com/John-Robertt/QAM/internal/provider"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "reciters":
		if code := recitersCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, ra)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误：%v\n", err)
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	// SIGINT/SIGTERM：停止发起新任务，在途任务 resolve 后输出部分汇总。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rr, fatal := run.Execute(ctx, eff, domain.Quran(), obs)
	if fatal != nil {
		fmt.Fprintf(os.Stderr, "致命错误：%v\n", fatal)
		emitReport(rr)
		return 1
	}

	emitReport(rr)
	if rr.Summary.Failed == 0 && !rr.Interrupted {
		return 0
	}
	return 1
}

func recitersCmd(args []string) int {
	baseURL := config.DefaultBaseURL
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case isHelp(a):
			printRecitersUsage()
			return 0
		case a == "--base-url":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "参数错误：--base-url 需要一个值")
				return 2
			}
			i++
			baseURL = args[i]
		case strings.HasPrefix(a, "--base-url="):
			baseURL = strings.TrimPrefix(a, "--base-url=")
		default:
			fmt.Fprintf(os.Stderr, "参数错误：未知参数 %q\n", a)
			return 2
		}
	}

	client, err := httpx.NewAudioClient("", config.DefaultTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化 HTTP client 失败：%v\n", err)
		return 1
	}
	defer client.CloseIdleConnections()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	names, err := provider.Discover(ctx, client, baseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 reciter 列表失败：%v\n", err)
		return 1
	}
	for _, n := range names {
		fmt.Fprintln(os.Stdout, n)
	}
	return 0
}

func parseRunArgs(args []string) (config.CLIArgs, error) {
	ra := config.CLIArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--reciter":
			if i+1 >= len(args) {
				return config.CLIArgs{}, fmt.Errorf("--reciter 需要一个值")
			}
			i++
			ra.Reciters = append(ra.Reciters, args[i])
		case strings.HasPrefix(a, "--reciter="):
			ra.Reciters = append(ra.Reciters, strings.TrimPrefix(a, "--reciter="))
		case a == "--concurrency":
			if i+1 >= len(args) {
				return config.CLIArgs{}, fmt.Errorf("--concurrency 需要一个值")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return config.CLIArgs{}, fmt.Errorf("--concurrency 必须是整数，实际是 %q", args[i])
			}
			ra.Concurrency = n
			ra.ConcurrencySet = true
		case strings.HasPrefix(a, "--concurrency="):
			v := strings.TrimPrefix(a, "--concurrency=")
			n, err := strconv.Atoi(v)
			if err != nil {
				return config.CLIArgs{}, fmt.Errorf("--concurrency 必须是整数，实际是 %q", v)
			}
			ra.Concurrency = n
			ra.ConcurrencySet = true
		case a == "--base-url":
			if i+1 >= len(args) {
				return config.CLIArgs{}, fmt.Errorf("--base-url 需要一个值")
			}
			i++
			ra.BaseURL = args[i]
			ra.BaseURLSet = true
		case strings.HasPrefix(a, "--base-url="):
			ra.BaseURL = strings.TrimPrefix(a, "--base-url=")
			ra.BaseURLSet = true
		case strings.HasPrefix(a, "-"):
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return config.CLIArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  qam run [path] [--reciter NAME]... [--concurrency N] [--base-url URL]
  qam reciters [--base-url URL]

命令：
  run       同步镜像（已存在的文件跳过；失败的条目重跑本命令即可重试）
  reciters  列出 CDN 上可用的 reciter 目录

使用 "qam run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  qam run [path] [--reciter NAME]... [--concurrency N] [--base-url URL]

参数：
  path           镜像根目录（未指定则读 qam.json 的 path；最终默认 ./mirror）
  --reciter      要同步的 reciter，可重复（默认 ar.alafasy, ar.husary）
  --concurrency  并发上限，范围 [1,32]（默认 8）
  --base-url     远端 CDN 地址（默认 `+config.DefaultBaseURL+`）
  -h, --help     显示帮助

中断（Ctrl-C）后重跑同一命令即可续传：已落盘的文件会被跳过。
`)
}

func printRecitersUsage() {
	fmt.Fprint(os.Stdout, `用法：
  qam reciters [--base-url URL]

抓取 CDN 索引页并列出可用的 reciter 目录名（每行一个）。
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：downloaded=%d skipped=%d failed=%d total=%d\n",
			rr.Summary.Downloaded, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Total,
		)
		fmt.Fprintf(os.Stdout, "耗时 %s，成功率 %.1f%%", formatShortDuration(rr.Elapsed()), rr.Summary.SuccessRate()*100)
		if rr.Summary.Downloaded > 0 {
			fmt.Fprintf(os.Stdout, "，平均每文件 %.2fs", rr.AvgPerDownload().Seconds())
		}
		fmt.Fprintln(os.Stdout)

		if rr.Interrupted {
			fmt.Fprintln(os.Stderr, "运行被中断：以上为部分汇总；重跑同一命令即可续传。")
		}
		if rr.Summary.Failed > 0 {
			emitFailures(os.Stderr, rr)
			fmt.Fprintf(os.Stderr, "共 %d 节下载失败；重跑本命令即可只重试缺失文件。\n", rr.Summary.Failed)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：downloaded=%d skipped=%d failed=%d total=%d\n",
		rr.Summary.Downloaded, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Total,
	)
}

func emitFailures(w io.Writer, rr domain.RunReport) {
	for _, it := range rr.Items {
		if it.Failed == 0 {
			continue
		}
		for _, f := range it.Failures {
			fmt.Fprintf(w, "%s %d:%d %s\n", it.Reciter, it.Surah, f.Verse, f.Reason)
		}
	}
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
