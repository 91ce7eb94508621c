package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/TNRM/internal/app/run"
	"github.com/John-Robertt/TNRM/internal/config"
	"github.com/John-Robertt/TNRM/internal/domain"
	"github.com/John-Robertt/TNRM/internal/infra/fsx"
	"github.com/John-Robertt/TNRM/internal/infra/httpx"
	"github.com/John-Robertt/TNRM/internal/tnrs"
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

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Input:        ra.Input,
		Column:       ra.Column,
		ColumnSet:    ra.ColumnSet,
		BatchSize:    ra.BatchSize,
		BatchSizeSet: ra.BatchSizeSet,
		Apply:        ra.Apply,
		ApplySet:     ra.ApplySet,
	})
	if err != nil {
		rr := reportForConfigError(ra, err)
		emitReport(rr)
		return 1
	}

	httpClient, err := httpx.NewClient(eff.ProxyURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化 HTTP client 失败：%v\n", err)
		return 1
	}
	matcher := &tnrs.Client{Endpoint: eff.Endpoint, HTTP: httpClient}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(context.Background(), eff, matcher, obs)

	// apply：必须写入 <output 同目录>/cache/report.json；dry-run 禁止落盘。
	if eff.Apply && !rr.Failed() {
		if err := writeReportFile(eff.Output, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff, rr)
	}
	if rr.Failed() {
		return 1
	}
	return 0
}

type runArgs struct {
	Input        string
	Column       string
	ColumnSet    bool
	BatchSize    int
	BatchSizeSet bool
	Apply        bool
	ApplySet     bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--column":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--column 需要一个值")
			}
			i++
			ra.Column = args[i]
			ra.ColumnSet = true
		case strings.HasPrefix(a, "--column="):
			ra.Column = strings.TrimPrefix(a, "--column=")
			ra.ColumnSet = true
		case a == "--batch-size":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--batch-size 需要一个值")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return runArgs{}, fmt.Errorf("--batch-size 必须是整数，实际是 %q", args[i])
			}
			ra.BatchSize = n
			ra.BatchSizeSet = true
		case strings.HasPrefix(a, "--batch-size="):
			v := strings.TrimPrefix(a, "--batch-size=")
			n, err := strconv.Atoi(v)
			if err != nil {
				return runArgs{}, fmt.Errorf("--batch-size 必须是整数，实际是 %q", v)
			}
			ra.BatchSize = n
			ra.BatchSizeSet = true
		case a == "--apply":
			ra.Apply = true
			ra.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ra.Apply = true
			case "false":
				ra.Apply = false
			default:
				return runArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ra.ApplySet = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Input != "" {
				return runArgs{}, fmt.Errorf("重复的 input：%q 与 %q", ra.Input, a)
			}
			ra.Input = a
		}
	}

	if ra.ColumnSet && strings.TrimSpace(ra.Column) == "" {
		return runArgs{}, fmt.Errorf("--column 不能为空")
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  tnrm run [input] [--column 名称] [--batch-size N] [--apply[=true|false]]

命令：
  run    运行名称解析流程（默认 dry-run）

使用 "tnrm run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  tnrm run [input] [--column 名称] [--batch-size N] [--apply[=true|false]]

参数：
  input         输入数据表：.xlsx/.csv/.html（未指定则读配置文件 tnrm.json 的 input）
  --column      学名列的列名（默认 "Scientific Name"）
  --batch-size  每批提交给 TNRS 的查询数（50~500，默认 200）
  --apply       写出结果文件与缓存（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true
  -h, --help    显示帮助
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		if rr.Failed() {
			fmt.Fprintf(os.Stderr, "失败 [%s] %s\n", rr.Failure.Code, rr.Failure.Msg)
			if rr.Failure.Tier != "" {
				fmt.Fprintf(os.Stderr, "  位置：tier=%s batch=%d\n", rr.Failure.Tier, rr.Failure.Batch)
			}
			return
		}
		fmt.Fprintf(os.Stdout, "完成：rows=%d distinct_names=%d cache_hits=%d\n",
			rr.Rows, rr.DistinctNames, rr.CacheHits,
		)
		if s := renderSummaryTable(rr.Summary); s != "" {
			fmt.Fprintln(os.Stdout, s)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	if rr.Failed() {
		fmt.Fprintf(os.Stderr, "失败 [%s] %s\n", rr.Failure.Code, rr.Failure.Msg)
		return
	}
	fmt.Fprintf(os.Stderr, "完成：rows=%d distinct_names=%d cache_hits=%d\n",
		rr.Rows, rr.DistinctNames, rr.CacheHits,
	)
}

func reportForConfigError(ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		Input:      ra.Input,
		Column:     ra.Column,
		DryRun:     !(ra.ApplySet && ra.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Failure:    &domain.RunFailure{Code: code, Msg: err.Error()},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(output string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(filepath.Dir(output), "cache"), "report.json", b)
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
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, rr domain.RunReport) {
	if w == nil || rr.Failed() {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "out: %s\n", eff.Output)
		fmt.Fprintf(w, "report: %s\n", filepath.Join(filepath.Dir(eff.Output), "cache", "report.json"))
	}
}
