package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/TNRM/internal/tnrs"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 tnrm.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingInput 表示无参运行但配置文件缺少 input 字段。
	ErrCodeMissingInput = "config_missing_input"
)

const (
	// DefaultColumn 是学名列的默认列名（与常见野外数据表头一致）。
	DefaultColumn = "Scientific Name"

	// 批大小的默认与上下界：约束来自服务端的请求体量限制。
	DefaultBatchSize = 200
	MinBatchSize     = 50
	MaxBatchSize     = 500

	// DefaultPauseMS 是批间停顿的默认毫秒数（对服务端的礼貌约定）。
	DefaultPauseMS = 1000
)

// CLIArgs 只包含 CLI 暴露的入口（input/column/batch-size/apply），
// 并保留"是否显式指定"的信息，保证覆盖优先级可实现
// （例如 --apply=false 必须能覆盖 config.apply=true）。
type CLIArgs struct {
	Input string

	Column    string
	ColumnSet bool

	BatchSize    int
	BatchSizeSet bool

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 tnrm.json 的解析结构。
type FileConfig struct {
	Input     string       `json:"input"`
	Column    string       `json:"column"`
	Output    string       `json:"output"`
	BatchSize int          `json:"batch_size"`
	Endpoint  string       `json:"endpoint"`
	PauseMS   *int         `json:"pause_ms"`
	Apply     *bool        `json:"apply"`
	Proxy     *ProxyConfig `json:"proxy"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，
// 不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Input  string
	Column string
	Output string
	Apply  bool

	BatchSize int
	Endpoint  string
	Pause     time.Duration
	ProxyURL  string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingInput:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 input", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置无效", e.Code)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
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
// 1) CLI 提供 input：<cwd>/tnrm.json 可选
// 2) CLI 未提供 input：必须读取 <cwd>/tnrm.json，且其中必须包含 input
//
// 覆盖优先级（固定）：
// - input：CLI > config
// - column / batch_size / apply：CLI > config > 默认
// - 其他字段（output/endpoint/pause_ms/proxy）：仅由 config 控制
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, "tnrm.json")
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	input := strings.TrimSpace(cli.Input)
	if input == "" {
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		if strings.TrimSpace(fc.Input) == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Path: cfgPath}
		}
		input = fc.Input
	}
	inputAbs := absCleanFrom(cwdAbs, input)

	return merge(inputAbs, cwdAbs, cli, fc, cfgPath)
}

func merge(inputAbs, cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	if !supportedInputExt(inputAbs) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
			Err: fmt.Errorf("input 扩展名不支持：%q（支持 .xlsx/.csv/.html）", filepath.Ext(inputAbs))}
	}

	// column：CLI > config > 默认
	column := DefaultColumn
	if cli.ColumnSet {
		column = cli.Column
	} else if strings.TrimSpace(fc.Column) != "" {
		column = fc.Column
	}
	if strings.TrimSpace(column) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("column 不能为空")}
	}

	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	// batch_size：CLI > config > 默认；超出范围截断。
	batch := DefaultBatchSize
	if cli.BatchSizeSet {
		batch = cli.BatchSize
	} else if fc.BatchSize != 0 {
		batch = fc.BatchSize
	}
	if batch < MinBatchSize {
		batch = MinBatchSize
	}
	if batch > MaxBatchSize {
		batch = MaxBatchSize
	}

	endpoint := strings.TrimSpace(fc.Endpoint)
	if endpoint == "" {
		endpoint = tnrs.DefaultEndpoint
	}
	if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("endpoint 无效：%q", endpoint)}
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("endpoint 必须是 http/https：%q", endpoint)}
	}

	pauseMS := DefaultPauseMS
	if fc.PauseMS != nil {
		pauseMS = *fc.PauseMS
	}
	if pauseMS < 0 {
		pauseMS = 0
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

	output := strings.TrimSpace(fc.Output)
	if output == "" {
		output = defaultOutput(inputAbs)
	} else {
		output = absCleanFrom(cwdAbs, output)
	}
	if e := ext(output); e != ".xlsx" && e != ".csv" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
			Err: fmt.Errorf("output 扩展名不支持：%q（支持 .xlsx/.csv）", filepath.Ext(output))}
	}

	return EffectiveConfig{
		Input:     inputAbs,
		Column:    column,
		Output:    output,
		Apply:     apply,
		BatchSize: batch,
		Endpoint:  endpoint,
		Pause:     time.Duration(pauseMS) * time.Millisecond,
		ProxyURL:  proxyURL,
	}, nil
}

// defaultOutput 在输入文件名上加 "_resolved"；HTML 输入只读，
// 默认写出退化为 CSV。
func defaultOutput(inputAbs string) string {
	e := filepath.Ext(inputAbs)
	base := strings.TrimSuffix(inputAbs, e)
	switch strings.ToLower(e) {
	case ".html", ".htm":
		return base + "_resolved.csv"
	default:
		return base + "_resolved" + e
	}
}

func supportedInputExt(path string) bool {
	switch ext(path) {
	case ".xlsx", ".csv", ".html", ".htm":
		return true
	default:
		return false
	}
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
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
