// Package tnrs 实现 Open Tree of Life TNRS（taxonomic name resolution
// service）的批量匹配客户端。
//
// 约束：
// - MatchNames 不做重试、不做限速、不做分块（这些由 resolve 层统一控制）
// - 非 2xx 状态或不可解析的响应体都是该次调用的硬失败
package tnrs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultEndpoint 是 OTT TNRS 的批量匹配端点。
const DefaultEndpoint = "https://api.opentreeoflife.org/v3/tnrs/match_names"

// Taxon 是服务端返回的一个接受名（accepted taxon）。
type Taxon struct {
	UniqueName string   `json:"unique_name"`
	Synonyms   []string `json:"synonyms"`
	OTTID      *int64   `json:"ott_id"`
	Rank       string   `json:"rank"`
}

// Candidate 是某个查询串的一个候选匹配（服务端已按优劣排序）。
type Candidate struct {
	Taxon       Taxon `json:"taxon"`
	Approximate bool  `json:"is_approximate_match"`
	IsSynonym   bool  `json:"is_synonym"`
}

// Result 是单个查询串的匹配结果（Candidates 可能为空）。
type Result struct {
	Query      string      `json:"name"`
	Candidates []Candidate `json:"matches"`
}

// Matcher 是 resolve 层依赖的最小接口（便于测试替身）。
type Matcher interface {
	MatchNames(ctx context.Context, names []string) ([]Result, error)
}

// matchRequest 对应服务端的请求体。verbose 固定为 false（最小响应）。
type matchRequest struct {
	Names       []string `json:"names"`
	Approximate bool     `json:"do_approximate_matching"`
	Verbose     bool     `json:"verbose"`
}

type matchResponse struct {
	Results []Result `json:"results"`
}

// HTTPStatusError 表示服务端返回了非 2xx 的 HTTP 状态码。
// Snippet 截取响应体开头，便于人工定位（服务端错误通常带说明文字）。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Snippet    string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	s := strings.TrimSpace(e.Snippet)
	if s == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d：%s", e.StatusCode, s)
}

// Error 是 TNRS 调用的可追溯错误。
// Stage 取值："request"（构造/发送失败）、"status"（非 2xx）、
// "decode"（响应体不可解析）。
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tnrs stage=%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client 是 Matcher 的 HTTP 实现。
type Client struct {
	Endpoint string
	HTTP     *http.Client
}

// MatchNames 发送一次批量匹配请求并返回按查询串分组的结果。
//
// - names 必须非空且已去重（调用方保证批大小上限）
// - 固定请求 do_approximate_matching=true（模糊匹配在服务端开启）
func (c *Client) MatchNames(ctx context.Context, names []string) ([]Result, error) {
	if c == nil || c.HTTP == nil {
		return nil, &Error{Stage: "request", Err: errors.New("http client 不能为空")}
	}
	if len(names) == 0 {
		return nil, &Error{Stage: "request", Err: errors.New("names 不能为空")}
	}
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	body, err := json.Marshal(matchRequest{
		Names:       names,
		Approximate: true,
		Verbose:     false,
	})
	if err != nil {
		return nil, &Error{Stage: "request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Stage: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &Error{Stage: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Stage: "status", Err: &HTTPStatusError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Snippet:    readSnippet(resp.Body, 200),
		}}
	}

	var mr matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, &Error{Stage: "decode", Err: err}
	}
	return mr.Results, nil
}

func readSnippet(r io.Reader, max int) string {
	b, _ := io.ReadAll(io.LimitReader(r, int64(max)))
	return string(b)
}
