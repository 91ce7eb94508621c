package main

import (
	"testing"

	"github.com/John-Robertt/TNRM/internal/config"
	"github.com/John-Robertt/TNRM/internal/domain"
)

func TestParseRunArgs(t *testing.T) {
	ra, err := parseRunArgs([]string{"plots.xlsx", "--column", "Taxon", "--batch-size=100", "--apply"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ra.Input != "plots.xlsx" {
		t.Fatalf("input 解析错误：%q", ra.Input)
	}
	if !ra.ColumnSet || ra.Column != "Taxon" {
		t.Fatalf("column 解析错误：%+v", ra)
	}
	if !ra.BatchSizeSet || ra.BatchSize != 100 {
		t.Fatalf("batch-size 解析错误：%+v", ra)
	}
	if !ra.ApplySet || !ra.Apply {
		t.Fatalf("apply 解析错误：%+v", ra)
	}
}

func TestParseRunArgs_ApplyFalseOverride(t *testing.T) {
	ra, err := parseRunArgs([]string{"a.csv", "--apply=false"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ra.ApplySet || ra.Apply {
		t.Fatalf("--apply=false 必须显式记录：%+v", ra)
	}
}

func TestParseRunArgs_Errors(t *testing.T) {
	cases := [][]string{
		{"a.csv", "b.csv"},           // 重复 input
		{"--column"},                 // 缺值
		{"--batch-size", "abc"},      // 非整数
		{"--batch-size=1.5"},         // 非整数
		{"--apply=maybe"},            // 非 true/false
		{"--column="},                // 空列名
		{"--unknown"},                // 未知参数
	}
	for _, args := range cases {
		if _, err := parseRunArgs(args); err == nil {
			t.Fatalf("期望 %v 解析失败", args)
		}
	}
}

func TestReportForConfigError(t *testing.T) {
	err := &config.Error{Code: config.ErrCodeMissingInput, Path: "/x/tnrm.json"}
	rr := reportForConfigError(runArgs{Input: ""}, err)

	if !rr.Failed() {
		t.Fatalf("配置错误必须产出失败报告")
	}
	if rr.Failure.Code != config.ErrCodeMissingInput {
		t.Fatalf("期望 %s，实际 %s", config.ErrCodeMissingInput, rr.Failure.Code)
	}
	if !rr.DryRun {
		t.Fatalf("未显式 --apply 时报告必须是 dry-run")
	}
	if rr.StartedAt.Location() != rr.FinishedAt.Location() {
		t.Fatalf("时间必须统一时区")
	}
}

func TestReportForConfigError_NonConfigError(t *testing.T) {
	rr := reportForConfigError(runArgs{}, errPlain("boom"))
	if rr.Failure.Code != domain.ErrCodeConfigInvalid {
		t.Fatalf("非结构化错误应落到 %s：%+v", domain.ErrCodeConfigInvalid, rr.Failure)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
