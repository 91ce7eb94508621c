package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/TNRM/internal/domain"
	"github.com/John-Robertt/TNRM/internal/infra/fsx"
)

// Store 提供 <root>/cache/names/ 下的解析结果缓存读写。
//
// 缓存键是名字原文的 SHA-256（名字里可能含路径非法字符，不能直接做
// 文件名）；值是 ResolutionRecord 的 JSON。只缓存已匹配（TaxonID 非空）
// 的记录——未匹配是可变状态，下次 run 应该重新尝试。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Path 返回某个名字的缓存文件绝对路径。
func (s Store) Path(name domain.Name) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name 不能为空")
	}
	sum := sha256.Sum256([]byte(name))
	return filepath.Join(s.Root, "cache", "names", hex.EncodeToString(sum[:])+".json"), nil
}

// Read 读取某个名字的缓存记录；不存在不算错误（ok=false）。
// 坏缓存（无法解析/未匹配记录）同样按 miss 处理，交给网络重新解析。
func (s Store) Read(name domain.Name) (domain.ResolutionRecord, bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return domain.ResolutionRecord{}, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ResolutionRecord{}, false, nil
		}
		return domain.ResolutionRecord{}, false, err
	}

	var rec domain.ResolutionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.ResolutionRecord{}, false, nil
	}
	if !rec.Matched() || !domain.TierMatched(rec.MatchTier) {
		return domain.ResolutionRecord{}, false, nil
	}
	return rec, true, nil
}

// Write 写入某个名字的缓存记录（原子写）。未匹配的记录直接拒绝。
func (s Store) Write(name domain.Name, rec domain.ResolutionRecord) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if !rec.Matched() {
		return fmt.Errorf("拒绝缓存未匹配记录：%q", name)
	}
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}
