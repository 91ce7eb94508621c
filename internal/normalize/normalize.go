package normalize

import (
	"regexp"
	"strings"
)

// 尾部命名人 token：大写开头的词（可带缩写句点），或少数固定缩写。
// 注意：只剥离最后一个 token，且必须由空白与前文分隔，避免把双名法的
// 种加词（小写）误删。
var authorityRE = regexp.MustCompile(`\s+([A-Z][a-z]*\.?|Moench|L\.)$`)

// Clean 从学名尾部剥离一个命名人 token（例如 "Quercus alba L." ->
// "Quercus alba"）。没有可剥离的 token 时原样返回。
// 空白串视为"无法清洗"，返回 ok=false。
func Clean(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	return strings.TrimSpace(authorityRE.ReplaceAllString(trimmed, "")), true
}

// Genus 取两个词以上学名的首个空格分隔 token（约定即属名）。
// 单词名或空白串返回 ok=false：属名回退只对双名/多词名有意义。
func Genus(name string) (string, bool) {
	i := strings.Index(name, " ")
	if i <= 0 {
		return "", false
	}
	return name[:i], true
}
