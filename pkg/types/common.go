// pkg/types/common.go
package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Hash 代表对象的唯一标识符 (SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool { return h == "" }
func (h Hash) IsValid() bool {
	if len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil && strings.ToLower(string(h)) == string(h)
}

// Short 返回用于日志/CLI 展示的短哈希
func (h Hash) Short() string {
	if len(h) <= 8 {
		return string(h)
	}
	return string(h[:8])
}

type HashPrefix string

func (p HashPrefix) String() string { return string(p) }

// DocumentExt 是文章在树中的文件后缀
const DocumentExt = ".md"

var ErrInvalidTitle = errors.New("invalid title")

// Title 是文章的标题，同时也是其在树中的相对路径 (不含 .md 后缀)
// 例如 "guides/setup" <-> "guides/setup.md"
type Title string

func (t Title) String() string { return string(t) }

// Validate 在边界上拒绝无法映射为安全路径的标题
func (t Title) Validate() error {
	s := string(t)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTitle)
	}
	if strings.HasPrefix(s, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidTitle, s)
	}
	if strings.ContainsAny(s, "\\\x00") {
		return fmt.Errorf("%w: %q contains forbidden characters", ErrInvalidTitle, s)
	}
	segs := strings.Split(s, "/")
	for i, seg := range segs {
		switch seg {
		case "":
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidTitle, s)
		case ".", "..":
			return fmt.Errorf("%w: %q has a relative segment", ErrInvalidTitle, s)
		}
		// 目录名不能和文章文件重名
		if i < len(segs)-1 && strings.HasSuffix(seg, DocumentExt) {
			return fmt.Errorf("%w: directory segment %q ends with %s", ErrInvalidTitle, seg, DocumentExt)
		}
	}
	return nil
}

// Path 返回文章在树中的路径
func (t Title) Path() string { return string(t) + DocumentExt }

// Segments 按 "/" 拆分标题，用于面包屑和标题分词
func (t Title) Segments() []string { return strings.Split(string(t), "/") }

// TitleFromPath 是 Path 的逆操作；非 .md 文件返回 false
func TitleFromPath(p string) (Title, bool) {
	if !strings.HasSuffix(p, DocumentExt) || len(p) == len(DocumentExt) {
		return "", false
	}
	return Title(strings.TrimSuffix(p, DocumentExt)), true
}
