package core

import (
	"errors"
	"fmt"
	"time"

	"wikivault/pkg/types"
)

// Signature 是提交者的身份
type Signature struct {
	Name  string `cbor:"n" json:"name"`
	Email string `cbor:"e" json:"email"`
}

func (s Signature) String() string {
	if s.Email == "" {
		return s.Name
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// Commit 是一个版本。历史严格线性，所以最多只有一个 parent
type Commit struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType `cbor:"t"`

	TreeCid Link   `cbor:"th"`
	Parents []Link `cbor:"p"`

	Author  Signature `cbor:"a"`
	Message string    `cbor:"m"`

	Timestamp int64 `cbor:"ts"`
}

var ErrTooManyParents = errors.New("commit may have at most one parent")

func NewCommit(treeHash types.Hash, parent types.Hash, author Signature, msg string) (*Commit, error) {
	return NewCommitAt(treeHash, parent, author, msg, time.Now())
}

// NewCommitAt 使用指定时间创建 Commit (测试与导入时使用)
func NewCommitAt(treeHash types.Hash, parent types.Hash, author Signature, msg string, at time.Time) (*Commit, error) {
	var parents []Link
	if !parent.IsZero() {
		parents = []Link{NewLink(parent)}
	}

	c := &Commit{
		TypeVal:   TypeCommit,
		TreeCid:   NewLink(treeHash),
		Parents:   parents,
		Author:    author,
		Message:   msg,
		Timestamp: at.Unix(),
	}

	h, b, err := CalculateHash(c)
	if err != nil {
		return nil, err
	}
	c.hash = h
	c.rawBytes = b
	return c, nil
}

// DecodeCommit 从存储中的字节还原 Commit，并重新计算其 Hash
func DecodeCommit(data []byte) (*Commit, error) {
	var c Commit
	if err := DecodeObject(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode commit: %w", err)
	}
	if c.TypeVal != TypeCommit {
		return nil, fmt.Errorf("object is %q, not a commit", c.TypeVal)
	}
	if len(c.Parents) > 1 {
		return nil, ErrTooManyParents
	}
	c.hash = CalculateBlobHash(data)
	c.rawBytes = data
	return &c, nil
}

// Parent 返回父提交，根提交返回空 Hash
func (c *Commit) Parent() types.Hash {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0].Hash
}

func (c *Commit) Time() time.Time { return time.Unix(c.Timestamp, 0) }

func (c *Commit) Type() ObjectType { return TypeCommit }
func (c *Commit) ID() types.Hash   { return c.hash }
func (c *Commit) Bytes() []byte    { return c.rawBytes }
