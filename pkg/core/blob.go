package core

import "wikivault/pkg/types"

// Blob 是一篇文章在某个版本下的原始字节
// 它的 Hash 直接是内容的 SHA-256，所以相同内容 <=> 相同 Hash
type Blob struct {
	hash types.Hash
	data []byte
}

func NewBlob(data []byte) *Blob {
	return &Blob{
		hash: CalculateBlobHash(data),
		data: data,
	}
}

func (b *Blob) Type() ObjectType { return TypeBlob }
func (b *Blob) ID() types.Hash   { return b.hash }
func (b *Blob) Bytes() []byte    { return b.data }
func (b *Blob) Size() int64      { return int64(len(b.data)) }
