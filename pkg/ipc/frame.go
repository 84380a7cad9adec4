// Package ipc 实现外部推送的通知通道
//
// 钩子进程通过 Unix socket 发送一条长度前缀的 JSON 消息，
// 服务端串行接收并触发索引重建。
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"wikivault/pkg/types"
)

const (
	// DefaultSocket 是默认的 socket 路径
	DefaultSocket = "/tmp/.wikivault.sock"

	// MaxFrameSize 限制单条消息的大小
	MaxFrameSize = 64 << 10

	headerSize = 4
)

var (
	ErrMalformed = errors.New("malformed push notification")
	ErrTimeout   = errors.New("push notification timed out")
)

// Update 描述一次推送：HEAD 从 ParentRevision 移动到 NewRevision
type Update struct {
	ParentRevision types.Hash `json:"parent_revision"`
	NewRevision    types.Hash `json:"new_revision"`
}

// Validate 检查两个版本号都是合法的十六进制摘要；
// ParentRevision 为空表示分支是新建的
func (u Update) Validate() error {
	if !u.NewRevision.IsValid() {
		return fmt.Errorf("%w: bad new_revision %q", ErrMalformed, u.NewRevision)
	}
	if !u.ParentRevision.IsZero() && !u.ParentRevision.IsValid() {
		return fmt.Errorf("%w: bad parent_revision %q", ErrMalformed, u.ParentRevision)
	}
	return nil
}

// WriteFrame 写入 4 字节大端长度头和消息体
func WriteFrame(w io.Writer, u Update) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(body)))
	copy(buf[headerSize:], body)

	_, err = w.Write(buf)
	return err
}

// ReadFrame 读取并校验一条消息
func ReadFrame(r io.Reader) (Update, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Update{}, fmt.Errorf("%w: read header: %w", ErrMalformed, err)
	}

	n := binary.BigEndian.Uint32(header[:])
	if n == 0 || n > MaxFrameSize {
		return Update{}, fmt.Errorf("%w: frame length %d", ErrMalformed, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Update{}, fmt.Errorf("%w: read body: %w", ErrMalformed, err)
	}

	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := u.Validate(); err != nil {
		return Update{}, err
	}
	return u, nil
}
