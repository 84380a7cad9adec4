package ipc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"wikivault/pkg/types"
)

// Send 连接 socket，发送一条消息后立即断开
func Send(ctx context.Context, socket string, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return fmt.Errorf("can't connect to server at %s, is it running? %w", socket, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	return WriteFrame(conn, u)
}

// HookResult 是一次钩子运行中发出的通知
type HookResult struct {
	Sent []Update
}

// RunHook 是 post-receive 钩子的逻辑：
// 每行 "<old> <new> <ref>"，只对 ref 匹配的行发送通知
func RunHook(ctx context.Context, in io.Reader, socket, ref string, timeout time.Duration) (*HookResult, error) {
	res := &HookResult{}
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 || fields[2] != ref {
			continue
		}

		u := Update{ParentRevision: types.Hash(fields[0]), NewRevision: types.Hash(fields[1])}
		if isZeroRevision(u.ParentRevision) {
			u.ParentRevision = ""
		}

		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		err := Send(sendCtx, socket, u)
		cancel()
		if err != nil {
			return res, err
		}
		res.Sent = append(res.Sent, u)
	}
	return res, sc.Err()
}

// isZeroRevision 识别 "分支新建" 时的全零旧版本
func isZeroRevision(h types.Hash) bool {
	return h != "" && strings.Trim(string(h), "0") == ""
}
