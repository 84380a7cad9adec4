package exporter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"wikivault/pkg/core"
	"wikivault/pkg/storage"
	"wikivault/pkg/types"
)

// PrintObject 打印对象：Commit/Tree 展示结构，Blob 直接输出内容
func (e *Exporter) PrintObject(ctx context.Context, hash types.Hash, w io.Writer) error {
	data, err := storage.ReadBytes(ctx, e.store, hash)
	if err != nil {
		return err
	}

	ok, err := PrintStructure(data, w)
	if err != nil {
		return err
	}
	if !ok {
		_, err = w.Write(data)
	}
	return err
}

// PrintStructure 解析并打印结构化对象 (Commit/Tree)
// 如果是文章内容 (Blob)，返回 false，由调用者决定如何展示
func PrintStructure(data []byte, w io.Writer) (bool, error) {
	// 1. 尝试探测类型
	var header struct {
		TypeVal core.ObjectType `cbor:"t"`
	}
	if err := core.DecodeObject(data, &header); err != nil {
		return false, nil
	}

	// 2. 分发打印
	switch header.TypeVal {
	case core.TypeCommit:
		return true, printCommit(data, w)
	case core.TypeTree:
		return true, printTree(data, w)
	default:
		// 碰巧能解码的文本
		return false, nil
	}
}

func printCommit(data []byte, w io.Writer) error {
	c, err := core.DecodeCommit(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Type:    Commit\n")
	fmt.Fprintf(w, "Hash:    %s\n", c.ID())
	fmt.Fprintf(w, "Author:  %s\n", c.Author)
	fmt.Fprintf(w, "Time:    %s\n", time.Unix(c.Timestamp, 0).Format(time.RFC3339))
	fmt.Fprintf(w, "Tree:    %s\n", c.TreeCid.Hash)
	if p := c.Parent(); !p.IsZero() {
		fmt.Fprintf(w, "Parent:  %s\n", p)
	}
	fmt.Fprintf(w, "\n%s\n", c.Message)
	return nil
}

func printTree(data []byte, w io.Writer) error {
	t, err := core.DecodeTree(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Type: Tree\n\n")
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tHASH\tSIZE\tNAME\n")
	for _, entry := range t.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Type, entry.Hash.Hash.Short(), fmtSize(entry.Type, entry.Size), entry.Name)
	}
	return tw.Flush()
}

func fmtSize(kind core.EntryType, s int64) string {
	if kind == core.EntryDir {
		return "-"
	}
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
