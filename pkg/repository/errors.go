package repository

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyRepository = errors.New("repository has no head")
	ErrUnknownRevision = errors.New("unknown revision")
	ErrEncoding        = errors.New("document is not valid UTF-8")
	ErrClosed          = errors.New("repository is closed")
	ErrHeadMoved       = errors.New("head kept moving during commit")
	ErrReleased        = errors.New("write session already released")
	ErrInvalidHash     = errors.New("malformed hash")
)

// OpenError 表示仓库无法打开或初始化
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open repository %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// GraphError 表示读写对象图失败，HEAD 不会被移动
type GraphError struct {
	Op  string
	Err error
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("object graph: %s: %v", e.Op, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

func graphErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GraphError
	if errors.As(err, &ge) {
		return err
	}
	return &GraphError{Op: op, Err: err}
}
