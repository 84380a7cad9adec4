package wiki

import (
	"context"
	"errors"

	"wikivault/pkg/core"
)

var ErrAnonymous = errors.New("no author identity")

// IdentityProvider 提供提交作者 (认证由外部完成)
type IdentityProvider interface {
	Identify(ctx context.Context) (core.Signature, error)
}

type authorKey struct{}

// WithAuthor 把已认证的作者放进 ctx
func WithAuthor(ctx context.Context, sig core.Signature) context.Context {
	return context.WithValue(ctx, authorKey{}, sig)
}

// AuthorFrom 取出 WithAuthor 放入的作者
func AuthorFrom(ctx context.Context) (core.Signature, bool) {
	sig, ok := ctx.Value(authorKey{}).(core.Signature)
	return sig, ok && sig.Name != ""
}

// ContextIdentity 优先使用 ctx 中的作者，没有时退回 Fallback
type ContextIdentity struct {
	Fallback core.Signature
}

func (c ContextIdentity) Identify(ctx context.Context) (core.Signature, error) {
	if sig, ok := AuthorFrom(ctx); ok {
		return sig, nil
	}
	if c.Fallback.Name == "" {
		return core.Signature{}, ErrAnonymous
	}
	return c.Fallback, nil
}

// StaticIdentity 总是返回同一个作者 (CLI 使用)
type StaticIdentity core.Signature

func (s StaticIdentity) Identify(context.Context) (core.Signature, error) {
	if s.Name == "" {
		return core.Signature{}, ErrAnonymous
	}
	return core.Signature(s), nil
}
