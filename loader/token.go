package loader

import "context"

// Token is a cancellation signal. Cancel is idempotent and safe for
// concurrent use.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewToken returns a token that is also cancelled when parent is.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel signals the token.
func (t *Token) Cancel() { t.cancel() }

// Cancelled reports whether the token has been signalled.
func (t *Token) Cancelled() bool { return t.ctx.Err() != nil }

// Done is closed when the token is signalled.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Context returns the token as a context.
func (t *Token) Context() context.Context { return t.ctx }

// Bind returns a child of ctx that is also cancelled when the token is.
// Call stop to release the link.
func (t *Token) Bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	unlink := context.AfterFunc(t.ctx, cancel)
	return ctx, func() {
		unlink()
		cancel()
	}
}
