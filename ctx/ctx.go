package ctx

import (
	"context"
	"fmt"

	"complgate/task"
)

// Ctx carries a call's cancellation (its interruption signal) and the
// identity of the calling task.
type Ctx struct {
	ctx  context.Context
	task *task.Task
}

func NewCtx(ctx context.Context, t *task.Task) *Ctx {
	if t == nil {
		t = task.Unknown()
	}
	return &Ctx{ctx: ctx, task: t}
}

// NewCtxCurrent labels the call with the calling thread's identity.
func NewCtxCurrent(ctx context.Context) *Ctx {
	return NewCtx(ctx, task.Current())
}

func NewCtxNull() *Ctx {
	return NewCtx(context.Background(), task.Unknown())
}

func (c *Ctx) Context() context.Context {
	return c.ctx
}

func (c *Ctx) Task() *task.Task {
	return c.task
}

func (c *Ctx) String() string {
	return fmt.Sprintf("{ctx %v}", c.task)
}
