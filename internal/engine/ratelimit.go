package engine

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurst bounds a single limiter wait so ordinary read sizes pass in one step.
const maxBurst = 1 << 20

// NewBWLimiter returns a limiter shared by every copy worker, capping their
// combined read rate at bytesPerSec. It returns nil for bytesPerSec <= 0.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(min(bytesPerSec, maxBurst)))
}

// throttledReader charges every read against a shared limiter.
type throttledReader struct {
	ctx     context.Context //nolint:containedctx // scoped to one copy
	r       io.Reader
	limiter *rate.Limiter
}

// throttle wraps r so reads wait on limiter. A nil limiter returns r as is.
func throttle(ctx context.Context, r io.Reader, limiter *rate.Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &throttledReader{ctx: ctx, r: r, limiter: limiter}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if b := t.limiter.Burst(); len(p) > b {
		p = p[:b]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
