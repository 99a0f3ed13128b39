// Package shadow abstracts the OS facility that exposes a frozen,
// lock-free view of a source volume (Volume Shadow Copy on Windows, LVM or
// filesystem snapshots elsewhere).
package shadow

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupported is returned by the default provider on platforms without a
// built-in snapshot facility.
var ErrUnsupported = errors.New("volume snapshots are not supported on this platform")

// View is a frozen view of a source tree. Root replaces the source path for
// the scan; Release must be called once the run no longer reads from Root.
type View struct {
	Release func() error
	Root    string
}

// Close releases the view. It is safe on a zero View.
func (v View) Close() error {
	if v.Release == nil {
		return nil
	}
	return v.Release()
}

// Provider freezes a source path.
type Provider interface {
	Freeze(ctx context.Context, source string) (View, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, source string) (View, error)

// Freeze calls f.
func (f ProviderFunc) Freeze(ctx context.Context, source string) (View, error) {
	return f(ctx, source)
}

// Live returns the source itself. Used when snapshots are not requested.
type Live struct{}

// Freeze returns a view whose root is source.
func (Live) Freeze(_ context.Context, source string) (View, error) {
	return View{Root: source}, nil
}

type unsupported struct{ goos string }

func (u unsupported) Freeze(_ context.Context, source string) (View, error) {
	return View{}, fmt.Errorf("freeze %s on %s: %w", source, u.goos, ErrUnsupported)
}

// Default returns the platform's provider. No platform currently ships a
// built-in one, so the run fails rather than silently reading the live tree.
func Default() Provider {
	return unsupported{goos: runtime.GOOS}
}
