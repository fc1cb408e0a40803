package wasm

import "context"

// Alerter receives the text a module passes to the env.alert import.
// The message is already copied out of module memory.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// AlerterFunc adapts a plain function to Alerter.
type AlerterFunc func(ctx context.Context, message string)

// Alert calls f(ctx, message).
func (f AlerterFunc) Alert(ctx context.Context, message string) {
	f(ctx, message)
}
