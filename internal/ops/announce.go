package ops

import "context"

// Notifier is the host capability an operation may call out to.
// Implementations must not be assumed to be side-effect free.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, message string) error

// Notify calls f(ctx, message).
func (f NotifierFunc) Notify(ctx context.Context, message string) error {
	return f(ctx, message)
}

// Announce delivers the greeting for name through n.
func Announce(ctx context.Context, n Notifier, name string) error {
	return n.Notify(ctx, Greet(name))
}
