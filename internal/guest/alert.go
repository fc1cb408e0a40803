//go:build wasip1

package guest

import (
	"context"

	"github.com/lipawealth/lipa-engine/internal/boundary"
)

//go:wasmimport env alert
func hostAlert(ptr, length uint32)

// HostAlert notifies the host through its alert import.
type HostAlert struct{}

// Notify passes message to env.alert. The host owns the argument buffer
// afterwards and releases it once the enclosing export returns.
func (HostAlert) Notify(ctx context.Context, message string) error {
	return boundary.CallOut(ctx, Memory, Heap, message, hostAlert)
}
