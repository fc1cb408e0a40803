package wasm

import (
	"context"
	"errors"
	"sync"

	abi "github.com/lipawealth/lipa-engine/api/wasm"
	"github.com/lipawealth/lipa-engine/internal/boundary"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// HostFunctionsImpl implements the host capabilities engine modules import.
type HostFunctionsImpl struct {
	logger  *zap.Logger
	alerter abi.Alerter
}

// NewHostFunctions creates a new host functions implementation.
// alerter may be nil, in which case alerts are only logged.
func NewHostFunctions(logger *zap.Logger, alerter abi.Alerter) *HostFunctionsImpl {
	return &HostFunctionsImpl{
		logger:  logger.With(zap.String("component", "wasm-host")),
		alerter: alerter,
	}
}

// alert is called by Wasm modules to notify the host.
// Signature: alert(ptr, length)
//
// The buffer belongs to the host once the import is invoked. It cannot be
// released from inside the import, so it is queued and freed by the caller
// of the enclosing export.
func (h *HostFunctionsImpl) alert(ctx context.Context, mod api.Module, ptr uint32, length uint32) {
	if q := pendingFrom(ctx); q != nil {
		q.add(ptr, length)
	} else if length > 0 {
		h.logger.Warn("Alert buffer cannot be released outside an instance call",
			zap.String("module", mod.Name()),
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
	}

	msg, err := readAlert(mod, ptr, length)
	if err != nil {
		h.logger.Error("Failed to read alert message from Wasm memory",
			zap.String("module", mod.Name()),
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
			zap.Error(err),
		)
		return
	}

	h.logger.Info("Module alert",
		zap.String("module", mod.Name()),
		zap.String("message", msg),
	)

	if h.alerter != nil {
		h.alerter.Alert(ctx, msg)
	}
}

// readAlert copies the alert argument out of module memory.
func readAlert(mod api.Module, ptr, length uint32) (string, error) {
	mem := mod.Memory()
	if mem == nil {
		return "", &HostFunctionError{FunctionName: abi.ImportAlert, Err: errors.New("module has no memory")}
	}
	msg, err := boundary.ReadText(mem, ptr, length)
	if err != nil {
		return "", &HostFunctionError{FunctionName: abi.ImportAlert, Err: err}
	}
	return msg, nil
}

type pendingKey struct{}

// pendingReleases collects buffers handed to the host during one export call.
type pendingReleases struct {
	mu   sync.Mutex
	bufs [][2]uint32
}

func withPendingReleases(ctx context.Context) (context.Context, *pendingReleases) {
	q := &pendingReleases{}
	return context.WithValue(ctx, pendingKey{}, q), q
}

func pendingFrom(ctx context.Context) *pendingReleases {
	q, _ := ctx.Value(pendingKey{}).(*pendingReleases)
	return q
}

func (q *pendingReleases) add(ptr, length uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bufs = append(q.bufs, [2]uint32{ptr, length})
}

func (q *pendingReleases) drain() [][2]uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	bufs := q.bufs
	q.bufs = nil
	return bufs
}
