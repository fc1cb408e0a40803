package wasm

// Import module and names the engine expects the host to provide.
const (
	HostModuleName = "env"
	ImportAlert    = "alert"
)

// Export names of the engine module.
const (
	ExportGreet              = "greet"
	ExportComputePhysicsStep = "compute_physics_step"
	ExportAnnounce           = "announce"
	ExportAllocate           = "allocate"
	ExportDeallocate         = "deallocate"
	ExportMemory             = "memory"
)

// InitializeFunction is run once after instantiation of a wasip1 reactor.
const InitializeFunction = "_initialize"

// MemoryExports lists the exports every engine module must provide so the
// host can move text across the boundary.
var MemoryExports = []string{ExportAllocate, ExportDeallocate}
