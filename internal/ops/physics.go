package ops

// Gravity is the gravitational acceleration applied by ComputePhysicsStep, in m/s².
const Gravity float32 = 9.81

// ComputePhysicsStep returns the velocity change under gravity over dt.
//
// It stands in for a future integrator. Any successor must stay
// bit-reproducible: identical explicit inputs give identical bits, with no
// hidden state or randomness. Simulation state belongs to the caller.
func ComputePhysicsStep(dt float32) float32 {
	// The conversion forces rounding to single precision.
	return float32(dt * Gravity)
}
