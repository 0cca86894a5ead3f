package device

// Vec3 is a position or direction in listener space
type Vec3 struct {
	X, Y, Z float32
}

// Orientation is the listener's facing ("at") and up vectors
type Orientation struct {
	At Vec3
	Up Vec3
}

// Listener holds the global listener parameters. Gain scales every source;
// the spatial fields are stored for callers but do not change the mix.
type Listener struct {
	Gain        float32
	Position    Vec3
	Velocity    Vec3
	Orientation Orientation
}

// DefaultListener returns unit gain at the origin, facing -Z with +Y up
func DefaultListener() Listener {
	return Listener{
		Gain: 1,
		Orientation: Orientation{
			At: Vec3{Z: -1},
			Up: Vec3{Y: 1},
		},
	}
}
