package room

import "math"

// Vec3 is a world-space position. Y is up.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Bounds is an axis-aligned box.
type Bounds struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Spec describes a room floor: a plane centred on Center with a footprint of SizeX by SizeZ,
// extruded upward by Height starting YOffset above the plane.
type Spec struct {
	Name    string  `json:"name" yaml:"name"`
	Center  Vec3    `json:"center" yaml:"center"`
	SizeX   float64 `json:"size_x" yaml:"size_x"`
	SizeZ   float64 `json:"size_z" yaml:"size_z"`
	Height  float64 `json:"height" yaml:"height"`
	YOffset float64 `json:"y_offset" yaml:"y_offset"`
}

// Bounds returns the box occupied by the room. Height is clamped to 0.01.
func (s Spec) Bounds() Bounds {
	yMin := s.Center.Y + s.YOffset
	yMax := yMin + math.Max(0.01, s.Height)
	return Bounds{
		Min: Vec3{X: s.Center.X - s.SizeX/2, Y: yMin, Z: s.Center.Z - s.SizeZ/2},
		Max: Vec3{X: s.Center.X + s.SizeX/2, Y: yMax, Z: s.Center.Z + s.SizeZ/2},
	}
}

// Lookup is the point-in-room oracle used by the simulation.
type Lookup interface {
	RoomIndex(pos Vec3) int
}

// Layout is the default box-based Lookup. Room order is the room index.
type Layout struct {
	rooms []Spec
}

// NewLayout builds a layout from room specs.
func NewLayout(rooms []Spec) *Layout {
	cp := make([]Spec, len(rooms))
	copy(cp, rooms)
	return &Layout{rooms: cp}
}

// DefaultLayout places the three rooms side by side along X, 10x10 floors, 3 high.
func DefaultLayout() *Layout {
	return NewLayout([]Spec{
		{Name: "RoomS", Center: Vec3{X: -12}, SizeX: 10, SizeZ: 10, Height: 3},
		{Name: "RoomN", Center: Vec3{X: 0}, SizeX: 10, SizeZ: 10, Height: 3},
		{Name: "RoomF", Center: Vec3{X: 12}, SizeX: 10, SizeZ: 10, Height: 3},
	})
}

// RoomCount returns the number of rooms in the layout.
func (l *Layout) RoomCount() int {
	return len(l.rooms)
}

// Spec returns the spec of room i.
func (l *Layout) Spec(i int) (Spec, bool) {
	if i < 0 || i >= len(l.rooms) {
		return Spec{}, false
	}
	return l.rooms[i], true
}

// RoomIndex returns the first room containing pos, or NoRoom.
func (l *Layout) RoomIndex(pos Vec3) int {
	for i := range l.rooms {
		if l.rooms[i].Bounds().Contains(pos) {
			return i
		}
	}
	return NoRoom
}

// FloorY returns the floor height of room i.
func (l *Layout) FloorY(i int) (float64, bool) {
	s, ok := l.Spec(i)
	if !ok {
		return 0, false
	}
	return s.Center.Y + s.YOffset, true
}

// ToNormalizedXZ maps pos into [0,1]x[0,1] relative to room i's footprint.
func (l *Layout) ToNormalizedXZ(i int, pos Vec3) (nx, nz float64, ok bool) {
	s, ok := l.Spec(i)
	if !ok {
		return 0, 0, false
	}
	b := s.Bounds()
	return inverseLerp(b.Min.X, b.Max.X, pos.X), inverseLerp(b.Min.Z, b.Max.Z, pos.Z), true
}

// FromNormalizedXZ maps normalized coordinates back into room i's footprint.
func (l *Layout) FromNormalizedXZ(i int, nx, nz float64) (x, z float64, ok bool) {
	s, ok := l.Spec(i)
	if !ok {
		return 0, 0, false
	}
	b := s.Bounds()
	return lerp(b.Min.X, b.Max.X, nx), lerp(b.Min.Z, b.Max.Z, nz), true
}

// TeleportTarget computes where a body at pos lands in room target, keeping its relative XZ
// position and lifting it yOffset above its current height. It fails for an invalid target or
// when pos is outside every room.
func (l *Layout) TeleportTarget(pos Vec3, target int, yOffset float64) (Vec3, bool) {
	if target < 0 || target >= len(l.rooms) {
		return Vec3{}, false
	}
	from := l.RoomIndex(pos)
	if from == NoRoom {
		return Vec3{}, false
	}

	nx, nz, _ := l.ToNormalizedXZ(from, pos)
	x, z, _ := l.FromNormalizedXZ(target, nx, nz)

	out := Vec3{X: x, Y: pos.Y + yOffset, Z: z}

	// Snap onto the target floor when the source and target floors differ.
	fromFloor, _ := l.FloorY(from)
	toFloor, _ := l.FloorY(target)
	out.Y += toFloor - fromFloor
	return out, true
}

func lerp(a, b, t float64) float64 {
	t = clamp01(t)
	return a + (b-a)*t
}

func inverseLerp(a, b, v float64) float64 {
	if a == b {
		return 0
	}
	return clamp01((v - a) / (b - a))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
