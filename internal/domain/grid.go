package domain

// YOrigin names the vertical origin convention of a raster field.
type YOrigin string

const (
	// YOriginUpper places row 0 at the upper border of the field.
	YOriginUpper YOrigin = "upper"
	// YOriginLower places row 0 at the lower border of the field.
	YOriginLower YOrigin = "lower"
)

// GridExtent describes the projected planar coordinates of a field's
// lower-left (X1, Y1) and upper-right (X2, Y2) corners, together with
// the Y-axis origin convention of the raster.
type GridExtent struct {
	X1, Y1  float64
	X2, Y2  float64
	YOrigin YOrigin
}

// Valid reports whether the extent spans a non-empty area and carries a
// known origin convention.
func (e GridExtent) Valid() bool {
	if e.X2 <= e.X1 || e.Y2 <= e.Y1 {
		return false
	}
	return e.YOrigin == YOriginUpper || e.YOrigin == YOriginLower
}
