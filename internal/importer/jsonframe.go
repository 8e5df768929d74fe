package importer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/meteoworks/radarbias/internal/domain"
)

// jsonFrame is the on-disk layout of a synthetic composite. Values are
// row-major with row 0 at the border named by the extent's y_origin.
type jsonFrame struct {
	Unit       string        `json:"unit"`
	Projection string        `json:"projection,omitempty"`
	Extent     *jsonExtent   `json:"extent,omitempty"`
	Values     [][]jsonValue `json:"values"`
}

// jsonValue is one rain-rate cell. No-data cells are NaN in memory and
// null on disk, since encoding/json rejects NaN.
type jsonValue float64

func (v jsonValue) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(v)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(v))
}

func (v *jsonValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = jsonValue(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = jsonValue(f)
	return nil
}

type jsonExtent struct {
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	X2      float64 `json:"x2"`
	Y2      float64 `json:"y2"`
	YOrigin string  `json:"y_origin"`
}

// ImportJSONFrame reads a JSON frame file into a dense rain-rate field.
func ImportJSONFrame(path string) (*mat.Dense, Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("read frame %s: %w", path, err)
	}

	var frame jsonFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, Metadata{}, fmt.Errorf("decode frame %s: %w", path, err)
	}
	if len(frame.Values) == 0 || len(frame.Values[0]) == 0 {
		return nil, Metadata{}, fmt.Errorf("decode frame %s: empty rain-rate field", path)
	}

	height := len(frame.Values)
	width := len(frame.Values[0])
	field := mat.NewDense(height, width, nil)
	for y, row := range frame.Values {
		if len(row) != width {
			return nil, Metadata{}, fmt.Errorf("decode frame %s: ragged row %d", path, y)
		}
		for x, v := range row {
			field.Set(y, x, float64(v))
		}
	}

	meta := Metadata{Projection: frame.Projection, Unit: frame.Unit}
	if frame.Extent != nil {
		meta.Extent = domain.GridExtent{
			X1: frame.Extent.X1, Y1: frame.Extent.Y1,
			X2: frame.Extent.X2, Y2: frame.Extent.Y2,
			YOrigin: domain.YOrigin(frame.Extent.YOrigin),
		}
	}
	return field, meta, nil
}

// WriteJSONFrame writes a field and its metadata as a JSON frame file.
// Used by the fixture generator and the composite correction command.
func WriteJSONFrame(path string, field *mat.Dense, meta Metadata) error {
	height, width := field.Dims()
	frame := jsonFrame{
		Unit:       meta.Unit,
		Projection: meta.Projection,
		Values:     make([][]jsonValue, height),
	}
	for y := 0; y < height; y++ {
		row := make([]jsonValue, width)
		for x := 0; x < width; x++ {
			row[x] = jsonValue(field.At(y, x))
		}
		frame.Values[y] = row
	}
	if meta.Extent != (domain.GridExtent{}) {
		frame.Extent = &jsonExtent{
			X1: meta.Extent.X1, Y1: meta.Extent.Y1,
			X2: meta.Extent.X2, Y2: meta.Extent.Y2,
			YOrigin: string(meta.Extent.YOrigin),
		}
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write frame %s: %w", path, err)
	}
	return nil
}
