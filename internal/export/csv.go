// Package export writes scan results as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/stagescan/internal/scan"
)

// WriteCSV writes the measurements of res to w. Without a header the output
// is the bare measurements: one row for a line scan, one row per x position
// for a raster. With a header, a raster gains a leading row of y positions and
// a leading column of x positions, and a line scan gains a row of scan-axis
// positions.
func WriteCSV(w io.Writer, res *scan.Result, withHeader bool) error {
	cw := csv.NewWriter(w)

	switch res.Kind {
	case scan.Kind1D:
		if withHeader {
			axis := "position"
			if res.Line != nil {
				axis = res.Line.Axis.String()
			}
			if err := cw.Write(append([]string{axis}, formatRow(res.Coords())...)); err != nil {
				return err
			}
			if err := cw.Write(append([]string{"value"}, formatRow(res.Values)...)); err != nil {
				return err
			}
		} else if err := cw.Write(formatRow(res.Values)); err != nil {
			return err
		}

	case scan.Kind2D:
		xs := res.XCoords()
		if withHeader {
			if err := cw.Write(append([]string{`x\y`}, formatRow(res.YCoords())...)); err != nil {
				return err
			}
		}
		for i, row := range res.Grid {
			record := formatRow(row)
			if withHeader && i < len(xs) {
				record = append([]string{formatFloat(xs[i])}, record...)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("cannot export scan %s of kind %q", res.ID, res.Kind)
	}

	cw.Flush()
	return cw.Error()
}

func formatRow(vs []float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = formatFloat(v)
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
