package traits

import "fmt"

// Color is an 8-bit RGB color.
type Color struct {
	R, G, B uint8
}

// Hex returns the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Channel clamps v to [0, 255] and rounds it to a color channel.
func Channel(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Palette is a named set of themed colors.
type Palette struct {
	Name   string
	Colors []Color
}

// Palettes lists the themes an organism can be drawn from, in selection order.
var Palettes = []Palette{
	{Name: "ember", Colors: []Color{{255, 94, 58}, {255, 149, 0}, {255, 204, 0}, {204, 51, 0}, {128, 32, 16}}},
	{Name: "ocean", Colors: []Color{{0, 119, 182}, {0, 180, 216}, {144, 224, 239}, {3, 4, 94}, {72, 202, 228}}},
	{Name: "forest", Colors: []Color{{45, 106, 79}, {64, 145, 108}, {82, 183, 136}, {116, 198, 157}, {27, 67, 50}}},
	{Name: "aurora", Colors: []Color{{114, 9, 183}, {247, 37, 133}, {76, 201, 240}, {67, 97, 238}, {58, 12, 163}}},
	{Name: "void", Colors: []Color{{20, 20, 30}, {60, 60, 90}, {110, 100, 160}, {200, 200, 220}, {90, 30, 120}}},
}

// PaletteByName returns the palette with the given name.
func PaletteByName(name string) (Palette, bool) {
	for _, p := range Palettes {
		if p.Name == name {
			return p, true
		}
	}
	return Palette{}, false
}
