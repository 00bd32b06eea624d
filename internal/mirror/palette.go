package mirror

// palette maps the RGB value of every paintable color to its color id.
var palette = map[[3]uint8]int{
	{0, 0, 0}:       1,
	{60, 60, 60}:    2,
	{120, 120, 120}: 3,
	{170, 170, 170}: 32,
	{210, 210, 210}: 4,
	{255, 255, 255}: 5,
	{96, 0, 24}:     6,
	{165, 14, 30}:   33,
	{237, 28, 36}:   7,
	{250, 128, 114}: 34,
	{228, 92, 26}:   35,
	{255, 127, 39}:  8,
	{246, 170, 9}:   9,
	{249, 221, 59}:  10,
	{255, 250, 188}: 11,
	{156, 132, 49}:  37,
	{197, 173, 49}:  38,
	{232, 212, 95}:  39,
	{74, 107, 58}:   40,
	{90, 148, 74}:   41,
	{132, 197, 115}: 42,
	{14, 185, 104}:  12,
	{19, 230, 123}:  13,
	{135, 255, 94}:  14,
	{12, 129, 110}:  15,
	{16, 174, 166}:  16,
	{19, 225, 190}:  17,
	{15, 121, 159}:  43,
	{96, 247, 242}:  20,
	{187, 250, 242}: 44,
	{40, 80, 158}:   18,
	{64, 147, 228}:  19,
	{125, 199, 255}: 45,
	{77, 49, 184}:   46,
	{107, 80, 246}:  21,
	{153, 177, 251}: 22,
	{74, 66, 132}:   47,
	{122, 113, 196}: 48,
	{181, 174, 241}: 49,
	{120, 12, 153}:  23,
	{170, 56, 185}:  24,
	{224, 159, 249}: 25,
	{203, 0, 122}:   26,
	{236, 31, 128}:  27,
	{243, 141, 169}: 28,
	{155, 82, 73}:   53,
	{209, 128, 120}: 54,
	{250, 182, 164}: 55,
	{104, 70, 52}:   29,
	{149, 104, 42}:  30,
	{219, 164, 99}:  50,
	{123, 99, 82}:   56,
	{156, 132, 107}: 57,
	{214, 181, 148}: 36,
	{209, 128, 81}:  51,
	{248, 178, 119}: 31,
	{255, 197, 165}: 52,
	{109, 100, 63}:  61,
	{148, 140, 107}: 62,
	{205, 197, 158}: 63,
	{51, 57, 65}:    58,
	{109, 117, 141}: 59,
	{179, 185, 209}: 60,
}

// ColorID returns the palette id of an RGB value.
func ColorID(r, g, b uint8) (int, bool) {
	id, ok := palette[[3]uint8{r, g, b}]
	return id, ok
}
