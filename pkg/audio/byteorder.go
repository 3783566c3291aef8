// ABOUTME: Sample byte-order conversion
// ABOUTME: Swaps big-endian wire samples to little-endian and back
package audio

// SwapBytes reverses the byte order of every sample in data, in place.
// 8-bit data is left untouched. Trailing bytes that do not form a whole
// sample are ignored.
func SwapBytes(data []byte, bitDepth int) {
	width := bitDepth / 8
	if width < 2 {
		return
	}
	n := len(data) - len(data)%width
	for i := 0; i < n; i += width {
		s := data[i : i+width]
		for a, b := 0, width-1; a < b; a, b = a+1, b-1 {
			s[a], s[b] = s[b], s[a]
		}
	}
}
