package deck

import (
	"encoding/binary"
	"fmt"

	"github.com/deckpilot/deckd/internal/render"
)

// BitmapEncoder produces the 72x72 bottom-up BGR bitmap the 15-key
// hardware expects, filled with the visual's background color. Text and
// status lines ride on the visual for richer encoders; this one keeps the
// wire format honest with color alone.
type BitmapEncoder struct{}

const bmpHeaderSize = 54

func (BitmapEncoder) Encode(visual render.KeyVisual) ([]byte, error) {
	r, g, b, err := splitHex(visual.Background)
	if err != nil {
		return nil, err
	}
	pixels := keyImageSize * keyImageSize * 3
	out := make([]byte, bmpHeaderSize+pixels)

	out[0] = 'B'
	out[1] = 'M'
	binary.LittleEndian.PutUint32(out[2:], uint32(len(out)))
	binary.LittleEndian.PutUint32(out[10:], bmpHeaderSize)
	binary.LittleEndian.PutUint32(out[14:], 40)
	binary.LittleEndian.PutUint32(out[18:], keyImageSize)
	binary.LittleEndian.PutUint32(out[22:], keyImageSize)
	binary.LittleEndian.PutUint16(out[26:], 1)
	binary.LittleEndian.PutUint16(out[28:], 24)
	binary.LittleEndian.PutUint32(out[34:], uint32(pixels))

	for i := bmpHeaderSize; i < len(out); i += 3 {
		out[i] = b
		out[i+1] = g
		out[i+2] = r
	}
	return out, nil
}

func splitHex(hex string) (r, g, b byte, err error) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0, fmt.Errorf("bad color %q", hex)
	}
	var pr, pg, pb int
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &pr, &pg, &pb); err != nil {
		return 0, 0, 0, fmt.Errorf("bad color %q: %w", hex, err)
	}
	return byte(pr), byte(pg), byte(pb), nil
}
