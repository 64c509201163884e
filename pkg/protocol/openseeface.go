package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// OpenSeeFace packet layout (little endian), one face per datagram:
//
//	f64 timestamp, i32 face id, f32 width, f32 height,
//	f32 eye blink left, f32 eye blink right, u8 success, f32 pnp error,
//	4×f32 quaternion, 3×f32 euler (pitch, yaw, roll), 3×f32 translation,
//	68×f32 confidence, 68×(f32 y, f32 x),
//	optional 2×f32 eye features.
const (
	LandmarkCount = 68

	headerSize = 8 + 4 + 4 + 4 + 4 + 4 + 1 + 4 + 16 + 12 + 12

	// PacketSize is the smallest valid datagram.
	PacketSize = headerSize + LandmarkCount*4 + LandmarkCount*8
	// PacketSizeWithFeatures includes the trailing eye features.
	PacketSizeWithFeatures = PacketSize + 8
)

// Tracker defaults.
const (
	DefaultUDPAddr   = "127.0.0.1:11573"
	DefaultBridgeURL = "ws://localhost:8765"
)

// ErrShortPacket is returned when a datagram is smaller than PacketSize.
var ErrShortPacket = errors.New("openseeface: short packet")

type packetReader struct {
	buf []byte
	off int
}

func (r *packetReader) f64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v
}

func (r *packetReader) f32() float64 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return float64(v)
}

func (r *packetReader) i32() int32 {
	v := int32(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v
}

func (r *packetReader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

// DecodeOpenSeeFace parses one tracker datagram. Bytes past the optional
// eye features are ignored.
func DecodeOpenSeeFace(b []byte) (*TrackingData, error) {
	if len(b) < PacketSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortPacket, len(b), PacketSize)
	}

	r := &packetReader{buf: b}
	d := &TrackingData{
		Timestamp:     r.f64(),
		FaceID:        r.i32(),
		Width:         r.f32(),
		Height:        r.f32(),
		EyeBlinkLeft:  r.f32(),
		EyeBlinkRight: r.f32(),
		Success:       r.u8() == 1,
		PnPError:      r.f32(),
	}
	for i := range d.Quaternion {
		d.Quaternion[i] = r.f32()
	}
	var euler [3]float64
	for i := range euler {
		euler[i] = r.f32()
	}
	d.Euler = &euler
	for i := range d.Translation {
		d.Translation[i] = r.f32()
	}

	d.Landmarks = make([]TrackedPoint, LandmarkCount)
	for i := range d.Landmarks {
		d.Landmarks[i].Confidence = r.f32()
	}
	for i := range d.Landmarks {
		d.Landmarks[i].Y = r.f32()
		d.Landmarks[i].X = r.f32()
	}

	if len(b) >= PacketSizeWithFeatures {
		d.Features = &EyeFeatures{EyeLeft: r.f32(), EyeRight: r.f32()}
	}
	d.clean()
	return d, nil
}

type packetWriter struct {
	buf []byte
}

func (w *packetWriter) f64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *packetWriter) f32(v float64) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(float32(v)))
}

// EncodeOpenSeeFace serializes d in the tracker's datagram layout. Missing
// landmarks are written as zeros; extra landmarks are dropped.
func EncodeOpenSeeFace(d *TrackingData) []byte {
	size := PacketSize
	if d.Features != nil {
		size = PacketSizeWithFeatures
	}
	w := &packetWriter{buf: make([]byte, 0, size)}

	w.f64(d.Timestamp)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(d.FaceID))
	w.f32(d.Width)
	w.f32(d.Height)
	w.f32(d.EyeBlinkLeft)
	w.f32(d.EyeBlinkRight)
	if d.Success {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	w.f32(d.PnPError)
	for _, v := range d.Quaternion {
		w.f32(v)
	}
	var euler [3]float64
	if d.Euler != nil {
		euler = *d.Euler
	}
	for _, v := range euler {
		w.f32(v)
	}
	for _, v := range d.Translation {
		w.f32(v)
	}

	var pts [LandmarkCount]TrackedPoint
	copy(pts[:], d.Landmarks)
	for _, p := range pts {
		w.f32(p.Confidence)
	}
	for _, p := range pts {
		w.f32(p.Y)
		w.f32(p.X)
	}

	if d.Features != nil {
		w.f32(d.Features.EyeLeft)
		w.f32(d.Features.EyeRight)
	}
	return w.buf
}
