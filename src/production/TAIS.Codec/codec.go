// Package codec decodes vendor-specific binary sensor payloads. It is a pure
// translation layer: no I/O, no persistence, deterministic for a given input.
//
// Two wire formats are supported. The Cayenne-LPP-style format is a
// (channel, type) tagged TLV stream; the Elsys-style format is a sequential
// single-byte-tag stream. Truncated or unknown trailing bytes terminate the
// parse without error: records decoded before the cut are kept.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

// Codec identifies the binary payload scheme a buffer decoded under.
type Codec string

const (
	CodecCayenne   Codec = "cayenne"
	CodecElsys     Codec = "elsys"
	CodecMilesight Codec = "milesight"
)

// LPP type bytes.
const (
	lppDigitalIn   = 0x00
	lppDigitalOut  = 0x01
	lppAnalogIn    = 0x02
	lppAnalogOut   = 0x03
	lppTemperature = 0x67
	lppHumidity    = 0x68
)

// Elsys tag bytes.
const (
	elsysTemperature = 0x01
	elsysHumidity    = 0x02
	elsysMotion      = 0x0A
)

// Measurement is a single decoded record. Two-byte LPP fields carry both
// byte-order interpretations (ValueBE/ValueLE); the consumer disambiguates
// later. One-byte fields and all Elsys fields carry Value.
type Measurement struct {
	Channel int      `json:"channel,omitempty"`
	Type    int      `json:"type"`
	Name    string   `json:"name"`
	Value   *float64 `json:"value,omitempty"`
	ValueBE *float64 `json:"value_be,omitempty"`
	ValueLE *float64 `json:"value_le,omitempty"`
}

// Result is the outcome of decoding one buffer. Codec is empty when neither
// format produced a record. PrimaryValue is the single scalar selected to
// stand in for the whole payload, nil when nothing qualified.
type Result struct {
	Codec        Codec         `json:"codec,omitempty"`
	Records      []Measurement `json:"records"`
	PrimaryValue *float64      `json:"primary_value,omitempty"`
}

var hexPattern = regexp.MustCompile(`^[0-9A-Fa-f\s]+$`)

// BytesFromDataField converts the "data" field of an uplink envelope into raw
// bytes. Hex (optionally space-separated) is tried first, base64 second. An
// undecodable string yields nil, which skips the decode step entirely.
func BytesFromDataField(s string) []byte {
	hs := strings.TrimSpace(s)
	if hs == "" {
		return nil
	}
	if hexPattern.MatchString(hs) {
		compact := strings.ReplaceAll(strings.ReplaceAll(hs, " ", ""), "\t", "")
		if b, err := hex.DecodeString(compact); err == nil {
			return b
		}
		return nil
	}
	if b, err := base64.StdEncoding.DecodeString(hs); err == nil {
		return b
	}
	return nil
}

// Decode translates raw payload bytes into typed measurement records. A hint
// forces the matching decoder; without one, the LPP format is tried first and
// wins whenever it yields at least one record, then Elsys. An empty or
// unrecognized buffer returns a Result with no codec and no records.
func Decode(hint Codec, buf []byte) Result {
	if len(buf) == 0 {
		return Result{}
	}
	switch hint {
	case CodecCayenne, "lpp":
		recs, primary := decodeLPP(buf)
		return Result{Codec: CodecCayenne, Records: recs, PrimaryValue: primary}
	case CodecElsys:
		recs, primary := decodeElsys(buf)
		return Result{Codec: CodecElsys, Records: recs, PrimaryValue: primary}
	case CodecMilesight:
		// Milesight payloads are LPP-compatible; only the codec label differs.
		recs, primary := decodeLPP(buf)
		return Result{Codec: CodecMilesight, Records: recs, PrimaryValue: primary}
	}

	if recs, primary := decodeLPP(buf); len(recs) > 0 {
		return Result{Codec: CodecCayenne, Records: recs, PrimaryValue: primary}
	}
	if recs, primary := decodeElsys(buf); len(recs) > 0 {
		return Result{Codec: CodecElsys, Records: recs, PrimaryValue: primary}
	}
	return Result{}
}

func decodeLPP(buf []byte) ([]Measurement, *float64) {
	var out []Measurement
	i := 0
	for i+2 <= len(buf) {
		ch := int(buf[i])
		t := int(buf[i+1])
		i += 2
		switch t {
		case lppAnalogIn, lppAnalogOut, lppTemperature:
			if i+2 > len(buf) {
				return out, selectLPPPrimary(out)
			}
			be := signed16(buf[i], buf[i+1])
			le := signed16(buf[i+1], buf[i])
			i += 2
			div := 100.0
			name := "analog"
			if t == lppTemperature {
				div = 10.0
				name = "temperature"
			}
			out = append(out, Measurement{
				Channel: ch,
				Type:    t,
				Name:    name,
				ValueBE: f64(float64(be) / div),
				ValueLE: f64(float64(le) / div),
			})
		case lppDigitalIn, lppDigitalOut, lppHumidity:
			if i+1 > len(buf) {
				return out, selectLPPPrimary(out)
			}
			b := buf[i]
			i++
			switch t {
			case lppHumidity:
				out = append(out, Measurement{Channel: ch, Type: t, Name: "humidity", Value: f64(float64(b) / 2.0)})
			case lppDigitalIn:
				out = append(out, Measurement{Channel: ch, Type: t, Name: "digital_in", Value: f64(float64(b))})
			case lppDigitalOut:
				out = append(out, Measurement{Channel: ch, Type: t, Name: "digital_out", Value: f64(float64(b))})
			}
		default:
			// Unknown type byte: stop, keep what decoded so far.
			return out, selectLPPPrimary(out)
		}
	}
	return out, selectLPPPrimary(out)
}

// selectLPPPrimary picks the scalar that stands for the whole payload.
// Temperature records are checked first, little-endian before big-endian,
// accepting the first interpretation inside the plausible [-50, 85] range.
// Humidity is next, then the first analog/digital record.
func selectLPPPrimary(records []Measurement) *float64 {
	for _, rec := range records {
		if rec.Name != "temperature" {
			continue
		}
		if rec.ValueLE != nil && *rec.ValueLE >= -50.0 && *rec.ValueLE <= 85.0 {
			return rec.ValueLE
		}
		if rec.ValueBE != nil && *rec.ValueBE >= -50.0 && *rec.ValueBE <= 85.0 {
			return rec.ValueBE
		}
	}
	for _, rec := range records {
		if rec.Name == "humidity" {
			return rec.Value
		}
	}
	for _, rec := range records {
		switch rec.Name {
		case "analog", "digital_in", "digital_out":
			if rec.Value != nil {
				return rec.Value
			}
			if rec.ValueLE != nil {
				return rec.ValueLE
			}
			if rec.ValueBE != nil {
				return rec.ValueBE
			}
		}
	}
	return nil
}

func decodeElsys(buf []byte) ([]Measurement, *float64) {
	var out []Measurement
	var primary *float64
	i := 0
	for i < len(buf) {
		t := int(buf[i])
		i++
		switch {
		case t == elsysTemperature && i+1 < len(buf):
			temp := float64(signed16(buf[i], buf[i+1])) / 10.0
			i += 2
			out = append(out, Measurement{Type: t, Name: "temperature", Value: f64(temp)})
			if primary == nil {
				primary = f64(temp)
			}
		case t == elsysHumidity && i < len(buf):
			rh := float64(buf[i])
			i++
			out = append(out, Measurement{Type: t, Name: "humidity", Value: f64(rh)})
			if primary == nil {
				primary = f64(rh)
			}
		case t == elsysMotion && i < len(buf):
			mv := float64(buf[i])
			i++
			out = append(out, Measurement{Type: t, Name: "motion", Value: f64(mv)})
			if primary == nil {
				primary = f64(mv)
			}
		default:
			return out, primary
		}
	}
	return out, primary
}

func signed16(hi, lo byte) int {
	v := int(hi)<<8 | int(lo)
	if v >= 0x8000 {
		v -= 0x10000
	}
	return v
}

func f64(v float64) *float64 { return &v }
