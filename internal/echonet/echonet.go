// Package echonet decodes the ECHONET Lite property blob embedded in the
// Sharp cloud device listing. The blob is a hex string: an 8-byte header
// followed by tag/length/value records, with two Sharp-proprietary
// multi-byte blocks (0xF1, 0xF3) carrying sensor and mode data.
package echonet

import (
	"encoding/hex"
	"fmt"
)

// Properties is the decoded point-in-time state of one device. Every field
// is optional: a tag missing from the blob leaves its field nil.
type Properties struct {
	Power          *string `json:"power,omitempty"`
	PowerWatts     *int    `json:"power_watts,omitempty"`
	EnergyWh       *int    `json:"energy_wh,omitempty"`
	Fault          *bool   `json:"fault,omitempty"`
	Firmware       *string `json:"firmware,omitempty"`
	Airflow        *string `json:"airflow,omitempty"`
	CleaningMode   *string `json:"cleaning_mode,omitempty"`
	TemperatureC   *int    `json:"temperature_c,omitempty"`
	HumidityPct    *int    `json:"humidity_pct,omitempty"`
	PCISensor      *int    `json:"pci_sensor,omitempty"`
	FilterUsage    *int    `json:"filter_usage,omitempty"`
	Dust           *int    `json:"dust,omitempty"`
	Smell          *int    `json:"smell,omitempty"`
	HumidityFilter *int    `json:"humidity_filter,omitempty"`
	LightSensor    *int    `json:"light_sensor,omitempty"`
	OperationMode  *string `json:"operation_mode,omitempty"`
	Humidify       *bool   `json:"humidify,omitempty"`
}

var operationModes = map[byte]string{
	0x10: "Auto",
	0x11: "Night",
	0x13: "Pollen",
	0x14: "Silent",
	0x15: "Medium",
	0x16: "High",
	0x20: "AI Auto",
	0x40: "Realize",
}

var cleaningModes = map[byte]string{
	0x41: "Cleaning",
	0x42: "Humidifying",
	0x43: "Cleaning + Humidifying",
	0x44: "Off",
}

// Decode parses a hex-encoded property blob. Inputs shorter than 16 hex
// characters, invalid hex, and truncated trailing records all degrade to
// whatever could be read; Decode never fails.
func Decode(hexStr string) Properties {
	var p Properties
	if len(hexStr) < 16 {
		return p
	}
	data, err := hex.DecodeString(hexStr)
	if err != nil {
		return p
	}

	// TLV records start after the 8-byte header.
	raw := map[byte][]byte{}
	for i := 8; i+1 < len(data); {
		code := data[i]
		length := int(data[i+1])
		if i+2+length > len(data) {
			break
		}
		raw[code] = data[i+2 : i+2+length]
		i += 2 + length
	}

	if v, ok := firstByte(raw, 0x80); ok {
		switch v {
		case 0x30:
			p.Power = strPtr("on")
		case 0x31:
			p.Power = strPtr("off")
		default:
			p.Power = strPtr(hexFallback(v))
		}
	}
	if v, ok := raw[0x84]; ok {
		p.PowerWatts = intPtr(beInt(v))
	}
	if v, ok := raw[0x85]; ok {
		p.EnergyWh = intPtr(beInt(v))
	}
	if v, ok := firstByte(raw, 0x88); ok {
		p.Fault = boolPtr(v == 0x41)
	}
	if v, ok := raw[0x8B]; ok {
		p.Firmware = strPtr(string(v))
	}
	if v, ok := firstByte(raw, 0xA0); ok {
		switch {
		case v == 0x41:
			p.Airflow = strPtr("auto")
		case v >= 0x31 && v <= 0x38:
			p.Airflow = strPtr(fmt.Sprintf("level_%d", v-0x30))
		default:
			p.Airflow = strPtr(hexFallback(v))
		}
	}
	if v, ok := firstByte(raw, 0xC0); ok {
		if name, known := cleaningModes[v]; known {
			p.CleaningMode = strPtr(name)
		} else {
			p.CleaningMode = strPtr(hexFallback(v))
		}
	}

	// 0xF1: Sharp proprietary state detail. Shorter variants exist, so
	// each offset group is read only when the block covers it.
	if f1, ok := raw[0xF1]; ok {
		if len(f1) >= 5 {
			p.TemperatureC = intPtr(int(int8(f1[3])))
			p.HumidityPct = intPtr(int(f1[4]))
		}
		if len(f1) >= 38 {
			p.PCISensor = intPtr(int(f1[15])<<8 | int(f1[16]))
			p.FilterUsage = intPtr(int(f1[21])<<24 | int(f1[22])<<16 | int(f1[23])<<8 | int(f1[24]))
			p.Dust = intPtr(int(f1[29])<<8 | int(f1[30]))
			p.Smell = intPtr(int(f1[31])<<8 | int(f1[32]))
			p.HumidityFilter = intPtr(int(f1[35])<<8 | int(f1[36]))
			p.LightSensor = intPtr(int(f1[37]))
		}
	}

	// 0xF3: Sharp proprietary operation mode block.
	if f3, ok := raw[0xF3]; ok {
		if len(f3) >= 5 {
			if name, known := operationModes[f3[4]]; known {
				p.OperationMode = strPtr(name)
			} else {
				p.OperationMode = strPtr(hexFallback(f3[4]))
			}
		}
		if len(f3) >= 16 {
			p.Humidify = boolPtr(f3[15] == 0xFF)
		}
	}

	return p
}

func firstByte(raw map[byte][]byte, code byte) (byte, bool) {
	v, ok := raw[code]
	if !ok || len(v) == 0 {
		return 0, false
	}
	return v[0], true
}

func beInt(v []byte) int {
	n := 0
	for _, b := range v {
		n = n<<8 | int(b)
	}
	return n
}

func hexFallback(v byte) string {
	return fmt.Sprintf("0x%02X", v)
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }
