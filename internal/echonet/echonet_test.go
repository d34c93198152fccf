package echonet

import (
	"reflect"
	"testing"
)

const header = "0000000000000000"

func TestDecodeShortInputIsEmpty(t *testing.T) {
	cases := []string{"", "00", "00000000000000"}
	for _, in := range cases {
		got := Decode(in)
		if !reflect.DeepEqual(got, Properties{}) {
			t.Fatalf("input %q: expected empty properties, got %+v", in, got)
		}
	}
}

func TestDecodeInvalidHexIsEmpty(t *testing.T) {
	got := Decode("zzzzzzzzzzzzzzzzzz")
	if !reflect.DeepEqual(got, Properties{}) {
		t.Fatalf("expected empty properties, got %+v", got)
	}
}

func TestDecodePowerStatus(t *testing.T) {
	cases := []struct {
		blob string
		want string
	}{
		{header + "800130", "on"},
		{header + "800131", "off"},
		{header + "800142", "0x42"},
	}
	for _, tc := range cases {
		got := Decode(tc.blob)
		if got.Power == nil || *got.Power != tc.want {
			t.Fatalf("blob %s: expected power %q, got %v", tc.blob, tc.want, got.Power)
		}
	}
}

func TestDecodeIdempotent(t *testing.T) {
	blob := header + "800130" + "84020064" + "8b03312e30" + "a00141"
	first := Decode(blob)
	second := Decode(blob)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decode not idempotent: %+v vs %+v", first, second)
	}
}

func TestDecodeNumericTags(t *testing.T) {
	// 0x84 = 100 W (2 bytes), 0x85 = 70000 Wh (4 bytes), 0x88 fault = 0x41.
	blob := header + "84020064" + "850400011170" + "880141"
	got := Decode(blob)
	if got.PowerWatts == nil || *got.PowerWatts != 100 {
		t.Fatalf("expected 100 W, got %v", got.PowerWatts)
	}
	if got.EnergyWh == nil || *got.EnergyWh != 70000 {
		t.Fatalf("expected 70000 Wh, got %v", got.EnergyWh)
	}
	if got.Fault == nil || !*got.Fault {
		t.Fatalf("expected fault true, got %v", got.Fault)
	}
}

func TestDecodeFirmwareAndAirflow(t *testing.T) {
	// 0x8B = "1.0" ASCII, 0xA0 = level 3.
	blob := header + "8b03312e30" + "a00133"
	got := Decode(blob)
	if got.Firmware == nil || *got.Firmware != "1.0" {
		t.Fatalf("expected firmware 1.0, got %v", got.Firmware)
	}
	if got.Airflow == nil || *got.Airflow != "level_3" {
		t.Fatalf("expected airflow level_3, got %v", got.Airflow)
	}
}

func TestDecodeTruncatedRecordDropped(t *testing.T) {
	// Power record followed by a record whose declared length overruns the
	// buffer; the trailing record is dropped, the leading one kept.
	blob := header + "800130" + "84ff00"
	got := Decode(blob)
	if got.Power == nil || *got.Power != "on" {
		t.Fatalf("expected power on, got %v", got.Power)
	}
	if got.PowerWatts != nil {
		t.Fatalf("expected truncated watts record dropped, got %v", *got.PowerWatts)
	}
}

func TestDecodeUnknownTagIgnored(t *testing.T) {
	blob := header + "990104" + "800130"
	got := Decode(blob)
	if got.Power == nil || *got.Power != "on" {
		t.Fatalf("expected power on despite unknown tag, got %v", got.Power)
	}
}

func TestDecodeStateDetailShortVariant(t *testing.T) {
	// 5-byte 0xF1 block: temperature (signed) and humidity only, no
	// sensor group.
	blob := header + "f105" + "000000fb2d"
	got := Decode(blob)
	if got.TemperatureC == nil || *got.TemperatureC != -5 {
		t.Fatalf("expected -5 C, got %v", got.TemperatureC)
	}
	if got.HumidityPct == nil || *got.HumidityPct != 45 {
		t.Fatalf("expected 45%%, got %v", got.HumidityPct)
	}
	if got.PCISensor != nil || got.FilterUsage != nil || got.Dust != nil {
		t.Fatalf("short block must omit sensor fields, got %+v", got)
	}
}

func TestDecodeStateDetailFullVariant(t *testing.T) {
	f1 := make([]byte, 40)
	f1[3] = 0x16 // 22 C
	f1[4] = 0x28 // 40 %
	f1[15], f1[16] = 0x01, 0x02
	f1[21], f1[22], f1[23], f1[24] = 0x00, 0x00, 0x10, 0x01
	f1[29], f1[30] = 0x00, 0x0a
	f1[31], f1[32] = 0x00, 0x0b
	f1[35], f1[36] = 0x00, 0x0c
	f1[37] = 0x07
	blob := header + "f128" + hexOf(f1)
	got := Decode(blob)
	if got.TemperatureC == nil || *got.TemperatureC != 22 {
		t.Fatalf("expected 22 C, got %v", got.TemperatureC)
	}
	if got.PCISensor == nil || *got.PCISensor != 0x0102 {
		t.Fatalf("expected pci 0x0102, got %v", got.PCISensor)
	}
	if got.FilterUsage == nil || *got.FilterUsage != 0x1001 {
		t.Fatalf("expected filter usage 0x1001, got %v", got.FilterUsage)
	}
	if got.Dust == nil || *got.Dust != 10 {
		t.Fatalf("expected dust 10, got %v", got.Dust)
	}
	if got.Smell == nil || *got.Smell != 11 {
		t.Fatalf("expected smell 11, got %v", got.Smell)
	}
	if got.HumidityFilter == nil || *got.HumidityFilter != 12 {
		t.Fatalf("expected humidity filter 12, got %v", got.HumidityFilter)
	}
	if got.LightSensor == nil || *got.LightSensor != 7 {
		t.Fatalf("expected light 7, got %v", got.LightSensor)
	}
}

func TestDecodeModeBlock(t *testing.T) {
	f3 := make([]byte, 27)
	f3[4] = 0x14  // Silent
	f3[15] = 0xFF // humidify on
	blob := header + "f31b" + hexOf(f3)
	got := Decode(blob)
	if got.OperationMode == nil || *got.OperationMode != "Silent" {
		t.Fatalf("expected Silent, got %v", got.OperationMode)
	}
	if got.Humidify == nil || !*got.Humidify {
		t.Fatalf("expected humidify on, got %v", got.Humidify)
	}
}

func TestDecodeModeBlockShortVariant(t *testing.T) {
	f3 := make([]byte, 5)
	f3[4] = 0x20 // AI Auto
	blob := header + "f305" + hexOf(f3)
	got := Decode(blob)
	if got.OperationMode == nil || *got.OperationMode != "AI Auto" {
		t.Fatalf("expected AI Auto, got %v", got.OperationMode)
	}
	if got.Humidify != nil {
		t.Fatalf("short mode block must omit humidify, got %v", *got.Humidify)
	}
}

func TestDecodeUnknownModeHexFallback(t *testing.T) {
	f3 := make([]byte, 5)
	f3[4] = 0x99
	blob := header + "f305" + hexOf(f3)
	got := Decode(blob)
	if got.OperationMode == nil || *got.OperationMode != "0x99" {
		t.Fatalf("expected hex fallback, got %v", got.OperationMode)
	}
}

func hexOf(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}
