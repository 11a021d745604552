package model

import (
	"fmt"
	"strings"
)

// Kind is the closed set of sub-device variants this integration understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindWaterFlowMeter
)

func (k Kind) String() string {
	switch k {
	case KindWaterFlowMeter:
		return "water_flow_meter"
	default:
		return "unknown"
	}
}

// FriendlyDesc is the human readable device description used for entity naming.
func (k Kind) FriendlyDesc() string {
	switch k {
	case KindWaterFlowMeter:
		return "Water Flow Meter"
	default:
		return "Unknown Device"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "water_flow_meter":
		*k = KindWaterFlowMeter
	default:
		*k = KindUnknown
	}
	return nil
}

// DefaultFlowMeterModelCodes are the vendor model codes reported by RainPoint flow meters.
var DefaultFlowMeterModelCodes = []int{297}

// KindResolver maps a vendor model code onto a Kind.
type KindResolver map[int]Kind

func NewKindResolver(flowMeterCodes []int) KindResolver {
	r := KindResolver{}
	for _, code := range flowMeterCodes {
		r[code] = KindWaterFlowMeter
	}
	return r
}

func (r KindResolver) Resolve(modelCode int) Kind {
	if k, ok := r[modelCode]; ok {
		return k
	}
	return KindUnknown
}

// HubDisplayAddress is the address a hub reports for its own display unit.
const HubDisplayAddress = 1

func StatusID(address int) string {
	return fmt.Sprintf("D%02d", address)
}

type NumericUnit string

const (
	NumericUnitLitre NumericUnit = "L"
	NumericUnitDBm   NumericUnit = "dBm"
	NumericUnitNone  NumericUnit = ""
)

type (
	TextSensor  string
	TextSensorz []TextSensor
)

const (
	TimestampTextSensor TextSensor = "timestamp"
)

func (t TextSensor) String() string {
	return string(t)
}

func (ts TextSensorz) HasSlug(slug string) bool {
	for _, t := range ts {
		if strings.EqualFold(t.String(), slug) {
			return true
		}
	}
	return false
}

var TextSensors TextSensorz = TextSensorz{
	TimestampTextSensor,
}
