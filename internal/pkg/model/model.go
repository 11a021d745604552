package model

import "time"

// Credentials are supplied once when a client is built and never change afterwards.
type Credentials struct {
	Username string
	Password string
}

type Home struct {
	HID  int64  `json:"hid"`
	Name string `json:"name"`
}

type Hub struct {
	MID        int64       `json:"mid"`
	HID        int64       `json:"hid"`
	DID        string      `json:"did"`
	Name       string      `json:"name"`
	Model      string      `json:"model"`
	ModelCode  int         `json:"model_code"`
	Online     bool        `json:"online"`
	SubDevices []SubDevice `json:"sub_devices"`
}

type SubDevice struct {
	Address    int     `json:"address"`
	DID        string  `json:"did"`
	Name       string  `json:"name"`
	Model      string  `json:"model"`
	ModelCode  int     `json:"model_code"`
	PortNumber int     `json:"port_number"`
	Kind       Kind    `json:"kind"`
	HubOnline  bool    `json:"hub_online"` // copied from the hub when added to a topology
	Reading    Reading `json:"reading"`
}

func (d SubDevice) IsWaterFlowMeter() bool {
	return d.Kind == KindWaterFlowMeter
}

// FlowReading returns the water-flow payload, the bool is false for any other kind
// or when no status was reported yet.
func (d SubDevice) FlowReading() (FlowReading, bool) {
	if !d.IsWaterFlowMeter() || d.Reading.Flow == nil {
		return FlowReading{}, false
	}
	return *d.Reading.Flow, true
}

// StatusID is the id of this sub-device's entry in a hub status response.
func (d SubDevice) StatusID() string {
	return StatusID(d.Address)
}

// Reading is replaced as a whole on every poll.
type Reading struct {
	Reported  bool         `json:"reported"`
	Timestamp time.Time    `json:"timestamp"`
	RFRSSI    int          `json:"rf_rssi"`
	Raw       string       `json:"raw"`
	Flow      *FlowReading `json:"flow,omitempty"`
}

type FlowReading struct {
	TotalUsage float64 `json:"total_usage"` // litres
}
