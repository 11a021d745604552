package model

import "time"

// Property is one stored sensor value.
type Property struct {
	Id         int64     `json:"id"`
	TimeStamp  time.Time `json:"timestamp"`
	Unit       string    `json:"unit_of_measurement"`
	Value      string    `json:"value"`
	Identifier string    `json:"identifier"`
	Slug       string    `json:"slug"`
}
type Properties []Property

// Device is the Home Assistant view of a sub-device.
type Device struct {
	ID           string
	Model        string
	Name         string
	Manufacturer string
	ViaDevice    string
}

type DeviceStatus struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Value       *string `json:"value"`
	Unit        string  `json:"unit"`
	DeviceClass string  `json:"device_class"`
	StateClass  string  `json:"state_class"`
}
