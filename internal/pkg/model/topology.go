package model

import (
	"slices"

	"github.com/samber/lo"
)

// Topology maps hid -> mid -> address -> sub-device. A published Topology is
// shared between readers and must not be modified; use Clone for a private copy.
type Topology map[int64]map[int64]map[int]SubDevice

// Node identifies a sub-device within a topology.
type Node struct {
	HID     int64     `json:"hid"`
	MID     int64     `json:"mid"`
	Address int       `json:"address"`
	Device  SubDevice `json:"device"`
}

// AddHub records hub and all of its sub-devices under its home.
func (t Topology) AddHub(hub Hub) {
	hubs, ok := t[hub.HID]
	if !ok {
		hubs = map[int64]map[int]SubDevice{}
		t[hub.HID] = hubs
	}
	devices := make(map[int]SubDevice, len(hub.SubDevices))
	for _, d := range hub.SubDevices {
		d.HubOnline = hub.Online
		devices[d.Address] = d
	}
	hubs[hub.MID] = devices
}

// AddHome makes sure a home appears even when it has no hubs.
func (t Topology) AddHome(hid int64) {
	if _, ok := t[hid]; !ok {
		t[hid] = map[int64]map[int]SubDevice{}
	}
}

func (t Topology) Lookup(hid, mid int64, address int) (SubDevice, bool) {
	d, ok := t[hid][mid][address]
	return d, ok
}

// Nodes flattens the topology in a stable hid, mid, address order.
func (t Topology) Nodes() []Node {
	var nodes []Node
	for _, hid := range sortedKeys(t) {
		hubs := t[hid]
		for _, mid := range sortedKeys(hubs) {
			devices := hubs[mid]
			for _, addr := range sortedKeys(devices) {
				nodes = append(nodes, Node{HID: hid, MID: mid, Address: addr, Device: devices[addr]})
			}
		}
	}
	return nodes
}

// WaterFlowMeters returns the nodes whose sub-device is a water flow meter.
func (t Topology) WaterFlowMeters() []Node {
	return lo.Filter(t.Nodes(), func(n Node, _ int) bool {
		return n.Device.IsWaterFlowMeter()
	})
}

func (t Topology) Clone() Topology {
	out := make(Topology, len(t))
	for hid, hubs := range t {
		outHubs := make(map[int64]map[int]SubDevice, len(hubs))
		for mid, devices := range hubs {
			outDevices := make(map[int]SubDevice, len(devices))
			for addr, d := range devices {
				if d.Reading.Flow != nil {
					flow := *d.Reading.Flow
					d.Reading.Flow = &flow
				}
				outDevices[addr] = d
			}
			outHubs[mid] = outDevices
		}
		out[hid] = outHubs
	}
	return out
}

func sortedKeys[K int | int64, V any](m map[K]V) []K {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
