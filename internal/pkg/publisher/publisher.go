package publisher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

const manufacturer = "RainPoint"

var errAlreadyRegistered = errors.New("publisher already registered")

var (
	mu                  sync.Mutex
	registerdPublishers = make(map[string]publisher)
	sensors             sync.Map
)

type publisher interface {
	// Write stores or forwards changed sensor values.
	Write(ctx context.Context, data []map[string]any) error
	RegisterDevice(device *model.Device, statuses []model.DeviceStatus) error
}

func RegisterPublisher(name string, publisher publisher) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registerdPublishers[name]; ok {
		return errAlreadyRegistered
	}
	registerdPublishers[name] = publisher
	return nil
}

// PublishTopology registers every water flow meter of topo and publishes the
// readings that changed since the last call. Other sub-devices are skipped.
func PublishTopology(ctx context.Context, topo model.Topology) error {
	deviceStatusMap := make(map[model.Device][]model.DeviceStatus)
	for _, node := range topo.Nodes() {
		if !node.Device.IsWaterFlowMeter() {
			zap.L().Debug("skipping sub-device", zap.Int("address", node.Address), zap.String("desc", node.Device.Kind.FriendlyDesc()))
			continue
		}
		device := MeterDevice(node)
		statuses := MeterStatuses(node.Device)
		if err := RegisterDevice(&device, statuses); err != nil {
			return err
		}
		deviceStatusMap[device] = statuses
	}
	return PublishData(ctx, deviceStatusMap)
}

// MeterDevice describes a water flow meter the way Home Assistant groups it.
func MeterDevice(node model.Node) model.Device {
	return model.Device{
		ID:           fmt.Sprintf("%d_%d_%d", node.HID, node.MID, node.Address),
		Model:        node.Device.Kind.FriendlyDesc(),
		Name:         fmt.Sprintf("%s %s %d (%d)", manufacturer, node.Device.Kind.FriendlyDesc(), node.MID, node.Address),
		Manufacturer: manufacturer,
		ViaDevice:    fmt.Sprintf("hub_%d", node.MID),
	}
}

// MeterStatuses are the three sensors of a water flow meter. Values are nil
// until the meter has reported.
func MeterStatuses(d model.SubDevice) []model.DeviceStatus {
	var usage, ts, rssi *string
	if flow, ok := d.FlowReading(); ok {
		usage = lo.ToPtr(strconv.FormatFloat(flow.TotalUsage, 'f', -1, 64))
	}
	if d.Reading.Reported {
		rssi = lo.ToPtr(strconv.Itoa(d.Reading.RFRSSI))
		if !d.Reading.Timestamp.IsZero() {
			ts = lo.ToPtr(d.Reading.Timestamp.UTC().Format(time.RFC3339))
		}
	}
	return []model.DeviceStatus{
		newStatus("Total Usage", usage, model.NumericUnitLitre, "water", "total"),
		newStatus("Timestamp", ts, model.NumericUnitNone, "timestamp", ""),
		newStatus("RF RSSI", rssi, model.NumericUnitDBm, "signal_strength", "measurement"),
	}
}

func newStatus(name string, value *string, unit model.NumericUnit, deviceClass, stateClass string) model.DeviceStatus {
	return model.DeviceStatus{
		Name:        name,
		Slug:        strings.ReplaceAll(slug.Make(name), "-", "_"),
		Value:       value,
		Unit:        string(unit),
		DeviceClass: deviceClass,
		StateClass:  stateClass,
	}
}

// PublishData forwards values that differ from the last delivered ones. A value
// only counts as delivered once at least one publisher wrote it.
func PublishData(ctx context.Context, deviceStatusMap map[model.Device][]model.DeviceStatus) error {
	data := make([]map[string]any, 0)
	for device, statuses := range deviceStatusMap {
		for _, status := range statuses {
			if status.Value == nil {
				continue
			}
			val := *status.Value

			if !shouldUpdate(device.ID, status.Slug, val) {
				continue
			}
			payload := map[string]any{
				"value":               val,
				"slug":                status.Slug,
				"timestamp":           time.Now(),
				"identifier":          device.ID,
				"unit_of_measurement": status.Unit,
			}
			data = append(data, payload)
		}
	}
	if len(data) == 0 {
		return nil
	}

	delivered := false
	for name, publisher := range snapshot() {
		if err := publisher.Write(ctx, data); err != nil {
			zap.L().Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			continue
		}
		delivered = true
		zap.L().Debug("updated sensors", zap.Int("count", len(data)), zap.String("publisher", name))
	}
	if !delivered {
		return nil
	}
	for _, d := range data {
		markDelivered(d["identifier"].(string), d["slug"].(string), d["value"].(string))
	}
	return nil
}

func RegisterDevice(device *model.Device, statuses []model.DeviceStatus) error {
	for name, publisher := range snapshot() {
		if err := publisher.RegisterDevice(device, statuses); err != nil {
			zap.L().Error("failed to register device", zap.Error(err), zap.String("publisher", name))
			continue
		}
		zap.L().Debug("registered device", zap.String("device", device.ID), zap.String("publisher", name))
	}
	return nil
}

func snapshot() map[string]publisher {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]publisher, len(registerdPublishers))
	for k, v := range registerdPublishers {
		out[k] = v
	}
	return out
}

func sensorKey(identifier, slug string) string {
	return fmt.Sprintf("%s_%s", identifier, slug)
}

func shouldUpdate(identifier, slug, newValue string) bool {
	oldValue, exists := sensors.Load(sensorKey(identifier, slug))
	return !exists || !strings.EqualFold(newValue, oldValue.(string))
}

func markDelivered(identifier, slug, value string) {
	if _, exists := sensors.Swap(sensorKey(identifier, slug), value); !exists {
		zap.L().Info("Configured sensor:", zap.String("device", identifier), zap.String("sensor", slug), zap.String("value", value))
	}
}
