package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

func (s *service) Write(ctx context.Context, data []map[string]any) error {
	for _, d := range data {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.PublishData(d); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDevice publishes a retained Home Assistant discovery config for every
// sensor of device. Each config is only sent once.
func (s *service) RegisterDevice(device *model.Device, statuses []model.DeviceStatus) error {
	for _, status := range statuses {
		key := device.ID + "_" + status.Slug
		s.mu.Lock()
		_, exists := s.configuredSensors[key]
		s.mu.Unlock()
		if exists {
			continue
		}

		payload, err := json.Marshal(sensorRegisterMsg(device, status))
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/sensor/%s/%s/config", discoveryPrefix, device.ID, status.Slug)
		if err := s.publish(topic, 1, true, payload); err != nil {
			return err
		}
		s.mu.Lock()
		s.configuredSensors[key] = struct{}{}
		s.mu.Unlock()
	}
	return nil
}

func (s *service) PublishData(data map[string]any) error {
	slug := data["slug"].(string)
	isTextSensor := model.TextSensors.HasSlug(slug)
	topic := fmt.Sprintf("%s/sensor/%s/%s/state", discoveryPrefix, data["identifier"], slug)

	payload := map[string]string{
		"value": data["value"].(string),
	}
	if unit, _ := data["unit_of_measurement"].(string); !isTextSensor && unit != "" {
		payload["unit_of_measurement"] = unit
	}

	publishData, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.publish(topic, 0, false, publishData)
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if token.WaitTimeout(time.Second * 10) {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return fmt.Errorf("publishing to %s timed out", topic)
}

func sensorRegisterMsg(device *model.Device, status model.DeviceStatus) model.RegisterMessage {
	tilda := fmt.Sprintf("%s/sensor/%s/%s", discoveryPrefix, device.ID, status.Slug)
	msg := model.RegisterMessage{
		Tilda:         tilda,
		Name:          status.Name,
		ID:            strings.ToLower(device.ID + "_" + status.Slug),
		StateTopic:    "~/state",
		ValueTemplate: "{{ value_json.value }}",
		DeviceClass:   status.DeviceClass,
		StateClass:    status.StateClass,
		Device: model.RegisterDevice{
			Name:         device.Name,
			Identifiers:  []string{"meter_" + device.ID},
			Model:        device.Model,
			Manufacturer: device.Manufacturer,
			ViaDevice:    device.ViaDevice,
		},
	}
	if !model.TextSensors.HasSlug(status.Slug) {
		msg.UnitOfMeasurement = status.Unit
	}
	return msg
}
