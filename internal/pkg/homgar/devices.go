package homgar

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

const devicesPath = "/app/device/getDeviceByHid"

// ListDevices returns the hubs of a home with their sub-device addresses. Readings
// stay empty until GetDeviceStatus runs.
func (c *client) ListDevices(ctx context.Context, hid int64) ([]model.Hub, error) {
	data := []deviceObject{}
	query := url.Values{"hid": []string{strconv.FormatInt(hid, 10)}}
	if err := c.get(ctx, devicesPath, query, &data); err != nil {
		return nil, err
	}

	hubs := make([]model.Hub, 0, len(data))
	for _, h := range data {
		hub := model.Hub{
			MID:       h.MID,
			HID:       hid,
			DID:       h.DID,
			Name:      h.Name,
			Model:     h.Model,
			ModelCode: h.ModelCode,
		}
		for _, sd := range h.SubDevices {
			if sd.Addr == model.HubDisplayAddress {
				continue
			}
			kind := c.kinds.Resolve(sd.ModelCode)
			if kind == model.KindUnknown {
				c.logger.Info("unknown sub-device model", zap.String("model", sd.Model), zap.Int("model_code", sd.ModelCode), zap.Int("address", sd.Addr))
			}
			hub.SubDevices = append(hub.SubDevices, model.SubDevice{
				Address:    sd.Addr,
				DID:        sd.DID,
				Name:       sd.Name,
				Model:      sd.Model,
				ModelCode:  sd.ModelCode,
				PortNumber: sd.PortNumber,
				Kind:       kind,
			})
		}
		hubs = append(hubs, hub)
	}
	return hubs, nil
}
