package homgar

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

const (
	statusPath = "/app/device/getDeviceStatus"

	hubConnectedID = "connected"
)

// GetDeviceStatus replaces the reading of every sub-device of hub with what the vendor
// reports now. A sub-device missing from the answer ends up with an empty reading.
func (c *client) GetDeviceStatus(ctx context.Context, hub *model.Hub) error {
	res := deviceStatusResponse{}
	query := url.Values{"mid": []string{strconv.FormatInt(hub.MID, 10)}}
	if err := c.get(ctx, statusPath, query, &res); err != nil {
		return err
	}

	byID := make(map[string]statusObject, len(res.SubDeviceStatus))
	for _, st := range res.SubDeviceStatus {
		byID[st.ID] = st
	}
	for _, st := range res.Status {
		if st.ID == hubConnectedID {
			hub.Online = st.Value == "1"
		}
	}

	for i := range hub.SubDevices {
		dev := &hub.SubDevices[i]
		st, ok := byID[dev.StatusID()]
		if !ok {
			dev.Reading = model.Reading{}
			continue
		}
		reading, err := parseReading(dev.Kind, st)
		if err != nil {
			c.logger.Warn("unparsable sub-device status", zap.Int64("mid", hub.MID), zap.Int("address", dev.Address), zap.String("value", st.Value), zap.Error(err))
		}
		dev.Reading = reading
	}
	return nil
}

// parseReading decodes "<general>;<specific>" status values. general is
// "<flags>,<rssi>,<flags>"; for a water flow meter specific starts with the
// total usage in litres. On error the returned reading still carries Raw and Timestamp.
func parseReading(kind model.Kind, st statusObject) (model.Reading, error) {
	reading := model.Reading{
		Reported: true,
		Raw:      st.Value,
	}
	if st.Time > 0 {
		reading.Timestamp = time.UnixMilli(st.Time)
	}

	general, specific, ok := strings.Cut(st.Value, ";")
	if !ok {
		return reading, errors.New("missing ';' separator")
	}

	fields := strings.Split(general, ",")
	if len(fields) < 2 {
		return reading, fmt.Errorf("general section %q has %d fields", general, len(fields))
	}
	rssi, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return reading, fmt.Errorf("rf rssi: %w", err)
	}
	reading.RFRSSI = rssi

	if kind != model.KindWaterFlowMeter {
		return reading, nil
	}

	usageField, _, _ := strings.Cut(specific, ",")
	usage, err := strconv.ParseFloat(strings.TrimSpace(usageField), 64)
	if err != nil {
		return reading, fmt.Errorf("total usage: %w", err)
	}
	reading.Flow = &model.FlowReading{TotalUsage: usage}
	return reading, nil
}
