package homgar

import (
	"context"

	"go.uber.org/zap"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

const homesPath = "/app/member/appHome/list"

func (c *client) ListHomes(ctx context.Context) ([]model.Home, error) {
	data := []homeObject{}
	if err := c.get(ctx, homesPath, nil, &data); err != nil {
		return nil, err
	}

	homes := make([]model.Home, 0, len(data))
	for _, h := range data {
		homes = append(homes, model.Home{HID: h.HID, Name: h.HomeName})
	}
	c.logger.Debug("listed homes", zap.Int("count", len(homes)))
	return homes, nil
}
