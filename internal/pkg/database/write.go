package database

import (
	"context"

	"github.com/anicoll/homgar-integration/internal/pkg/model"
)

func (d *Database) Write(ctx context.Context, data []map[string]any) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, record := range data {
		if _, err := tx.Exec(ctx, `
			INSERT INTO property (time_stamp, unit_of_measurement, value, identifier, slug)
			VALUES ($1, $2, $3, $4, $5)
		`, record["timestamp"], record["unit_of_measurement"], record["value"], record["identifier"], record["slug"]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (d *Database) RegisterDevice(device *model.Device, _ []model.DeviceStatus) error {
	_, err := d.pool.Exec(context.Background(), `
		INSERT INTO device (id, model, name, via_device)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET model = EXCLUDED.model, name = EXCLUDED.name, via_device = EXCLUDED.via_device;`,
		device.ID, device.Model, device.Name, device.ViaDevice)
	return err
}
