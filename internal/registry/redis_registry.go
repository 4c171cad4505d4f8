package registry

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisRegistry stores availability in a per-driver hash plus an
// online-id set, with coordinates mirrored into a GEO key. Hash fields
// are written individually so a partial heartbeat never clobbers the
// fields it did not carry.
type RedisRegistry struct {
	client *redis.Client
	geoKey string
}

func NewRedisRegistry(addr, password, geoKey string) *RedisRegistry {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisRegistry{client: c, geoKey: geoKey}
}

func (r *RedisRegistry) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

const onlineSetKey = "drivers:online"

func availKey(driverID int64) string {
	return "driver:avail:" + strconv.FormatInt(driverID, 10)
}

func (r *RedisRegistry) SetOnline(ctx context.Context, driverID int64, online *bool, lat, lon *float64) (models.DriverAvailability, error) {
	fields := map[string]interface{}{"updated": time.Now().Format(time.RFC3339)}
	if online != nil {
		fields["online"] = strconv.FormatBool(*online)
	}
	if lat != nil {
		fields["lat"] = strconv.FormatFloat(*lat, 'f', -1, 64)
	}
	if lon != nil {
		fields["lon"] = strconv.FormatFloat(*lon, 'f', -1, 64)
	}
	if err := r.client.HSet(ctx, availKey(driverID), fields).Err(); err != nil {
		return models.DriverAvailability{}, err
	}
	if online != nil {
		member := strconv.FormatInt(driverID, 10)
		if *online {
			if err := r.client.SAdd(ctx, onlineSetKey, member).Err(); err != nil {
				return models.DriverAvailability{}, err
			}
		} else if err := r.client.SRem(ctx, onlineSetKey, member).Err(); err != nil {
			return models.DriverAvailability{}, err
		}
	}
	if lat != nil && lon != nil {
		loc := &redis.GeoLocation{Longitude: *lon, Latitude: *lat, Name: strconv.FormatInt(driverID, 10)}
		if err := r.client.GeoAdd(ctx, r.geoKey, loc).Err(); err != nil {
			return models.DriverAvailability{}, err
		}
	}
	return r.get(ctx, driverID)
}

func (r *RedisRegistry) ListOnline(ctx context.Context) ([]models.DriverAvailability, error) {
	ids, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverAvailability, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		d, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if d.Online {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *RedisRegistry) get(ctx context.Context, driverID int64) (models.DriverAvailability, error) {
	m, err := r.client.HGetAll(ctx, availKey(driverID)).Result()
	if err != nil {
		return models.DriverAvailability{}, err
	}
	d := models.DriverAvailability{DriverID: driverID}
	if v, ok := m["online"]; ok {
		d.Online = v == "true"
	}
	if v, ok := m["lat"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.Lat = &f
		}
	}
	if v, ok := m["lon"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.Lon = &f
		}
	}
	if v, ok := m["updated"]; ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			d.LastUpdated = ts
		}
	}
	return d, nil
}
