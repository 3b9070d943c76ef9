package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joloLG/joloRide/internal/geo"
	"github.com/joloLG/joloRide/internal/models"
)

// upsertScript compares the stored timestamp with the incoming one and only
// writes when the incoming sample is not older. Returns lat, lng, acc, ts,
// order and an applied flag.
var upsertScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  local r = redis.call('HMGET', KEYS[1], 'lat', 'lng', 'acc', 'ts', 'order')
  table.insert(r, '0')
  return r
end
redis.call('HSET', KEYS[1], 'lat', ARGV[2], 'lng', ARGV[3], 'acc', ARGV[4], 'ts', ARGV[1], 'order', ARGV[5])
redis.call('GEOADD', KEYS[2], ARGV[3], ARGV[2], ARGV[6])
return {ARGV[2], ARGV[3], ARGV[4], ARGV[1], ARGV[5], '1'}
`)

// RedisStore implements Store using a hash per rider for the current sample,
// a GEO set for proximity queries and a list per (rider, order) for history.
type RedisStore struct {
	client     redis.UniversalClient
	geoKey     string
	historyTTL time.Duration
}

func NewRedisStore(addr, password, geoKey string, historyTTL time.Duration) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisStoreWithClient(c, geoKey, historyTTL)
}

func NewRedisStoreWithClient(c redis.UniversalClient, geoKey string, historyTTL time.Duration) *RedisStore {
	return &RedisStore{client: c, geoKey: geoKey, historyTTL: historyTTL}
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) Upsert(ctx context.Context, s models.Sample) (models.Sample, bool, error) {
	res, err := upsertScript.Run(ctx, r.client, []string{currentKey(s.RiderID), r.geoKey},
		s.Timestamp.UnixMilli(),
		strconv.FormatFloat(s.Lat, 'f', -1, 64),
		strconv.FormatFloat(s.Lng, 'f', -1, 64),
		strconv.FormatFloat(s.Accuracy, 'f', -1, 64),
		s.OrderID,
		s.RiderID,
	).Slice()
	if err != nil {
		return models.Sample{}, false, fmt.Errorf("upsert rider %s: %w", s.RiderID, err)
	}
	if len(res) != 6 {
		return models.Sample{}, false, fmt.Errorf("upsert rider %s: unexpected reply %v", s.RiderID, res)
	}
	fields := make(map[string]string, 5)
	for i, name := range []string{"lat", "lng", "acc", "ts", "order"} {
		if v, ok := res[i].(string); ok {
			fields[name] = v
		}
	}
	cur, err := sampleFromHash(s.RiderID, fields)
	if err != nil {
		return models.Sample{}, false, err
	}
	return cur, res[5] == "1", nil
}

func (r *RedisStore) Current(ctx context.Context, riderID string) (models.Sample, error) {
	m, err := r.client.HGetAll(ctx, currentKey(riderID)).Result()
	if err != nil {
		return models.Sample{}, fmt.Errorf("current rider %s: %w", riderID, err)
	}
	if len(m) == 0 {
		return models.Sample{}, ErrNoLocation
	}
	return sampleFromHash(riderID, m)
}

func (r *RedisStore) AppendHistory(ctx context.Context, s models.Sample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	k := historyListKey(s.RiderID, s.OrderID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, k, b)
	if r.historyTTL > 0 {
		pipe.Expire(ctx, k, r.historyTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) History(ctx context.Context, riderID, orderID string) ([]models.Sample, error) {
	raw, err := r.client.LRange(ctx, historyListKey(riderID, orderID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]models.Sample, 0, len(raw))
	for _, v := range raw {
		var s models.Sample
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *RedisStore) Nearby(ctx context.Context, center models.Coord, radiusKm float64, limit int) ([]Nearby, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.geoKey, nearbyQuery(center, radiusKm, limit)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Nearby, 0, len(res))
	for _, g := range res {
		s, err := r.Current(ctx, g.Name)
		if err != nil {
			// geo member without a hash; fall back to the indexed coordinate
			s = models.Sample{RiderID: g.Name, Lat: g.Latitude, Lng: g.Longitude}
		}
		out = append(out, Nearby{Sample: s, DistanceKm: geo.Round(g.Dist, 2)})
	}
	return out, nil
}

// nearbyQuery is a GEOSEARCH FROMLONLAT BYRADIUS, nearest first.
func nearbyQuery(center models.Coord, radiusKm float64, limit int) *redis.GeoSearchLocationQuery {
	return &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}
}

func sampleFromHash(riderID string, m map[string]string) (models.Sample, error) {
	s := models.Sample{RiderID: riderID, OrderID: m["order"]}
	var err error
	if s.Lat, err = strconv.ParseFloat(m["lat"], 64); err != nil {
		return models.Sample{}, fmt.Errorf("rider %s lat: %w", riderID, err)
	}
	if s.Lng, err = strconv.ParseFloat(m["lng"], 64); err != nil {
		return models.Sample{}, fmt.Errorf("rider %s lng: %w", riderID, err)
	}
	if v := m["acc"]; v != "" {
		s.Accuracy, _ = strconv.ParseFloat(v, 64)
	}
	ms, err := strconv.ParseInt(m["ts"], 10, 64)
	if err != nil {
		return models.Sample{}, fmt.Errorf("rider %s ts: %w", riderID, err)
	}
	s.Timestamp = time.UnixMilli(ms).UTC()
	return s, nil
}

func currentKey(id string) string { return "rider:loc:" + id }

func historyListKey(riderID, orderID string) string {
	return "rider:history:" + riderID + ":" + orderID
}
