package database

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_ConnectionError(t *testing.T) {
	config := models.RedisConfig{
		Host:     "127.0.0.1",
		Port:     1,
		PoolSize: 1,
	}

	client, err := NewRedisClient(config)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestRedisClient_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{Client: db}

	mock.ExpectSet("route:active:R1", "S1", time.Hour).SetVal("OK")

	err := client.Set(context.Background(), "route:active:R1", "S1", time.Hour)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Get(t *testing.T) {
	tests := []struct {
		name          string
		key           string
		mockValue     string
		mockError     error
		expectedValue string
		expectedError error
	}{
		{
			name:          "Key exists",
			key:           "route:active:R1",
			mockValue:     "S1",
			expectedValue: "S1",
		},
		{
			name:          "Key does not exist",
			key:           "route:active:R2",
			mockError:     redis.Nil,
			expectedError: redis.Nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			client := &RedisClient{Client: db}

			if tt.mockError != nil {
				mock.ExpectGet(tt.key).SetErr(tt.mockError)
			} else {
				mock.ExpectGet(tt.key).SetVal(tt.mockValue)
			}

			value, err := client.Get(context.Background(), tt.key)

			assert.Equal(t, tt.expectedError, err)
			assert.Equal(t, tt.expectedValue, value)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisClient_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{Client: db}

	mock.ExpectDel("a", "b").SetVal(2)

	assert.NoError(t, client.Delete(context.Background(), "a", "b"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Hash(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{Client: db}
	ctx := context.Background()

	mock.ExpectHSet("session:position:S1", map[string]interface{}{"lat": "-6.2"}).SetVal(1)
	mock.ExpectExpire("session:position:S1", 24*time.Hour).SetVal(true)
	mock.ExpectHGetAll("session:position:S1").SetVal(map[string]string{"lat": "-6.2"})

	require.NoError(t, client.HMSet(ctx, "session:position:S1", map[string]interface{}{"lat": "-6.2"}))
	require.NoError(t, client.Expire(ctx, "session:position:S1", 24*time.Hour))
	values, err := client.HGetAll(ctx, "session:position:S1")

	require.NoError(t, err)
	assert.Equal(t, "-6.2", values["lat"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Geo(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{Client: db}
	ctx := context.Background()

	mock.ExpectGeoAdd("bus:geo", &redis.GeoLocation{Name: "R1", Longitude: 106.8, Latitude: -6.2}).SetVal(1)
	mock.ExpectGeoRadius("bus:geo", 106.8, -6.2, &redis.GeoRadiusQuery{
		Radius:    500,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).SetVal([]redis.GeoLocation{{Name: "R1", Dist: 12.5}})
	mock.ExpectZRem("bus:geo", "R1").SetVal(1)

	require.NoError(t, client.GeoAdd(ctx, "bus:geo", 106.8, -6.2, "R1"))
	locations, err := client.GeoRadius(ctx, "bus:geo", 106.8, -6.2, 500, "m")
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "R1", locations[0].Name)
	require.NoError(t, client.ZRem(ctx, "bus:geo", "R1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{Client: db}

	mock.ExpectPing().SetVal("PONG")

	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
