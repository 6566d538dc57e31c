package execution

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/errors"
)

const killSwitchKey = "tradepulse:killswitch"

// setKillSwitchScript writes every field and bumps the version atomically
var setKillSwitchScript = redis.NewScript(`
	local version = redis.call("hincrby", KEYS[1], "version", 1)
	redis.call("hset", KEYS[1], "enabled", ARGV[1], "set_at", ARGV[2], "set_by", ARGV[3])
	return version
`)

// RedisKillSwitch shares the halt record between gateway processes
type RedisKillSwitch struct {
	client redis.UniversalClient
}

// NewRedisKillSwitch creates a kill-switch on client
func NewRedisKillSwitch(client redis.UniversalClient) *RedisKillSwitch {
	return &RedisKillSwitch{client: client}
}

// State reads the hash. A missing hash is a disabled switch at version 0.
func (k *RedisKillSwitch) State(ctx context.Context) (KillSwitchState, error) {
	fields, err := k.client.HGetAll(ctx, killSwitchKey).Result()
	if err != nil {
		return KillSwitchState{}, errors.Wrap(err, "failed to read kill-switch")
	}
	if len(fields) == 0 {
		return KillSwitchState{}, nil
	}

	var state KillSwitchState
	state.Enabled = fields["enabled"] == "1"
	state.SetBy = fields["set_by"]
	if v := fields["version"]; v != "" {
		if state.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
			return KillSwitchState{}, errors.Wrapf(err, "kill-switch version %q", v)
		}
	}
	if at := fields["set_at"]; at != "" {
		if state.SetAt, err = db.ParseTime(at); err != nil {
			return KillSwitchState{}, errors.Wrap(err, "kill-switch set_at")
		}
	}
	return state, nil
}

// Set writes the hash through a Lua script
func (k *RedisKillSwitch) Set(ctx context.Context, enabled bool, actor string, now time.Time) (KillSwitchState, error) {
	flag := "0"
	if enabled {
		flag = "1"
	}

	version, err := setKillSwitchScript.Run(ctx, k.client, []string{killSwitchKey}, flag, db.FormatTime(now), actor).Int64()
	if err != nil {
		return KillSwitchState{}, errors.Wrap(err, "failed to set kill-switch")
	}

	return KillSwitchState{
		Enabled: enabled,
		SetAt:   now.UTC().Truncate(time.Microsecond),
		SetBy:   actor,
		Version: version,
	}, nil
}
