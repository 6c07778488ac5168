package model

import (
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// GuildIDResolver is implemented by anything scoped to a guild: queues,
// voice sessions, members, and whatever frontend SDK wrappers callers hand
// in. A zero return means the value is not attached to a guild.
type GuildIDResolver interface {
	ResolveGuildID() snowflake.ID
}

func (m *Member) ResolveGuildID() snowflake.ID {
	if m == nil {
		return 0
	}
	return m.GuildID
}

// ResolveGuildID turns any guild-ish value into a guild snowflake. Accepted
// inputs: snowflake.ID, a raw uint64, a decimal string, or any
// GuildIDResolver. Everything else fails with ErrCannotResolveGuildID.
func ResolveGuildID(v any) (snowflake.ID, error) {
	switch t := v.(type) {
	case snowflake.ID:
		if t == 0 {
			return 0, fmt.Errorf("%w: zero snowflake", ErrCannotResolveGuildID)
		}
		return t, nil
	case uint64:
		if t == 0 {
			return 0, fmt.Errorf("%w: zero id", ErrCannotResolveGuildID)
		}
		return snowflake.ID(t), nil
	case string:
		id, err := snowflake.Parse(t)
		if err != nil || id == 0 {
			return 0, fmt.Errorf("%w: %q", ErrCannotResolveGuildID, t)
		}
		return id, nil
	case GuildIDResolver:
		if id := t.ResolveGuildID(); id != 0 {
			return id, nil
		}
		return 0, fmt.Errorf("%w: resolver %T has no guild", ErrCannotResolveGuildID, t)
	case nil:
		return 0, fmt.Errorf("%w: nil value", ErrCannotResolveGuildID)
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrCannotResolveGuildID, v)
}
