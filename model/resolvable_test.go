package model

import (
	"errors"
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

type fakeGuildRef struct{ id snowflake.ID }

func (f fakeGuildRef) ResolveGuildID() snowflake.ID { return f.id }

func TestResolveGuildID(t *testing.T) {
	const id = snowflake.ID(1234567890123456789)

	tests := []struct {
		name    string
		in      any
		want    snowflake.ID
		wantErr bool
	}{
		{"snowflake", id, id, false},
		{"uint64", uint64(id), id, false},
		{"string", "1234567890123456789", id, false},
		{"resolver", fakeGuildRef{id: id}, id, false},
		{"member", &Member{ID: 1, GuildID: id}, id, false},
		{"zero snowflake", snowflake.ID(0), 0, true},
		{"zero string", "0", 0, true},
		{"garbage string", "not-a-snowflake", 0, true},
		{"resolver without guild", fakeGuildRef{}, 0, true},
		{"nil member", (*Member)(nil), 0, true},
		{"nil", nil, 0, true},
		{"unsupported type", 42, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveGuildID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrCannotResolveGuildID) {
					t.Errorf("ResolveGuildID(%v) error = %v, want ErrCannotResolveGuildID", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveGuildID(%v) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ResolveGuildID(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
