package model

import (
	"errors"
	"testing"
	"time"
)

func TestOptionsApplyDefaults(t *testing.T) {
	var o Options
	if err := o.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}

	boolChecks := []struct {
		name string
		got  *bool
		want bool
	}{
		{"LeaveOnEmpty", o.LeaveOnEmpty, true},
		{"LeaveOnFinish", o.LeaveOnFinish, false},
		{"LeaveOnStop", o.LeaveOnStop, true},
		{"SavePreviousSongs", o.SavePreviousSongs, true},
		{"NSFW", o.NSFW, false},
		{"EmitNewSongOnly", o.EmitNewSongOnly, false},
		{"EmitAddSongWhenCreatingQueue", o.EmitAddSongWhenCreatingQueue, true},
		{"EmitAddListWhenCreatingQueue", o.EmitAddListWhenCreatingQueue, true},
		{"JoinNewVoiceChannel", o.JoinNewVoiceChannel, true},
		{"DirectLink", o.DirectLink, true},
	}
	for _, c := range boolChecks {
		if c.got == nil {
			t.Errorf("%s = nil after defaults, want %v", c.name, c.want)
			continue
		}
		if *c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, *c.got, c.want)
		}
	}

	if o.EmptyCooldown != DefaultEmptyCooldown {
		t.Errorf("EmptyCooldown = %v, want %v", o.EmptyCooldown, DefaultEmptyCooldown)
	}
	if o.SearchCooldown != DefaultSearchCooldown {
		t.Errorf("SearchCooldown = %v, want %v", o.SearchCooldown, DefaultSearchCooldown)
	}
	if o.SearchSongs != 0 {
		t.Errorf("SearchSongs = %d, want 0", o.SearchSongs)
	}
	if o.StreamType != StreamTypeOpus {
		t.Errorf("StreamType = %v, want opus", o.StreamType)
	}
	if o.CustomFilters == nil {
		t.Error("CustomFilters = nil after defaults, want empty map")
	}
}

func TestOptionsExplicitFalseSurvivesDefaults(t *testing.T) {
	o := Options{
		LeaveOnEmpty:      Bool(false),
		LeaveOnStop:       Bool(false),
		SavePreviousSongs: Bool(false),
		NSFW:              Bool(true),
	}
	if err := o.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}
	if *o.LeaveOnEmpty {
		t.Error("explicit LeaveOnEmpty=false was overwritten by default true")
	}
	if *o.LeaveOnStop {
		t.Error("explicit LeaveOnStop=false was overwritten by default true")
	}
	if *o.SavePreviousSongs {
		t.Error("explicit SavePreviousSongs=false was overwritten by default true")
	}
	if !*o.NSFW {
		t.Error("explicit NSFW=true was overwritten by default false")
	}
}

func TestOptionsValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"negative empty cooldown", Options{EmptyCooldown: -time.Second}},
		{"negative search cooldown", Options{SearchCooldown: -time.Second}},
		{"negative search songs", Options{SearchSongs: -1}},
		{"unknown stream type", Options{StreamType: StreamType(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ApplyDefaults()
			if !errors.Is(err, ErrInvalidOption) {
				t.Errorf("ApplyDefaults() error = %v, want ErrInvalidOption", err)
			}
		})
	}
}

func TestOptionsSearchSongsClamped(t *testing.T) {
	o := Options{SearchSongs: 100}
	if err := o.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}
	if o.SearchSongs != MaxSearchSongs {
		t.Errorf("SearchSongs = %d, want clamped to %d", o.SearchSongs, MaxSearchSongs)
	}
}

func TestOptionsExplicitDurationsKept(t *testing.T) {
	o := Options{
		EmptyCooldown:  5 * time.Second,
		SearchCooldown: 30 * time.Second,
		SearchSongs:    5,
	}
	if err := o.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}
	if o.EmptyCooldown != 5*time.Second {
		t.Errorf("EmptyCooldown = %v, want 5s", o.EmptyCooldown)
	}
	if o.SearchCooldown != 30*time.Second {
		t.Errorf("SearchCooldown = %v, want 30s", o.SearchCooldown)
	}
	if o.SearchSongs != 5 {
		t.Errorf("SearchSongs = %d, want 5", o.SearchSongs)
	}
}
