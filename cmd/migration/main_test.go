package main

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    command
		wantErr bool
	}{
		{name: "up", args: []string{"up"}, want: command{name: "up"}},
		{name: "down defaults to one step", args: []string{"DOWN"}, want: command{name: "down", steps: 1}},
		{name: "down n", args: []string{"down", "3"}, want: command{name: "down", steps: 3}},
		{name: "down zero", args: []string{"down", "0"}, wantErr: true},
		{name: "force", args: []string{"force", "1792281600"}, want: command{name: "force", version: 1792281600}},
		{name: "force clears version", args: []string{"force", "-1"}, want: command{name: "force", version: -1}},
		{name: "force without version", args: []string{"force"}, wantErr: true},
		{name: "migrate alias", args: []string{"migrate", "7"}, want: command{name: "goto", target: 7}},
		{name: "goto negative", args: []string{"goto", "-2"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCommand_Usage(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{nil, {"sideways"}} {
		if _, err := parseCommand(args); !errors.Is(err, errUsage) {
			t.Fatalf("parseCommand(%v) expected usage error, got %v", args, err)
		}
	}
}

func TestNormalizeDBURL(t *testing.T) {
	t.Parallel()

	const in = "postgres://rkl@localhost:5432/real_karma_league?sslmode=disable"
	if got := normalizeDBURL(in, false); got != in {
		t.Fatalf("expected unchanged url, got %q", got)
	}
	if got := normalizeDBURL(in, true); got == in {
		t.Fatalf("expected flag to be added, got %q", got)
	}
}
