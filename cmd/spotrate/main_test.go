package main

import (
	"context"
	"testing"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{name: "defaults", args: nil, want: options{}},
		{name: "serve only", args: []string{"-no-ingest"}, want: options{noIngest: true}},
		{name: "version", args: []string{"-version"}, want: options{showVersion: true}},
		{name: "unknown flag", args: []string{"-bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	if err := run(context.Background(), []string{"-version"}); err != nil {
		t.Errorf("run(-version) error = %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("FETCH_CADENCE", "never")
	if err := run(context.Background(), nil); err == nil {
		t.Error("expected config error")
	}
}
