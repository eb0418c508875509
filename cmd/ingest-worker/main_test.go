package main

import (
	"context"
	"strings"
	"testing"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

func TestRun_Version(t *testing.T) {
	if err := run(context.Background(), []string{"-version"}); err != nil {
		t.Errorf("run(-version) error = %v", err)
	}
}

func TestRun_RequiresQueue(t *testing.T) {
	t.Setenv("AWS_SQS_QUEUE_URL", "")
	err := run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "AWS_SQS_QUEUE_URL") {
		t.Errorf("expected missing queue error, got %v", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"-bogus"}); err == nil {
		t.Error("expected flag error")
	}
}

func TestRun_RefusesToStartWithoutProviders(t *testing.T) {
	t.Setenv("AWS_SQS_QUEUE_URL", "http://localhost:4566/000000000000/triggers")
	t.Setenv("COINMARKETCAP_API_KEY", "")
	t.Setenv("COINGECKO_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_TRACES_STDOUT", "")

	err := run(context.Background(), nil)
	if !entity.IsKind(err, entity.KindConfiguration) {
		t.Errorf("expected configuration error with no providers, got %v", err)
	}
}
