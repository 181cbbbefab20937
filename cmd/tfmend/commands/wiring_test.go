package commands

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tfmend/tfmend/pkg/oracle"
	"github.com/tfmend/tfmend/pkg/policy"
	"github.com/tfmend/tfmend/pkg/telemetry"
)

type stubOracleClient struct {
	reply string
	err   error
}

func (s *stubOracleClient) Generate(context.Context, string, int) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestMetrics(t *testing.T) *telemetry.Metrics {
	t.Helper()
	m, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "tfmend"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newScreenedHealerForTest(t *testing.T, client oracle.Client, metrics *telemetry.Metrics) *screenedHealer {
	t.Helper()
	pol, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &screenedHealer{
		healer:  oracle.NewHealer(client, 0, zerolog.Nop()),
		pol:     pol,
		metrics: metrics,
		logger:  zerolog.Nop(),
	}
}

func scrapeMetrics(t *testing.T, m *telemetry.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}

func TestScreenedHealer_RecordsOracleCall(t *testing.T) {
	metrics := newTestMetrics(t)
	client := &stubOracleClient{reply: "provider \"aws\" {}\n\nresource \"aws_vpc\" \"main\" {}\n"}
	sh := newScreenedHealerForTest(t, client, metrics)

	healed, err := sh.Heal(context.Background(), oracle.FailureContext{Stage: "plan", Artifact: "x"})
	if err != nil {
		t.Fatalf("Heal: %v", err)
	}
	if !strings.Contains(healed, "aws_vpc") {
		t.Errorf("unexpected healed artifact: %q", healed)
	}

	body := scrapeMetrics(t, metrics)
	if !strings.Contains(body, `tfmend_oracle_calls_total{status="success"} 1`) {
		t.Error("expected a successful oracle call counted")
	}
	if !strings.Contains(body, "tfmend_oracle_call_duration_seconds_count 1") {
		t.Error("expected oracle call duration observed")
	}
}

func TestScreenedHealer_RecordsFailedOracleCall(t *testing.T) {
	metrics := newTestMetrics(t)
	sh := newScreenedHealerForTest(t, &stubOracleClient{err: errors.New("api unreachable")}, metrics)

	if _, err := sh.Heal(context.Background(), oracle.FailureContext{Stage: "plan"}); err == nil {
		t.Fatal("expected error from failing oracle")
	}

	body := scrapeMetrics(t, metrics)
	if !strings.Contains(body, `tfmend_oracle_calls_total{status="failure"} 1`) {
		t.Error("expected a failed oracle call counted")
	}
}

func TestScreenedHealer_RejectsDeniedResource(t *testing.T) {
	metrics := newTestMetrics(t)
	client := &stubOracleClient{reply: "provider \"aws\" {}\n\nresource \"aws_iam_access_key\" \"leak\" {\n  user = \"admin\"\n}\n"}
	sh := newScreenedHealerForTest(t, client, metrics)

	_, err := sh.Heal(context.Background(), oracle.FailureContext{Stage: "apply", Artifact: "x"})
	if err == nil {
		t.Fatal("expected policy rejection of the healed artifact")
	}
	if !strings.Contains(err.Error(), "rejected by policy") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScreenedHealer_NilMetricsIsSafe(t *testing.T) {
	client := &stubOracleClient{reply: "provider \"aws\" {}\n\nresource \"aws_vpc\" \"main\" {}\n"}
	sh := newScreenedHealerForTest(t, client, nil)

	if _, err := sh.Heal(context.Background(), oracle.FailureContext{Stage: "plan"}); err != nil {
		t.Fatalf("Heal without metrics: %v", err)
	}
}
