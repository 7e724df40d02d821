package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

func TestHandler_ExposesCycleMetrics(t *testing.T) {
	m := New()
	m.ObserveCycle(Sample{Duration: time.Second, FeeCommitted: 42})
	m.ObserveReconcile(map[string]int{"orphaned": 2, "expired": 0})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, want := range []string{
		`greenfloor_cycles_total{result="ok"} 1`,
		`greenfloor_fee_committed_mojos 42`,
		`greenfloor_reconcile_outcomes_total{outcome="orphaned"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
	if strings.Contains(out, `outcome="expired"`) {
		t.Fatalf("zero outcome should not create a series")
	}
}

type putter struct{ in *cloudwatch.PutMetricDataInput }

func (p *putter) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	p.in = in
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchSink_Publish(t *testing.T) {
	p := &putter{}
	s := &CloudWatchSink{Client: p, Namespace: "GF"}
	if err := s.Publish(context.Background(), Sample{MarketsProcessed: 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if *p.in.Namespace != "GF" || len(p.in.MetricData) != 7 {
		t.Fatalf("namespace=%s data=%d", *p.in.Namespace, len(p.in.MetricData))
	}
	if *p.in.MetricData[0].Value != 3 {
		t.Fatalf("markets processed=%v", *p.in.MetricData[0].Value)
	}
}
