package providers_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"triagebench/internal/dataset"
	"triagebench/internal/providers"
)

func dummyCases() []dataset.Case {
	var cases []dataset.Case
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8"} {
		cases = append(cases, dataset.Case{
			ID:        id,
			InputText: "ticket " + id,
			Expected: map[string]any{
				"category": "VPN",
				"priority": "P2",
			},
		})
	}
	return cases
}

func TestDummy_SeededDeterminism(t *testing.T) {
	run := func() []map[string]any {
		d := providers.NewDummy(42)
		var outputs []map[string]any
		for _, c := range dummyCases() {
			res, err := d.Generate(context.Background(), c, "dummy")
			if err != nil {
				t.Fatal(err)
			}
			outputs = append(outputs, res.Actual)
		}
		return outputs
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("same seed must replay the same faults:\n%s", diff)
	}
}

func TestDummy_DoesNotMutateExpected(t *testing.T) {
	d := providers.NewDummy(1)
	c := dataset.Case{
		ID:        "t1",
		InputText: "x",
		Expected:  map[string]any{"category": "VPN", "priority": "P2"},
	}
	for i := 0; i < 20; i++ {
		if _, err := d.Generate(context.Background(), c, "dummy"); err != nil {
			t.Fatal(err)
		}
	}
	if c.Expected["category"] != "VPN" || c.Expected["priority"] != "P2" {
		t.Errorf("expected record was mutated: %v", c.Expected)
	}
}

func TestDummy_ReportsLatencyAndStatus(t *testing.T) {
	d := providers.NewDummy(7)
	res, err := d.Generate(context.Background(), dummyCases()[0], "dummy")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" {
		t.Errorf("status = %q", res.Status)
	}
	if res.Actual == nil {
		t.Error("dummy must always return an object")
	}
	if res.LatencyMS <= 0 {
		t.Errorf("latency_ms = %v, want > 0", res.LatencyMS)
	}
}

func TestDummy_CancelledContext(t *testing.T) {
	d := providers.NewDummy(7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Generate(ctx, dummyCases()[0], "dummy"); err == nil {
		t.Error("cancelled context must abort the call")
	}
}
