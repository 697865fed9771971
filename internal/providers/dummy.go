package providers

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"triagebench/internal/dataset"
)

// Dummy replays each case's expected output with small injected faults,
// so the full pipeline can be exercised without any model behind it.
// Roughly one case in ten gets its priority flipped and one in ten its
// category corrupted to Network.
type Dummy struct {
	rng *rand.Rand
}

// NewDummy builds a dummy provider. A zero seed means a time-based one.
func NewDummy(seed int64) *Dummy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Dummy{rng: rand.New(rand.NewSource(seed))}
}

func (d *Dummy) Generate(ctx context.Context, c dataset.Case, model string) (*Result, error) {
	actual, err := copyObject(c.Expected)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	delay := time.Duration(5+d.rng.Float64()*15) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if d.rng.Float64() < 0.10 {
		priority, _ := actual["priority"].(string)
		actual["priority"] = flipPriority(priority)
	}
	if d.rng.Float64() < 0.10 {
		actual["category"] = "Network"
	}

	return &Result{
		Actual:      actual,
		LatencyMS:   float64(time.Since(start)) / float64(time.Millisecond),
		Status:      "ok",
		PromptChars: len(c.InputText),
	}, nil
}

func copyObject(src map[string]any) (map[string]any, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flipPriority(priority string) string {
	switch priority {
	case "P2":
		return "P3"
	case "P3":
		return "P2"
	}
	return "P2"
}
