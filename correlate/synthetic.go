package correlate

import (
	"math/rand"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/history"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/telemetry"
)

// Generator produces plausible hourly effectiveness series for lines
// that have no archived history yet. Values follow a bounded random
// walk so consecutive points look like a real shift rather than noise.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator creates a generator. Seed 0 means time-seeded.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// walk nudges a value by at most step, clamped to [lo, hi]
func (g *Generator) walk(value, step, lo, hi float64) float64 {
	value += (g.rnd.Float64()*2 - 1) * step
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Series generates pointsPerEntity hourly records per entity, ending at
// the given time. Every record is tagged as synthetic.
func (g *Generator) Series(entities []string, pointsPerEntity int, end time.Time) []history.Record {
	if pointsPerEntity <= 0 {
		pointsPerEntity = 24
	}

	records := make([]history.Record, 0, len(entities)*pointsPerEntity)
	for _, entity := range entities {
		availability := 85 + g.rnd.Float64()*10
		performance := 75 + g.rnd.Float64()*20
		quality := 92 + g.rnd.Float64()*6

		for i := pointsPerEntity - 1; i >= 0; i-- {
			availability = g.walk(availability, 3, 60, 100)
			performance = g.walk(performance, 4, 50, 100)
			quality = g.walk(quality, 1.5, 85, 100)

			records = append(records, history.Record{
				EntityID:     entity,
				Status:       "running",
				Availability: round1(availability),
				Performance:  round1(performance),
				Quality:      round1(quality),
				OEE:          round1(telemetry.ComputeOEE(availability, performance, quality)),
				Timestamp:    end.Add(-time.Duration(i) * time.Hour),
				Source:       history.SourceSynthetic,
			})
		}
	}
	return records
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
