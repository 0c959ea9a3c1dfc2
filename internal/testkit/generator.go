package testkit

import (
	"fmt"
	"math/rand"

	"immunetrial/domain/trial"
)

// TrialGeneratorConfig configures the synthetic trial generator
type TrialGeneratorConfig struct {
	ResponderCount    int     `json:"responder_count"`
	NonResponderCount int     `json:"non_responder_count"`
	TotalCellCount    int     `json:"total_cell_count"`
	// BCellShift moves the responders' expected B-cell share up by this many
	// percentage points, planting a detectable group difference
	BCellShift float64 `json:"b_cell_shift"`
	Condition  string  `json:"condition"`
	Treatment  string  `json:"treatment"`
	SampleType string  `json:"sample_type"`
	Seed       int64   `json:"seed"`
}

// DefaultTrialConfig returns sensible defaults for synthetic trial generation
func DefaultTrialConfig() TrialGeneratorConfig {
	return TrialGeneratorConfig{
		ResponderCount:    8,
		NonResponderCount: 8,
		TotalCellCount:    10000,
		BCellShift:        8.0,
		Condition:         "melanoma",
		Treatment:         "tr1",
		SampleType:        "PBMC",
		Seed:              42,
	}
}

// TrialGenerator produces deterministic synthetic trials
type TrialGenerator struct {
	cfg TrialGeneratorConfig
	rng *rand.Rand
}

// NewTrialGenerator creates a generator seeded from the config
func NewTrialGenerator(cfg TrialGeneratorConfig) *TrialGenerator {
	return &TrialGenerator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// baseline population shares in percent, before noise and shift
var baseShares = map[trial.Population]float64{
	trial.PopBCell:    12,
	trial.PopCD8TCell: 24,
	trial.PopCD4TCell: 34,
	trial.PopNKCell:   14,
	trial.PopMonocyte: 16,
}

// Generate builds a full synthetic trial: every subject has PBMC samples at
// days 0, 7 and 14, responders carry the configured B-cell shift
func (g *TrialGenerator) Generate() (*trial.Dataset, error) {
	var subjects []trial.Subject
	var samples []trial.Sample
	var measurements []trial.Measurement

	total := g.cfg.ResponderCount + g.cfg.NonResponderCount
	for i := 0; i < total; i++ {
		responder := i < g.cfg.ResponderCount
		resp := trial.ResponseNo
		if responder {
			resp = trial.ResponseYes
		}
		sex := "M"
		if g.rng.Intn(2) == 0 {
			sex = "F"
		}
		age := 35 + g.rng.Intn(40)

		id := trial.SubjectID(fmt.Sprintf("sbj%03d", i+1))
		subjects = append(subjects, trial.Subject{
			ID:        id,
			Project:   fmt.Sprintf("prj%d", 1+i%2),
			Condition: g.cfg.Condition,
			Age:       &age,
			Sex:       &sex,
			Treatment: g.cfg.Treatment,
			Response:  &resp,
		})

		for _, day := range trial.ValidTimepoints {
			sampleID := trial.SampleID(fmt.Sprintf("smp%03d_d%d", i+1, day))
			samples = append(samples, trial.Sample{
				ID:                     sampleID,
				SubjectID:              id,
				SampleType:             g.cfg.SampleType,
				TimeFromTreatmentStart: day,
			})
			measurements = append(measurements, g.sampleCounts(sampleID, responder)...)
		}
	}

	return trial.NewDataset(subjects, samples, measurements)
}

// sampleCounts draws noisy population shares and converts them to counts that
// sum exactly to the configured total
func (g *TrialGenerator) sampleCounts(id trial.SampleID, responder bool) []trial.Measurement {
	pops := trial.Populations()
	shares := make([]float64, len(pops))
	var sum float64
	for i, pop := range pops {
		share := baseShares[pop] * (0.85 + 0.3*g.rng.Float64())
		if responder && pop == trial.PopBCell {
			share += g.cfg.BCellShift
		}
		shares[i] = share
		sum += share
	}

	measurements := make([]trial.Measurement, 0, len(pops))
	remaining := g.cfg.TotalCellCount
	for i, pop := range pops {
		count := remaining
		if i < len(pops)-1 {
			count = int(float64(g.cfg.TotalCellCount) * shares[i] / sum)
		}
		remaining -= count
		measurements = append(measurements, trial.Measurement{
			SampleID:   id,
			Population: pop,
			Count:      count,
		})
	}
	return measurements
}
