package engine

// SamplerConfig holds the decoding controls passed to Model.NewSampler. The
// zero value is not useful; start from DefaultSamplerConfig.
type SamplerConfig struct {
	Temperature   float64
	TopK          int
	TopP          float64
	MinP          float64
	RepeatPenalty float64
	RepeatLastN   int

	// Seed selects the RNG seed for the distribution sampler.
	// SeedDefault lets the backend pick.
	Seed uint32

	// Grammar, when non-nil, constrains decoding. With a TriggerOn marker
	// the grammar stays dormant until the marker is generated.
	Grammar *Grammar
}

// SeedDefault requests backend-chosen sampler seeding.
const SeedDefault uint32 = 0xFFFFFFFF

// DefaultSamplerConfig returns balanced decoding settings for small local
// models.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Temperature:   0.7,
		TopK:          40,
		TopP:          0.95,
		MinP:          0.05,
		RepeatPenalty: 1.1,
		RepeatLastN:   64,
		Seed:          SeedDefault,
	}
}

// Grammar is a GBNF grammar in textual form. Root names the start rule.
// When TriggerOn is non-empty the grammar is lazy: unconstrained decoding
// until the trigger string appears in the output, constrained from then on.
type Grammar struct {
	Root      string
	GBNF      string
	TriggerOn string
}
