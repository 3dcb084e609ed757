package provider

// Descriptor holds per-model request defaults. One table consulted by one
// request path keeps model-specific behavior out of the code flow: adding a
// model is a new entry, not a new branch.
type Descriptor struct {
	ID            string
	TokenCeiling  int     // hard upper bound for max_tokens
	MaxTokens     int     // default max_tokens
	Temperature   float64 // default temperature
	TopP          float64 // default top_p
	SupportsTools bool
}

// DefaultModel is used when the caller supplies no model list.
const DefaultModel = "llama-3.3-70b-versatile"

var descriptors = map[string]Descriptor{
	"llama-3.3-70b-versatile": {
		ID:           "llama-3.3-70b-versatile",
		TokenCeiling: 32768,
		MaxTokens:    32768,
		Temperature:  1,
		TopP:         1,
	},
	"openai/gpt-oss-120b": {
		ID:            "openai/gpt-oss-120b",
		TokenCeiling:  65536,
		MaxTokens:     65536,
		Temperature:   1,
		TopP:          1,
		SupportsTools: true,
	},
	"meta-llama/llama-4-maverick-17b-128e-instruct": {
		ID:           "meta-llama/llama-4-maverick-17b-128e-instruct",
		TokenCeiling: 8192,
		MaxTokens:    8192,
		Temperature:  1,
		TopP:         1,
	},
	"meta-llama/llama-4-scout-17b-16e-instruct": {
		ID:           "meta-llama/llama-4-scout-17b-16e-instruct",
		TokenCeiling: 8192,
		MaxTokens:    8192,
		Temperature:  1,
		TopP:         1,
	},
	"moonshotai/kimi-k2-instruct-0905": {
		ID:           "moonshotai/kimi-k2-instruct-0905",
		TokenCeiling: 16384,
		MaxTokens:    16384,
		Temperature:  0.7,
		TopP:         1,
	},
}

// fallback covers model IDs with no registered descriptor.
var fallback = Descriptor{
	TokenCeiling: 8192,
	MaxTokens:    8192,
	Temperature:  1,
	TopP:         1,
}

// Lookup returns the descriptor for modelID, or a conservative default for
// unknown models (the ID is carried through so the upstream still sees it).
func Lookup(modelID string) Descriptor {
	if d, ok := descriptors[modelID]; ok {
		return d
	}
	d := fallback
	d.ID = modelID
	return d
}

// Models returns the IDs of all registered models.
func Models() []string {
	ids := make([]string, 0, len(descriptors))
	for id := range descriptors {
		ids = append(ids, id)
	}
	return ids
}

// Options overrides the descriptor defaults for a single request. Nil
// pointer fields mean "use the model default".
type Options struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   int // 0 means model default
	Stop        []string
}

// resolve merges opts over the descriptor and clamps everything into the
// documented ranges: temperature [0,2], top_p [0,1], max_tokens [1,ceiling].
func (d Descriptor) resolve(opts Options) (temperature, topP float64, maxTokens int) {
	temperature = d.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	topP = d.TopP
	if opts.TopP != nil {
		topP = *opts.TopP
	}
	maxTokens = d.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	temperature = clampFloat(temperature, 0, 2)
	topP = clampFloat(topP, 0, 1)
	maxTokens = clampInt(maxTokens, 1, d.TokenCeiling)
	return temperature, topP, maxTokens
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
