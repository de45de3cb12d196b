package risk

import "time"

// DefaultWeights favours signals that point to forged or shared codes.
var DefaultWeights = map[Kind]float64{
	AttestOK:               0,
	AttestInvalidPayload:   1,
	AttestInvalidSignature: 5,
	AttestExpired:          0.5,
	AttestAlreadyUsed:      2,
	SpinAllowed:            0,
	SpinDenied:             1,
	RedeemOK:               0.5,
	RedeemRejected:         1,
}

// WeightedPolicy scores events by kind and adds a surcharge for each
// redemption beyond VelocityLimit inside VelocityWindow.
type WeightedPolicy struct {
	weights         map[Kind]float64
	window          time.Duration
	velocityWindow  time.Duration
	velocityLimit   int
	velocityPenalty float64
}

// PolicyOption configures a WeightedPolicy.
type PolicyOption func(*WeightedPolicy)

// WithWeights overrides per-kind weights. Unknown kinds and negative weights
// are ignored.
func WithWeights(w map[string]float64) PolicyOption {
	return func(p *WeightedPolicy) {
		for _, k := range Kinds() {
			if v, ok := w[string(k)]; ok && v >= 0 {
				p.weights[k] = v
			}
		}
	}
}

// WithWindow sets the scoring window.
func WithWindow(d time.Duration) PolicyOption {
	return func(p *WeightedPolicy) {
		if d > 0 {
			p.window = d
		}
	}
}

// WithVelocity sets the redemption velocity surcharge.
func WithVelocity(window time.Duration, limit int, penalty float64) PolicyOption {
	return func(p *WeightedPolicy) {
		if window > 0 && limit > 0 && penalty >= 0 {
			p.velocityWindow = window
			p.velocityLimit = limit
			p.velocityPenalty = penalty
		}
	}
}

// NewWeightedPolicy creates the default policy.
func NewWeightedPolicy(opts ...PolicyOption) *WeightedPolicy {
	p := &WeightedPolicy{
		weights:         make(map[Kind]float64, len(DefaultWeights)),
		window:          30 * 24 * time.Hour,
		velocityWindow:  time.Hour,
		velocityLimit:   3,
		velocityPenalty: 2,
	}
	for k, v := range DefaultWeights {
		p.weights[k] = v
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WeightedPolicy) Window() time.Duration   { return p.window }
func (p *WeightedPolicy) Lookback() time.Duration { return p.velocityWindow }

// Weight implements Policy.
func (p *WeightedPolicy) Weight(e Event, recent []Event) float64 {
	w := p.weights[e.Kind]
	if e.Kind != RedeemOK {
		return w
	}
	n := 1
	for _, r := range recent {
		if r.Kind == RedeemOK {
			n++
		}
	}
	if n > p.velocityLimit {
		w += p.velocityPenalty
	}
	return w
}
