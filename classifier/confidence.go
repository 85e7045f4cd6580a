package classifier

import (
	"sort"

	"github.com/happyhackingspace/diet/internal/nn"
	"github.com/happyhackingspace/diet/nlu"
)

type normalization int

const (
	normalizationNone normalization = iota
	normalizationSoftmax
	normalizationLinear
)

// rankingPolicy decides how raw label similarities become reported
// confidences and how many candidates survive. cutoff zero means unlimited.
type rankingPolicy struct {
	norm   normalization
	cutoff int
}

// resolveRankingPolicy maps the configuration onto a policy. Margin loss
// reports raw similarities capped at the default ranking length; the
// softmax path truncates without renormalizing, so truncated confidences
// stay at their full-distribution values; linear normalization rescales
// shifted similarities to sum to 1 and never passes through softmax.
func resolveRankingPolicy(cfg *Config) rankingPolicy {
	if cfg.LossType == LossMargin {
		return rankingPolicy{norm: normalizationNone, cutoff: DefaultRankingLength}
	}

	cutoff := DefaultRankingLength
	switch {
	case cfg.RankingLength < 0:
		cutoff = 0
	case cfg.RankingLength > 0 && cfg.RankingLength < DefaultRankingLength:
		cutoff = cfg.RankingLength
	}

	norm := normalizationSoftmax
	if cfg.ModelConfidence == ConfidenceLinearNorm {
		norm = normalizationLinear
	}
	return rankingPolicy{norm: norm, cutoff: cutoff}
}

// linearNormalize rescales similarities by shifting to the minimum and
// dividing by the shifted sum, producing a distribution without exponential
// weighting. Flat inputs become uniform.
func linearNormalize(sims []float64) []float64 {
	if len(sims) == 0 {
		return nil
	}
	min := sims[0]
	for _, s := range sims[1:] {
		if s < min {
			min = s
		}
	}
	out := make([]float64, len(sims))
	sum := 0.0
	for i, s := range sims {
		out[i] = s - min
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ranking turns raw label similarities into a sorted, truncated candidate
// list. Ties break on label id so results are deterministic.
func (p rankingPolicy) ranking(sims []float64, labels *nlu.Vocabulary) []IntentPrediction {
	var conf []float64
	switch p.norm {
	case normalizationSoftmax:
		conf = nn.Softmax(sims)
	case normalizationLinear:
		conf = linearNormalize(sims)
	default:
		conf = sims
	}

	out := make([]IntentPrediction, len(conf))
	order := make([]int, len(conf))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if conf[order[a]] != conf[order[b]] {
			return conf[order[a]] > conf[order[b]]
		}
		return order[a] < order[b]
	})
	for rank, id := range order {
		out[rank] = IntentPrediction{Name: labels.Label(id), Confidence: conf[id]}
	}

	if p.cutoff > 0 && len(out) > p.cutoff {
		out = out[:p.cutoff]
	}
	return out
}
