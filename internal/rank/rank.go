// Package rank scores and orders parsed candidates with a fixed additive
// table. Scoring is pure integer arithmetic over a policy value passed in
// at call time, so the order is reproducible for identical input.
package rank

import (
	"sort"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

const (
	scorePreferredLanguage = 50
	penaltyBelowMinQuality = -50
	penaltyOversize        = -100
	maxVoteBonus           = 10
)

var qualityScores = map[domain.Quality]int{
	domain.Quality2160p: 40,
	domain.Quality1080p: 30,
	domain.Quality720p:  20,
	domain.Quality480p:  10,
}

var sourceScores = map[domain.SourceTier]int{
	domain.SourceBluRay: 25,
	domain.SourceWEBDL:  20,
	domain.SourceHDTV:   10,
}

var codecScores = map[domain.Codec]int{
	domain.CodecHEVC: 10,
	domain.CodecH264: 8,
}

// AttributeParser supplies parsed attributes for a candidate name.
type AttributeParser interface {
	Parse(name string) domain.ParsedAttributes
}

// Engine ranks candidates using a configured parser.
type Engine struct {
	parser AttributeParser
}

func NewEngine(parser AttributeParser) *Engine {
	return &Engine{parser: parser}
}

// Rank parses, scores and orders candidates descending by score. Ties break
// on higher vote count, then smaller size. Penalized candidates stay in the
// output even with negative totals; filtering is the caller's decision.
func (e *Engine) Rank(candidates []domain.RawCandidate, policy domain.RankPolicy) []domain.ScoredCandidate {
	scored := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		parsed := e.parser.Parse(candidate.Name)
		breakdown := Score(candidate, parsed, policy)
		scored = append(scored, domain.ScoredCandidate{
			Candidate: candidate,
			Parsed:    parsed,
			Score:     total(breakdown),
			Breakdown: breakdown,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		left, right := scored[i], scored[j]
		if left.Score != right.Score {
			return left.Score > right.Score
		}
		if left.Candidate.PositiveVotes != right.Candidate.PositiveVotes {
			return left.Candidate.PositiveVotes > right.Candidate.PositiveVotes
		}
		return left.Candidate.SizeBytes < right.Candidate.SizeBytes
	})

	for i := range scored {
		scored[i].Position = i + 1
	}
	return scored
}

// Top returns the first n ranked candidates; the rest are discarded.
func Top(scored []domain.ScoredCandidate, n int) []domain.ScoredCandidate {
	if n <= 0 || n >= len(scored) {
		return scored
	}
	return scored[:n]
}

// Score computes the additive terms for one candidate. Exported so tests
// and the confirm surface can show the same arithmetic the sort used.
func Score(candidate domain.RawCandidate, parsed domain.ParsedAttributes, policy domain.RankPolicy) domain.ScoreBreakdown {
	breakdown := domain.ScoreBreakdown{
		Quality: qualityScores[parsed.Quality],
		Source:  sourceScores[parsed.Source],
		Codec:   codecScores[parsed.Codec],
		Votes:   voteBonus(candidate.PositiveVotes),
	}
	if parsed.Language == domain.LanguagePreferred {
		breakdown.Language = scorePreferredLanguage
	}
	if policy.MinQuality != "" && policy.MinQuality != domain.QualityUnknown &&
		parsed.Quality.Rank() < policy.MinQuality.Rank() {
		breakdown.QualityPenalty = penaltyBelowMinQuality
	}
	if policy.MaxSizeBytes > 0 && candidate.SizeBytes > policy.MaxSizeBytes {
		breakdown.SizePenalty = penaltyOversize
	}
	return breakdown
}

// voteBonus scales a positive vote count linearly into 1..10; zero or
// negative counts earn nothing.
func voteBonus(votes int) int {
	if votes <= 0 {
		return 0
	}
	if votes > maxVoteBonus {
		return maxVoteBonus
	}
	return votes
}

func total(b domain.ScoreBreakdown) int {
	return b.Quality + b.Source + b.Codec + b.Language + b.Votes + b.QualityPenalty + b.SizePenalty
}
