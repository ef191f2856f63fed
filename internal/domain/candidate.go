package domain

// RawCandidate is one downloadable item returned by a search provider.
// Immutable once fetched; Ident is the provider-assigned identifier used
// for deduplication and later link resolution.
type RawCandidate struct {
	Ident         string `json:"ident"`
	Name          string `json:"name"`
	SizeBytes     int64  `json:"sizeBytes"`
	PositiveVotes int    `json:"positiveVotes"`
	NegativeVotes int    `json:"negativeVotes,omitempty"`
	Protected     bool   `json:"protected,omitempty"`
}

// Quality is the resolution tier parsed from a candidate name.
type Quality string

const (
	Quality2160p   Quality = "2160p"
	Quality1080p   Quality = "1080p"
	Quality720p    Quality = "720p"
	Quality480p    Quality = "480p"
	QualityUnknown Quality = "unknown"
)

// Rank orders quality tiers; higher means better. Unknown ranks lowest.
func (q Quality) Rank() int {
	switch q {
	case Quality2160p:
		return 4
	case Quality1080p:
		return 3
	case Quality720p:
		return 2
	case Quality480p:
		return 1
	default:
		return 0
	}
}

// SourceTier is the release source parsed from a candidate name.
type SourceTier string

const (
	SourceBluRay  SourceTier = "BluRay"
	SourceWEBDL   SourceTier = "WEB-DL"
	SourceHDTV    SourceTier = "HDTV"
	SourceUnknown SourceTier = "unknown"
)

// Codec is the video codec parsed from a candidate name.
type Codec string

const (
	CodecHEVC    Codec = "HEVC"
	CodecH264    Codec = "H264"
	CodecUnknown Codec = "unknown"
)

// Language says whether the candidate carries the preferred audio language.
type Language string

const (
	LanguagePreferred Language = "preferred"
	LanguageOther     Language = "other"
	LanguageUnknown   Language = "unknown"
)

// ParsedAttributes are the structured attributes derived from a candidate
// name. Derived deterministically and never mutated afterward; any field
// that could not be matched stays at its unknown member.
type ParsedAttributes struct {
	Quality   Quality    `json:"quality"`
	Source    SourceTier `json:"source"`
	Codec     Codec      `json:"codec"`
	Language  Language   `json:"language"`
	Confident bool       `json:"confident"`
}

// ScoreBreakdown itemizes the additive terms of a candidate score.
type ScoreBreakdown struct {
	Quality        int `json:"quality"`
	Source         int `json:"source"`
	Codec          int `json:"codec"`
	Language       int `json:"language"`
	Votes          int `json:"votes"`
	QualityPenalty int `json:"qualityPenalty,omitempty"`
	SizePenalty    int `json:"sizePenalty,omitempty"`
}

// ScoredCandidate pairs a raw candidate with its parsed attributes and
// deterministic score. Exists within one orchestration pass and inside
// pending-confirmation snapshots; never persisted elsewhere.
type ScoredCandidate struct {
	Candidate RawCandidate     `json:"candidate"`
	Parsed    ParsedAttributes `json:"parsed"`
	Score     int              `json:"score"`
	Position  int              `json:"position"`
	Breakdown ScoreBreakdown   `json:"breakdown"`
}

// RankPolicy holds the immutable policy parameters consumed by the ranking
// engine. Passed in at call time so behavior is reproducible in tests.
type RankPolicy struct {
	MinQuality        Quality
	MaxSizeBytes      int64
	PreferredLanguage string
}
