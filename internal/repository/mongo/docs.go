package mongo

import (
	"time"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

type candidateDoc struct {
	Ident         string `bson:"ident"`
	Name          string `bson:"name"`
	SizeBytes     int64  `bson:"sizeBytes"`
	PositiveVotes int    `bson:"positiveVotes"`
	NegativeVotes int    `bson:"negativeVotes,omitempty"`
	Protected     bool   `bson:"protected,omitempty"`
}

type parsedDoc struct {
	Quality   string `bson:"quality"`
	Source    string `bson:"source"`
	Codec     string `bson:"codec"`
	Language  string `bson:"language"`
	Confident bool   `bson:"confident"`
}

type breakdownDoc struct {
	Quality        int `bson:"quality"`
	Source         int `bson:"source"`
	Codec          int `bson:"codec"`
	Language       int `bson:"language"`
	Votes          int `bson:"votes"`
	QualityPenalty int `bson:"qualityPenalty,omitempty"`
	SizePenalty    int `bson:"sizePenalty,omitempty"`
}

type scoredDoc struct {
	Candidate candidateDoc `bson:"candidate"`
	Parsed    parsedDoc    `bson:"parsed"`
	Score     int          `bson:"score"`
	Position  int          `bson:"position"`
	Breakdown breakdownDoc `bson:"breakdown"`
}

type queryDoc struct {
	Title     string `bson:"title"`
	Season    int    `bson:"season,omitempty"`
	Episode   int    `bson:"episode,omitempty"`
	Year      int    `bson:"year,omitempty"`
	Source    string `bson:"source"`
	Requested int64  `bson:"requested"`
}

func toCandidateDoc(c domain.RawCandidate) candidateDoc {
	return candidateDoc{
		Ident:         c.Ident,
		Name:          c.Name,
		SizeBytes:     c.SizeBytes,
		PositiveVotes: c.PositiveVotes,
		NegativeVotes: c.NegativeVotes,
		Protected:     c.Protected,
	}
}

func fromCandidateDoc(doc candidateDoc) domain.RawCandidate {
	return domain.RawCandidate{
		Ident:         doc.Ident,
		Name:          doc.Name,
		SizeBytes:     doc.SizeBytes,
		PositiveVotes: doc.PositiveVotes,
		NegativeVotes: doc.NegativeVotes,
		Protected:     doc.Protected,
	}
}

func toScoredDoc(s domain.ScoredCandidate) scoredDoc {
	return scoredDoc{
		Candidate: toCandidateDoc(s.Candidate),
		Parsed: parsedDoc{
			Quality:   string(s.Parsed.Quality),
			Source:    string(s.Parsed.Source),
			Codec:     string(s.Parsed.Codec),
			Language:  string(s.Parsed.Language),
			Confident: s.Parsed.Confident,
		},
		Score:    s.Score,
		Position: s.Position,
		Breakdown: breakdownDoc{
			Quality:        s.Breakdown.Quality,
			Source:         s.Breakdown.Source,
			Codec:          s.Breakdown.Codec,
			Language:       s.Breakdown.Language,
			Votes:          s.Breakdown.Votes,
			QualityPenalty: s.Breakdown.QualityPenalty,
			SizePenalty:    s.Breakdown.SizePenalty,
		},
	}
}

func fromScoredDoc(doc scoredDoc) domain.ScoredCandidate {
	return domain.ScoredCandidate{
		Candidate: fromCandidateDoc(doc.Candidate),
		Parsed: domain.ParsedAttributes{
			Quality:   domain.Quality(doc.Parsed.Quality),
			Source:    domain.SourceTier(doc.Parsed.Source),
			Codec:     domain.Codec(doc.Parsed.Codec),
			Language:  domain.Language(doc.Parsed.Language),
			Confident: doc.Parsed.Confident,
		},
		Score:    doc.Score,
		Position: doc.Position,
		Breakdown: domain.ScoreBreakdown{
			Quality:        doc.Breakdown.Quality,
			Source:         doc.Breakdown.Source,
			Codec:          doc.Breakdown.Codec,
			Language:       doc.Breakdown.Language,
			Votes:          doc.Breakdown.Votes,
			QualityPenalty: doc.Breakdown.QualityPenalty,
			SizePenalty:    doc.Breakdown.SizePenalty,
		},
	}
}

func toQueryDoc(q domain.SearchQuery) queryDoc {
	return queryDoc{
		Title:     q.Title,
		Season:    q.Season,
		Episode:   q.Episode,
		Year:      q.Year,
		Source:    string(q.Source),
		Requested: q.Requested.Unix(),
	}
}

func fromQueryDoc(doc queryDoc) domain.SearchQuery {
	return domain.SearchQuery{
		Title:     doc.Title,
		Season:    doc.Season,
		Episode:   doc.Episode,
		Year:      doc.Year,
		Source:    domain.QuerySource(doc.Source),
		Requested: timeFromUnix(doc.Requested),
	}
}

func timeFromUnix(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}
