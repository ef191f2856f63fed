// Package release parses raw candidate names into structured attributes.
// Parsing is a total function: malformed or unexpected names never fail,
// unmatched fields fall back to the unknown member of each category.
package release

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var qualityTokens = map[string]domain.Quality{
	"2160p": domain.Quality2160p,
	"4k":    domain.Quality2160p,
	"uhd":   domain.Quality2160p,
	"1080p": domain.Quality1080p,
	"1080i": domain.Quality1080p,
	"720p":  domain.Quality720p,
	"720i":  domain.Quality720p,
	"480p":  domain.Quality480p,
	"480i":  domain.Quality480p,
}

var sourceTokens = map[string]domain.SourceTier{
	"bluray": domain.SourceBluRay,
	"blu":    domain.SourceBluRay,
	"bdrip":  domain.SourceBluRay,
	"brrip":  domain.SourceBluRay,
	"remux":  domain.SourceBluRay,
	"webdl":  domain.SourceWEBDL,
	"web":    domain.SourceWEBDL,
	"webrip": domain.SourceWEBDL,
	"hdtv":   domain.SourceHDTV,
}

var codecTokens = map[string]domain.Codec{
	"hevc": domain.CodecHEVC,
	"x265": domain.CodecHEVC,
	"h265": domain.CodecHEVC,
	"h264": domain.CodecH264,
	"x264": domain.CodecH264,
	"avc":  domain.CodecH264,
}

// foreignLanguageTokens are language markers that are recognizable but not
// matched against the preferred set; their presence classifies a candidate
// as "other" rather than "unknown".
var foreignLanguageTokens = map[string]struct{}{
	"en": {}, "eng": {}, "english": {},
	"de": {}, "ger": {}, "german": {},
	"fr": {}, "fre": {}, "french": {},
	"es": {}, "spa": {}, "spanish": {},
	"it": {}, "ita": {}, "italian": {},
	"ru": {}, "rus": {}, "russian": {},
	"pl": {}, "pol": {}, "polish": {},
	"sk": {}, "slo": {}, "slovak": {},
	"cz": {}, "cs": {}, "cze": {}, "ces": {}, "czech": {},
	"hu": {}, "hun": {}, "hungarian": {},
	"multi": {},
}

// sceneAliases maps a base language to scene-convention tokens that plain
// ISO codes miss (e.g. Czech releases tagged CZ or "dabing").
var sceneAliases = map[string][]string{
	"cs": {"cz", "czech", "dabing", "cesky"},
	"sk": {"slovak", "slovensky"},
	"en": {"eng", "english"},
	"de": {"ger", "german"},
	"ru": {"rus", "russian"},
}

// Parser turns candidate names into ParsedAttributes with a configured
// preferred language.
type Parser struct {
	preferred map[string]struct{}
}

// New builds a parser whose preferred-language token set is derived from a
// BCP-47 tag (e.g. "cs"). An unparseable tag yields a parser that never
// matches the preferred language, not an error: ranking still works, the
// language term just stays at zero.
func New(preferredLang string) *Parser {
	preferred := make(map[string]struct{})
	raw := strings.TrimSpace(preferredLang)
	if raw != "" {
		if tag, err := language.Parse(raw); err == nil {
			base, _ := tag.Base()
			two := strings.ToLower(base.String())
			preferred[two] = struct{}{}
			preferred[strings.ToLower(base.ISO3())] = struct{}{}
			for _, alias := range sceneAliases[two] {
				preferred[alias] = struct{}{}
			}
		}
	}
	return &Parser{preferred: preferred}
}

// Parse derives structured attributes from a raw candidate name. It never
// fails; each category keeps its unknown member when nothing matched.
// Conflicting quality tokens resolve to the highest one found.
func (p *Parser) Parse(name string) domain.ParsedAttributes {
	attrs := domain.ParsedAttributes{
		Quality:  domain.QualityUnknown,
		Source:   domain.SourceUnknown,
		Codec:    domain.CodecUnknown,
		Language: domain.LanguageUnknown,
	}

	tokens := tokenPattern.FindAllString(strings.ToLower(name), -1)
	for _, token := range tokens {
		if quality, ok := qualityTokens[token]; ok {
			if quality.Rank() > attrs.Quality.Rank() {
				attrs.Quality = quality
			}
		}
		if attrs.Source == domain.SourceUnknown {
			if source, ok := sourceTokens[token]; ok {
				attrs.Source = source
			}
		}
		if attrs.Codec == domain.CodecUnknown {
			if codec, ok := codecTokens[token]; ok {
				attrs.Codec = codec
			}
		}
		if attrs.Language != domain.LanguagePreferred {
			if _, ok := p.preferred[token]; ok {
				attrs.Language = domain.LanguagePreferred
			} else if _, ok := foreignLanguageTokens[token]; ok {
				attrs.Language = domain.LanguageOther
			}
		}
	}

	attrs.Confident = attrs.Quality != domain.QualityUnknown && attrs.Source != domain.SourceUnknown
	return attrs
}
