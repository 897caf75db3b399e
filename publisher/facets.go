package publisher

import "regexp"

// urlPattern is deliberately permissive: a scheme followed by anything that
// is not whitespace. Offsets must be byte offsets into the UTF-8 text, which
// FindAllStringIndex already produces.
var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Facet marks a byte span of post text as rich content.
type Facet struct {
	Index    ByteSlice     `json:"index"`
	Features []LinkFeature `json:"features"`
}

// ByteSlice addresses a span of the UTF-8 encoded text.
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// LinkFeature marks the span as a clickable link.
type LinkFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

const linkFeatureType = "app.bsky.richtext.facet#link"

// DetectLinkFacets finds every URL shaped substring in text and returns one
// link facet per match, addressed by byte offset.
func DetectLinkFacets(text string) []Facet {
	matches := urlPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	facets := make([]Facet, 0, len(matches))
	for _, match := range matches {
		start, end := match[0], match[1]
		facets = append(facets, Facet{
			Index: ByteSlice{ByteStart: start, ByteEnd: end},
			Features: []LinkFeature{{
				Type: linkFeatureType,
				URI:  text[start:end],
			}},
		})
	}
	return facets
}
