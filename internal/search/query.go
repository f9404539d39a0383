package search

import "strings"

// GamesMapping is the field mapping of the games index.
var GamesMapping = map[string]string{
	"id":          "keyword",
	"title":       "text",
	"description": "text",
	"price":       "double",
	"genre":       "integer",
}

// HitsMapping is the field mapping of the search-hits analytics index.
var HitsMapping = map[string]string{
	"gameId":    "keyword",
	"timestamp": "date",
}

func mappingBody(props map[string]string) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	for field, typ := range props {
		properties[field] = map[string]interface{}{"type": typ}
	}
	return map[string]interface{}{
		"mappings": map[string]interface{}{"properties": properties},
	}
}

// multiMatch scores title three times higher than description and tolerates
// typos with an edit distance chosen from the term length.
func multiMatch(text string) map[string]interface{} {
	return map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":     text,
			"fields":    []string{"title^3", "description"},
			"fuzziness": "AUTO",
		},
	}
}

func genreTerm(genre int) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{"genre": genre},
	}
}

func fuzzyQuery(text string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size":  size,
		"query": multiMatch(text),
	}
}

// filteredQuery returns false when neither text nor genre is given.
func filteredQuery(text string, genre *int, size int) (map[string]interface{}, bool) {
	text = strings.TrimSpace(text)
	var query map[string]interface{}
	switch {
	case text != "" && genre != nil:
		query = map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   []interface{}{multiMatch(text)},
				"filter": []interface{}{genreTerm(*genre)},
			},
		}
	case text != "":
		query = multiMatch(text)
	case genre != nil:
		query = genreTerm(*genre)
	default:
		return nil, false
	}
	return map[string]interface{}{"size": size, "query": query}, true
}

func sampleQuery(genre, size int, seed int64) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"function_score": map[string]interface{}{
				"query":        genreTerm(genre),
				"random_score": map[string]interface{}{"seed": seed},
			},
		},
	}
}

const topAggregation = "top"

func topHitsQuery(size int) map[string]interface{} {
	return map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			topAggregation: map[string]interface{}{
				"terms": map[string]interface{}{"field": "gameId", "size": size},
			},
		},
	}
}
