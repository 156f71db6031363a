package sina

import (
	"github.com/Sternrassler/finnews-client/pkg/pagination"
	"github.com/Sternrassler/finnews-client/pkg/query"
)

// Upstream base URLs.
const (
	DefaultZhiboURL = "https://zhibo.sina.com.cn/api/zhibo/feed"
	DefaultRollURL  = "https://feed.mix.sina.com.cn/api/roll/get"
)

// Fixed upstream selectors.
const (
	zhiboID    = 152
	rollPageID = 384
)

// ZhiboEndpoint describes the 7x24 live feed rooted at base.
func ZhiboEndpoint(base string) pagination.Endpoint {
	return pagination.Endpoint{
		Name:       "zhibo",
		Normalizer: pagination.CursorNormalizer{},
		URL: func(q pagination.Query) (string, error) {
			return query.Build(base, query.Params{
				"page":      q.Page,
				"page_size": q.PageSize,
				"zhibo_id":  zhiboID,
				"tag_id":    q.TopicID,
				"dire":      "f",
				"dpc":       1,
				"pagesize":  q.PageSize,
			})
		},
	}
}

// RollEndpoint describes the roll news feed rooted at base.
func RollEndpoint(base string) pagination.Endpoint {
	return pagination.Endpoint{
		Name:       "roll",
		Normalizer: pagination.RollNormalizer{},
		URL: func(q pagination.Query) (string, error) {
			return query.Build(base, query.Params{
				"pageid": rollPageID,
				"lid":    q.TopicID,
				"k":      "",
				"num":    q.PageSize,
				"page":   q.Page,
			})
		},
	}
}
