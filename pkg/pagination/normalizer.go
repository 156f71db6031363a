package pagination

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/finnews-client/pkg/client"
)

// ErrUpstreamStatus means the envelope status code was missing or non-zero.
// The page is treated as "no more data", not as a fault.
var ErrUpstreamStatus = errors.New("upstream reported non-success status")

// statusOK is the envelope status code for a successful response.
const statusOK = 0

// Page info defaults used when the cursor envelope omits them.
const (
	defaultTotalPages = 1
	defaultPageSize   = 20
)

// NormalizedPage is the part of a response the drivers care about.
type NormalizedPage struct {
	Items []RawItem

	// TotalPages is the upstream-reported page count; 0 when the feed
	// does not report one.
	TotalPages int
	PageSize   int
	TotalItems int
}

// Normalizer extracts items and page metadata from one response.
type Normalizer interface {
	Normalize(page *client.RawPage) (NormalizedPage, error)
}

// Exhausted reports whether a run must stop after this page: either the
// page could not be fetched or decoded, or it carried no items.
func Exhausted(page NormalizedPage, err error) bool {
	return err != nil || len(page.Items) == 0
}

// envelope is the outer shape shared by both Sina feeds.
type envelope struct {
	Result *struct {
		Status *struct {
			Code *int   `json:"code"`
			Msg  string `json:"msg"`
		} `json:"status"`
		Data json.RawMessage `json:"data"`
	} `json:"result"`
}

// data returns the result.data payload after checking the status code.
func (e *envelope) data() (json.RawMessage, error) {
	if e.Result == nil || e.Result.Status == nil || e.Result.Status.Code == nil {
		return nil, fmt.Errorf("%w: status code missing", ErrUpstreamStatus)
	}
	if code := *e.Result.Status.Code; code != statusOK {
		return nil, fmt.Errorf("%w: code %d (%s)", ErrUpstreamStatus, code, e.Result.Status.Msg)
	}
	if len(e.Result.Data) == 0 || bytes.Equal(e.Result.Data, []byte("null")) {
		return nil, errors.New("result.data missing")
	}
	return e.Result.Data, nil
}

// CursorNormalizer reads the zhibo feed envelope:
//
//	{"result": {"status": {"code": 0}, "data": {"feed": {"list": [...], "page_info": {...}}}}}
type CursorNormalizer struct{}

type cursorData struct {
	Feed *struct {
		List     []RawItem `json:"list"`
		PageInfo *struct {
			TotalPage *int `json:"totalPage"`
			PageSize  *int `json:"pageSize"`
			TotalNum  *int `json:"totalNum"`
		} `json:"page_info"`
	} `json:"feed"`
}

// Normalize implements Normalizer.
func (CursorNormalizer) Normalize(page *client.RawPage) (NormalizedPage, error) {
	var env envelope
	if err := decode(page.Body, &env); err != nil {
		return NormalizedPage{}, malformed(page, err)
	}

	raw, err := env.data()
	if err != nil {
		if errors.Is(err, ErrUpstreamStatus) {
			return NormalizedPage{}, err
		}
		return NormalizedPage{}, malformed(page, err)
	}

	var data cursorData
	if err := decode(raw, &data); err != nil {
		return NormalizedPage{}, malformed(page, err)
	}
	if data.Feed == nil {
		return NormalizedPage{}, malformed(page, errors.New("result.data.feed missing"))
	}

	out := NormalizedPage{
		Items:      data.Feed.List,
		TotalPages: defaultTotalPages,
		PageSize:   defaultPageSize,
	}
	if info := data.Feed.PageInfo; info != nil {
		if info.TotalPage != nil {
			out.TotalPages = *info.TotalPage
		}
		if info.PageSize != nil {
			out.PageSize = *info.PageSize
		}
		if info.TotalNum != nil {
			out.TotalItems = *info.TotalNum
		}
	}
	return out, nil
}

// RollNormalizer reads the roll feed envelope, where result.data is the
// item array itself and no page info exists:
//
//	{"result": {"status": {"code": 0}, "data": [...]}}
type RollNormalizer struct{}

// Normalize implements Normalizer.
func (RollNormalizer) Normalize(page *client.RawPage) (NormalizedPage, error) {
	var env envelope
	if err := decode(page.Body, &env); err != nil {
		return NormalizedPage{}, malformed(page, err)
	}

	raw, err := env.data()
	if err != nil {
		if errors.Is(err, ErrUpstreamStatus) {
			return NormalizedPage{}, err
		}
		return NormalizedPage{}, malformed(page, err)
	}

	var items []RawItem
	if err := decode(raw, &items); err != nil {
		return NormalizedPage{}, malformed(page, err)
	}

	return NormalizedPage{
		Items:    items,
		PageSize: len(items),
	}, nil
}

// decode unmarshals with UseNumber so numeric item fields keep their
// exact textual form.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func malformed(page *client.RawPage, err error) error {
	return &client.FetchError{
		Kind:       client.KindMalformed,
		URL:        page.URL,
		StatusCode: page.StatusCode,
		Err:        err,
	}
}
