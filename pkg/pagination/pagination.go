package pagination

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a limit/offset window over a result set.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string. Missing or
// malformed values fall back to the defaults; limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("limit"), c.QueryParam("offset"))
}

func Parse(limitParam, offsetParam string) Params {
	limit, err := strconv.Atoi(limitParam)
	switch {
	case err != nil || limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	offset, err := strconv.Atoi(offsetParam)
	if err != nil || offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// Response is the envelope for every list endpoint.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	p := Params{Limit: limit, Offset: offset}
	return &Response{Data: data, Total: total, Limit: limit, Offset: offset, HasMore: p.hasNext(total)}
}

func (p Params) hasNext(total int) bool { return p.Offset+p.Limit < total }

func (p Params) prevOffset() int {
	if prev := p.Offset - p.Limit; prev > 0 {
		return prev
	}
	return 0
}

// LinkHeader builds an RFC 8288 Link value with next and prev relations,
// keeping the other query parameters.
func (p Params) LinkHeader(path string, query url.Values, total int) string {
	page := func(offset int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(p.Limit))
		q.Set("offset", strconv.Itoa(offset))
		return path + "?" + q.Encode()
	}

	var parts []string
	if p.hasNext(total) {
		parts = append(parts, fmt.Sprintf(`<%s>; rel="next"`, page(p.Offset+p.Limit)))
	}
	if p.Offset > 0 {
		parts = append(parts, fmt.Sprintf(`<%s>; rel="prev"`, page(p.prevOffset())))
	}
	return strings.Join(parts, ", ")
}

// Respond writes the list envelope and the matching Link header.
func Respond(c echo.Context, p Params, data interface{}, total int) error {
	req := c.Request()
	if link := p.LinkHeader(req.URL.Path, req.URL.Query(), total); link != "" {
		c.Response().Header().Set("Link", link)
	}
	return c.JSON(http.StatusOK, NewResponse(data, total, p.Limit, p.Offset))
}
