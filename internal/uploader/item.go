package uploader

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/policy"
)

// Origin tells where an item came from.
type Origin string

const (
	OriginMultipart Origin = "multipart"
	OriginBody      Origin = "body"
	OriginQuery     Origin = "query"
)

// Item is one normalized upload candidate.
type Item struct {
	Key       string `json:"key"`
	Field     string `json:"field"`
	Origin    Origin `json:"origin"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	TmpPath   string `json:"-"`
	Size      int64  `json:"size"`
	ErrorCode int    `json:"error_code,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Remote reports whether the item still has to be fetched.
func (i Item) Remote() bool {
	return i.URL != ""
}

// FileField is one multipart field as decoded by the request layer. A single
// upload has one entry per slice; an array field (name[]) has N parallel
// entries and Multiple set.
type FileField struct {
	Field    string
	Multiple bool
	Name     []string
	Type     []string
	TmpName  []string
	Error    []int
	Size     []int64
}

// Link is a URL-valued query or body parameter.
type Link struct {
	Field string
	Value string
}

// Input groups the three raw sources of a request.
type Input struct {
	Files []FileField
	Body  []Link
	Query []Link
}

// Sources selects which parts of an Input a batch consumes.
type Sources uint8

const (
	SourceFiles Sources = 1 << iota
	SourceBody
	SourceQuery

	SourceAll = SourceFiles | SourceBody | SourceQuery
)

// Normalize flattens the selected sources into items: files first, then body,
// then query links. A key seen again in a later source replaces the earlier
// item in place.
func Normalize(in Input, sources Sources) []Item {
	var groups [][]Item
	if sources&SourceFiles != 0 {
		groups = append(groups, NormalizeFiles(in.Files))
	}
	if sources&SourceBody != 0 {
		groups = append(groups, NormalizeLinks(OriginBody, in.Body))
	}
	if sources&SourceQuery != 0 {
		groups = append(groups, NormalizeLinks(OriginQuery, in.Query))
	}

	var items []Item
	pos := make(map[string]int)
	for _, group := range groups {
		for _, it := range group {
			if i, ok := pos[it.Key]; ok {
				items[i] = it
				continue
			}
			pos[it.Key] = len(items)
			items = append(items, it)
		}
	}
	return items
}

// NormalizeFiles fans array fields out into "field||i" items in index order.
func NormalizeFiles(fields []FileField) []Item {
	var items []Item
	for _, f := range fields {
		if !f.Multiple {
			it := fileItem(f, 0)
			it.Key = f.Field
			items = append(items, it)
			continue
		}
		for i := range f.Name {
			it := fileItem(f, i)
			it.Key = f.Field + policy.KeySeparator + strconv.Itoa(i)
			items = append(items, it)
		}
	}
	return items
}

func fileItem(f FileField, i int) Item {
	it := Item{
		Field:   f.Field,
		Origin:  OriginMultipart,
		Name:    at(f.Name, i),
		Type:    at(f.Type, i),
		TmpPath: at(f.TmpName, i),
		Size:    at(f.Size, i),
	}
	if i < len(f.Error) {
		it.ErrorCode = f.Error[i]
	} else if it.TmpPath == "" {
		it.ErrorCode = appErrors.ErrCodeNoFile
	}
	return it
}

func at[T any](s []T, i int) T {
	var zero T
	if i < 0 || i >= len(s) {
		return zero
	}
	return s[i]
}

// NormalizeLinks keeps the values that are absolute http(s) URLs. Anything else
// is not an upload attempt and is dropped.
func NormalizeLinks(origin Origin, links []Link) []Item {
	var items []Item
	for _, l := range links {
		u, ok := ParseLink(l.Value)
		if !ok {
			continue
		}
		items = append(items, Item{
			Key:    l.Field,
			Field:  l.Field,
			Origin: origin,
			Name:   linkName(u),
			URL:    u.String(),
		})
	}
	return items
}

// ParseLink normalizes raw and reports whether it is an absolute http or https
// URL with a host. Inner whitespace is percent-escaped first, so a pasted
// "http://host/My Clip.mp4" is accepted as ".../My%20Clip.mp4".
func ParseLink(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(escapeLink(raw))
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" || u.Opaque != "" {
		return nil, false
	}
	u.Scheme = scheme
	return u, true
}

// escapeLink percent-encodes spaces and control bytes. Hosts containing them
// still fail to parse.
func escapeLink(raw string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c > ' ' && c != 0x7f {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func linkName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
