package visibility

import (
	"net/url"
	"strings"
)

// Param is one query parameter. Order matters to the builder: when both
// period and from/to are given, whichever kind comes later wins.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list. A key appears once, at the
// position of its first occurrence, carrying its last value.
type Params []Param

// ParseQuery splits a raw query string preserving parameter order.
// Pairs that fail to unescape are dropped, as url.ParseQuery does.
func ParseQuery(rawQuery string) Params {
	var (
		out   Params
		index = map[string]int{}
	)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}

		if i, ok := index[key]; ok {
			out[i].Value = value
			continue
		}
		index[key] = len(out)
		out = append(out, Param{Key: key, Value: value})
	}
	return out
}

func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}
