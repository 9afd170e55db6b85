package telegram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// params collects the form fields of one method call.
type params struct {
	v url.Values
}

func newParams() *params {
	return &params{v: url.Values{}}
}

func (p *params) add(key, value string) {
	p.v.Set(key, value)
}

func (p *params) addInt(key string, n int64) {
	p.v.Set(key, strconv.FormatInt(n, 10))
}

func (p *params) addFloat(key string, f float64) {
	p.v.Set(key, strconv.FormatFloat(f, 'f', -1, 64))
}

func (p *params) addIntOpt(key string, n *int64) {
	if n != nil {
		p.addInt(key, *n)
	}
}

func (p *params) addBoolOpt(key string, b *bool) {
	if b != nil {
		p.v.Set(key, strconv.FormatBool(*b))
	}
}

func (p *params) addStringOpt(key, s string) {
	if s != "" {
		p.v.Set(key, s)
	}
}

// addJSONOpt stores v as a JSON-encoded field. Nil values are skipped.
func (p *params) addJSONOpt(key string, v any) error {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	p.v.Set(key, string(data))
	return nil
}

func (p *params) encode() string {
	return p.v.Encode()
}
