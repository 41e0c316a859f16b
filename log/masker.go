/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"
)

// FieldMaskFormat defines possible values for field mask formats.
type FieldMaskFormat string

// Field mask formats.
const (
	FieldMaskFormatHTTPHeader FieldMaskFormat = "http_header"
	FieldMaskFormatJSON       FieldMaskFormat = "json"
	FieldMaskFormatURLEncoded FieldMaskFormat = "urlencoded"
)

// MaskingRuleConfig is a configuration for a single masking rule.
type MaskingRuleConfig struct {
	Field   string
	Formats []FieldMaskFormat
	Masks   []MaskConfig
}

// MaskConfig is a configuration for a single mask.
type MaskConfig struct {
	RegExp string
	Mask   string
}

// DefaultMasks hide credentials the proxy handles: caller and backend authorization
// headers, the backend API key and the counter store token.
var DefaultMasks = []MaskingRuleConfig{
	{Field: "Authorization", Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader, FieldMaskFormatJSON}},
	{Field: "apikey", Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader, FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "token", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "password", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "access_token", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "refresh_token", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
}

type mask struct {
	re          *regexp.Regexp
	replacement string
}

type fieldMasker struct {
	field string // lowercase
	masks []mask
}

func newFieldMasker(cfg MaskingRuleConfig) fieldMasker {
	fm := fieldMasker{field: strings.ToLower(cfg.Field), masks: make([]mask, 0, len(cfg.Masks)+len(cfg.Formats))}
	for _, m := range cfg.Masks {
		fm.masks = append(fm.masks, mask{regexp.MustCompile(m.RegExp), m.Mask})
	}
	quoted := regexp.QuoteMeta(cfg.Field)
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fm.masks = append(fm.masks, mask{regexp.MustCompile(`(?i)` + quoted + `: .+?\r\n`), cfg.Field + ": ***\r\n"})
		case FieldMaskFormatJSON:
			fm.masks = append(fm.masks, mask{regexp.MustCompile(`(?i)"` + quoted + `"\s*:\s*".*?[^\\]"`), `"` + cfg.Field + `": "***"`})
		case FieldMaskFormatURLEncoded:
			fm.masks = append(fm.masks, mask{regexp.MustCompile(`(?i)\b` + quoted + `\s*=\s*[^&\s]+`), cfg.Field + "=***"})
		}
	}
	return fm
}

// Masker is used to mask various secrets in strings.
type Masker struct {
	fieldMasks []fieldMasker
}

// NewMasker compiles masking rules. It panics on an invalid custom regexp.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{fieldMasks: make([]fieldMasker, 0, len(rules))}
	for _, rule := range rules {
		m.fieldMasks = append(m.fieldMasks, newFieldMasker(rule))
	}
	return m
}

// Mask replaces secret values in s.
func (m *Masker) Mask(s string) string {
	lower := strings.ToLower(s)
	for _, fm := range m.fieldMasks {
		if !strings.Contains(lower, fm.field) {
			continue
		}
		for _, msk := range fm.masks {
			s = msk.re.ReplaceAllString(s, msk.replacement)
		}
	}
	return s
}
