package schema

import (
	"reflect"
	"strings"
	"sync"
)

// TagName is the struct tag key read from shape fields.
const TagName = "duck"

// ParsedTag is the structural configuration read from a shape field tag.
type ParsedTag struct {
	Name       string     // override name searched on the source type
	Skip       bool       // duck:"-"
	Kind       MemberKind // valid when HasKind
	HasKind    bool
	Get        bool       // force getter access
	Set        bool       // force setter access
	Visibility Visibility // zero means "not specified"
	Static     bool
}

// TagParser parses and caches duck struct tags.
type TagParser struct {
	cache   map[string]*ParsedTag
	cacheMu sync.RWMutex
}

// NewTagParser creates a tag parser with an empty cache.
func NewTagParser() *TagParser {
	return &TagParser{
		cache: make(map[string]*ParsedTag, 64),
	}
}

var defaultTagParser = NewTagParser()

// ParseTag parses the duck tag of a shape field.
//
// Supported tag syntax:
//
//	`duck:"name"`                       // override name only
//	`duck:"name:_name;field;nonpublic"` // unexported field named _name
//	`duck:"property;set"`               // property setter
//	`duck:"method;name:Do"`             // forward to method Do
//	`duck:"static"`                     // member registered with RegisterStatic
//	`duck:"-"`                          // ignore the field
//
// Unknown flags and keys are ignored.
func (p *TagParser) ParseTag(tag reflect.StructTag) *ParsedTag {
	value, ok := tag.Lookup(TagName)
	if !ok || value == "" {
		return &ParsedTag{}
	}

	p.cacheMu.RLock()
	if cached, exists := p.cache[value]; exists {
		p.cacheMu.RUnlock()
		return cached
	}
	p.cacheMu.RUnlock()

	parsed := p.parseTagValue(value)

	p.cacheMu.Lock()
	p.cache[value] = parsed
	p.cacheMu.Unlock()

	return parsed
}

func (p *TagParser) parseTagValue(value string) *ParsedTag {
	if value == "-" {
		return &ParsedTag{Skip: true}
	}

	parsed := &ParsedTag{}
	if !strings.ContainsAny(value, ";:") && !isFlag(value) {
		parsed.Name = value
		return parsed
	}

	for _, option := range strings.Split(value, ";") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		if colonIdx := strings.IndexByte(option, ':'); colonIdx != -1 {
			p.parseKeyValue(parsed, strings.TrimSpace(option[:colonIdx]), strings.TrimSpace(option[colonIdx+1:]))
			continue
		}
		p.parseFlag(parsed, option)
	}
	return parsed
}

var tagFlags = map[string]struct{}{
	"field": {}, "property": {}, "prop": {}, "method": {},
	"get": {}, "set": {},
	"public": {}, "nonpublic": {}, "private": {}, "any": {},
	"static": {},
}

func isFlag(s string) bool {
	_, ok := tagFlags[s]
	return ok
}

func (p *TagParser) parseFlag(tag *ParsedTag, flag string) {
	switch flag {
	case "field":
		tag.Kind, tag.HasKind = KindField, true
	case "property", "prop":
		tag.Kind, tag.HasKind = KindProperty, true
	case "method":
		tag.Kind, tag.HasKind = KindMethod, true
	case "get":
		tag.Get = true
	case "set":
		tag.Set = true
	case "public":
		tag.Visibility |= Public
	case "nonpublic", "private":
		tag.Visibility |= NonPublic
	case "any":
		tag.Visibility |= AnyVisibility
	case "static":
		tag.Static = true
	}
}

func (p *TagParser) parseKeyValue(tag *ParsedTag, key, value string) {
	switch key {
	case "name", "override":
		tag.Name = value
	}
}
