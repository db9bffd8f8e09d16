package schema

import (
	"reflect"
	"strings"
)

// MemberKind is the declared access kind of a shape member.
type MemberKind uint8

const (
	KindField    MemberKind = iota // struct field
	KindProperty                   // Name() getter / SetName(v) setter
	KindMethod                     // arbitrary method
)

func (k MemberKind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindProperty:
		return "property"
	case KindMethod:
		return "method"
	default:
		return "unknown"
	}
}

// Access is what a shape member does with the underlying member.
type Access uint8

const (
	AccessGet Access = iota
	AccessSet
	AccessCall
)

func (a Access) String() string {
	switch a {
	case AccessGet:
		return "get"
	case AccessSet:
		return "set"
	case AccessCall:
		return "call"
	default:
		return "unknown"
	}
}

// Visibility selects exported and/or unexported members.
type Visibility uint8

const (
	Public Visibility = 1 << iota
	NonPublic

	AnyVisibility = Public | NonPublic
)

func (v Visibility) Has(flag Visibility) bool {
	return v&flag != 0
}

func (v Visibility) String() string {
	var parts []string
	if v.Has(Public) {
		parts = append(parts, "public")
	}
	if v.Has(NonPublic) {
		parts = append(parts, "nonpublic")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// MemberDescriptor is one structural requirement of a shape. It is derived
// from a func field of the shape struct and never changes afterwards.
type MemberDescriptor struct {
	DeclaredName string
	OverrideName string
	Kind         MemberKind
	Access       Access
	Visibility   Visibility
	Static       bool

	// ValueType is the getter result or setter argument type. It is nil for
	// methods.
	ValueType reflect.Type

	// Func is the type of the shape field that exposes this member.
	Func reflect.Type

	// Index is the position of that field in the shape struct.
	Index int
}

// LookupName is the name searched on the source type.
func (d MemberDescriptor) LookupName() string {
	if d.OverrideName != "" {
		return d.OverrideName
	}
	return d.DeclaredName
}

// Physical is how a resolved member is actually reached.
type Physical uint8

const (
	PhysicalField Physical = iota
	PhysicalMethod
	PhysicalStatic
)

func (p Physical) String() string {
	switch p {
	case PhysicalField:
		return "field"
	case PhysicalMethod:
		return "method"
	case PhysicalStatic:
		return "static"
	default:
		return "unknown"
	}
}

// ResolvedMember is the outcome of resolving a descriptor on a source type.
type ResolvedMember struct {
	Descriptor MemberDescriptor
	Physical   Physical
	Name       string

	// Type is the member's value type for get/set access, or the method
	// signature without receiver for call access.
	Type reflect.Type

	// Depth is the embedding depth the member was found at; 0 is declared
	// directly on the source type.
	Depth int

	Field  *FieldInfo    // PhysicalField
	Method reflect.Method // PhysicalMethod
	Static reflect.Value  // PhysicalStatic
}
