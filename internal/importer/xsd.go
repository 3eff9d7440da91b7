package importer

import (
	"strconv"
	"strings"
)

type xsdSchema struct {
	TargetNamespace string           `xml:"targetNamespace,attr"`
	Elements        []xsdElement     `xml:"element"`
	SimpleTypes     []xsdSimpleType  `xml:"simpleType"`
	ComplexTypes    []xsdComplexType `xml:"complexType"`
}

type xsdElement struct {
	Name        string          `xml:"name,attr"`
	Type        string          `xml:"type,attr"`
	Ref         string          `xml:"ref,attr"`
	MinOccurs   string          `xml:"minOccurs,attr"`
	MaxOccurs   string          `xml:"maxOccurs,attr"`
	SimpleType  *xsdSimpleType  `xml:"simpleType"`
	ComplexType *xsdComplexType `xml:"complexType"`
}

type xsdComplexType struct {
	Name     string       `xml:"name,attr"`
	Sequence *xsdGroup    `xml:"sequence"`
	All      *xsdGroup    `xml:"all"`
	Choice   *xsdGroup    `xml:"choice"`
	Content  *xsdComplexC `xml:"complexContent"`
}

type xsdComplexC struct {
	Extension struct {
		Base     string    `xml:"base,attr"`
		Sequence *xsdGroup `xml:"sequence"`
	} `xml:"extension"`
}

type xsdGroup struct {
	Elements []xsdElement `xml:"element"`
}

type xsdSimpleType struct {
	Name        string         `xml:"name,attr"`
	Restriction xsdRestriction `xml:"restriction"`
}

type xsdFacet struct {
	Value string `xml:"value,attr"`
}

type xsdRestriction struct {
	Base           string     `xml:"base,attr"`
	Enumeration    []xsdFacet `xml:"enumeration"`
	Pattern        []xsdFacet `xml:"pattern"`
	Length         *xsdFacet  `xml:"length"`
	MinLength      *xsdFacet  `xml:"minLength"`
	MaxLength      *xsdFacet  `xml:"maxLength"`
	MinInclusive   *xsdFacet  `xml:"minInclusive"`
	MaxInclusive   *xsdFacet  `xml:"maxInclusive"`
	MinExclusive   *xsdFacet  `xml:"minExclusive"`
	MaxExclusive   *xsdFacet  `xml:"maxExclusive"`
	TotalDigits    *xsdFacet  `xml:"totalDigits"`
	FractionDigits *xsdFacet  `xml:"fractionDigits"`
}

// schemaIndex resolves global elements and named types across every
// schema embedded in a WSDL. Names are local (prefix stripped).
type schemaIndex struct {
	elements map[string]xsdElement
	simple   map[string]*xsdSimpleType
	complex  map[string]*xsdComplexType
}

func newSchemaIndex(schemas []xsdSchema) schemaIndex {
	idx := schemaIndex{
		elements: map[string]xsdElement{},
		simple:   map[string]*xsdSimpleType{},
		complex:  map[string]*xsdComplexType{},
	}
	for _, s := range schemas {
		for _, el := range s.Elements {
			if el.Name != "" {
				idx.elements[el.Name] = el
			}
		}
		for i := range s.SimpleTypes {
			if st := &s.SimpleTypes[i]; st.Name != "" {
				idx.simple[st.Name] = st
			}
		}
		for i := range s.ComplexTypes {
			if ct := &s.ComplexTypes[i]; ct.Name != "" {
				idx.complex[ct.Name] = ct
			}
		}
	}
	return idx
}

// deref follows an element ref="" to its global declaration, keeping the
// occurrence bounds of the referencing particle.
func (idx schemaIndex) deref(el xsdElement) xsdElement {
	if el.Ref == "" {
		return el
	}
	target, ok := idx.elements[localName(el.Ref)]
	if !ok {
		return el
	}
	target.MinOccurs, target.MaxOccurs = el.MinOccurs, el.MaxOccurs
	return target
}

// complexOf returns the inline or named complex type of el.
func (idx schemaIndex) complexOf(el xsdElement) *xsdComplexType {
	if el.ComplexType != nil {
		return el.ComplexType
	}
	if el.Type != "" {
		return idx.complex[localName(el.Type)]
	}
	return nil
}

// children lists the element particles of ct, including inherited ones from
// a complexContent extension. Choice members are optional.
func (idx schemaIndex) children(ct *xsdComplexType) []xsdElement {
	var out []xsdElement
	seen := map[*xsdComplexType]bool{}
	var walk func(ct *xsdComplexType)
	walk = func(ct *xsdComplexType) {
		if ct == nil || seen[ct] {
			return
		}
		seen[ct] = true
		if ct.Content != nil {
			walk(idx.complex[localName(ct.Content.Extension.Base)])
			if seq := ct.Content.Extension.Sequence; seq != nil {
				out = append(out, seq.Elements...)
			}
		}
		for _, g := range []*xsdGroup{ct.Sequence, ct.All} {
			if g != nil {
				out = append(out, g.Elements...)
			}
		}
		if ct.Choice != nil {
			for _, el := range ct.Choice.Elements {
				el.MinOccurs = "0"
				out = append(out, el)
			}
		}
	}
	walk(ct)
	for i, el := range out {
		out[i] = idx.deref(el)
	}
	return out
}

// facets is a flattened simple type: the builtin base it derives from and
// every restriction collected along the derivation chain.
type facets struct {
	base           string
	enum           []string
	patterns       []string
	length         string
	minLength      string
	maxLength      string
	minInclusive   string
	maxInclusive   string
	minExclusive   string
	maxExclusive   string
	totalDigits    string
	fractionDigits string
}

// facetsOf resolves the simple content of el. ok is false for complex
// elements and untyped elements.
func (idx schemaIndex) facetsOf(el xsdElement) (facets, bool) {
	if el.SimpleType != nil {
		return idx.derive(el.SimpleType.Restriction), true
	}
	if el.Type == "" || idx.complexOf(el) != nil {
		return facets{}, false
	}
	return idx.derive(xsdRestriction{Base: el.Type}), true
}

// derive walks the restriction chain towards the builtin base. Facets closer
// to the element win over inherited ones.
func (idx schemaIndex) derive(r xsdRestriction) facets {
	var f facets
	seen := map[string]bool{}
	for {
		f.absorb(r)
		base := localName(r.Base)
		st, ok := idx.simple[base]
		if !ok || seen[base] {
			f.base = base
			return f
		}
		seen[base] = true
		r = st.Restriction
	}
}

func (f *facets) absorb(r xsdRestriction) {
	if f.enum == nil {
		for _, e := range r.Enumeration {
			f.enum = append(f.enum, e.Value)
		}
	}
	for _, p := range r.Pattern {
		f.patterns = append(f.patterns, p.Value)
	}
	keep := func(dst *string, src *xsdFacet) {
		if *dst == "" && src != nil {
			*dst = strings.TrimSpace(src.Value)
		}
	}
	keep(&f.length, r.Length)
	keep(&f.minLength, r.MinLength)
	keep(&f.maxLength, r.MaxLength)
	keep(&f.minInclusive, r.MinInclusive)
	keep(&f.maxInclusive, r.MaxInclusive)
	keep(&f.minExclusive, r.MinExclusive)
	keep(&f.maxExclusive, r.MaxExclusive)
	keep(&f.totalDigits, r.TotalDigits)
	keep(&f.fractionDigits, r.FractionDigits)
}

// builtin kinds used to pick value checks and sample values.
const (
	kindString = iota
	kindInteger
	kindDecimal
	kindBoolean
	kindDate
	kindDateTime
	kindTime
	kindBase64
	kindHex
	kindURI
)

func builtinKind(base string) int {
	switch base {
	case "int", "integer", "long", "short", "byte",
		"unsignedInt", "unsignedShort", "unsignedLong", "unsignedByte",
		"nonNegativeInteger", "positiveInteger", "nonPositiveInteger", "negativeInteger":
		return kindInteger
	case "decimal", "float", "double":
		return kindDecimal
	case "boolean":
		return kindBoolean
	case "date":
		return kindDate
	case "dateTime":
		return kindDateTime
	case "time":
		return kindTime
	case "base64Binary":
		return kindBase64
	case "hexBinary":
		return kindHex
	case "anyURI":
		return kindURI
	}
	return kindString
}

// occurs is the [min, max] occurrence range of a particle; max < 0 means
// unbounded.
type occurs struct{ min, max int }

func occursOf(el xsdElement) occurs {
	o := occurs{min: 1, max: 1}
	if n, err := strconv.Atoi(strings.TrimSpace(el.MinOccurs)); err == nil {
		o.min = n
	}
	switch v := strings.TrimSpace(el.MaxOccurs); v {
	case "":
	case "unbounded":
		o.max = -1
	default:
		if n, err := strconv.Atoi(v); err == nil {
			o.max = n
		}
	}
	return o
}

func localName(qname string) string {
	if _, after, ok := strings.Cut(qname, ":"); ok {
		return after
	}
	return qname
}
