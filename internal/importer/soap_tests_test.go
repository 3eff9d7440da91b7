package importer

import (
	"encoding/xml"
	"slices"
	"strings"
	"testing"

	"github.com/dop251/goja"
)

func TestSOAPReaderSelectsByLocalName(t *testing.T) {
	vm := goja.New()
	if _, err := vm.RunString(soapReaderJS); err != nil {
		t.Fatalf("load reader: %v", err)
	}
	vm.Set("src", `<?xml version="1.0"?>
<!-- reply -->
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns="http://x/">
  <s:Body>
    <ns:Res>
      <ns:items>1</ns:items><ns:items>2</ns:items>
      <ns:empty/>
      <ns:note><![CDATA[a < b]]></ns:note>
      <ns:inner><ns:msg>deep</ns:msg></ns:inner>
      <ns:msg>Hello</ns:msg>
    </ns:Res>
  </s:Body>
</s:Envelope>`)
	v, err := vm.RunString(`
var doc = readSOAP(src);
var res = doc.nodes(['Res'])[0];
[
  doc.has(['Envelope', 'Body', 'Res']),
  doc.has(['soap:Envelope', 'soap:Body']),
  doc.values(['Res', 'items']).join(','),
  doc.first(['msg'], res),
  doc.first(['inner', 'msg'], res),
  doc.has(['empty'], res),
  doc.first(['note'], res),
  doc.has(['Fault']),
  doc.first(['missing'], res) === undefined
].join('|');
`)
	if err != nil {
		t.Fatalf("run reader: %v", err)
	}
	want := "true|true|1,2|Hello|deep|true|a < b|false|true"
	if got := v.String(); got != want {
		t.Fatalf("reader results:\n got %s\nwant %s", got, want)
	}
}

const facetSchema = `<definitions xmlns="http://schemas.xmlsoap.org/wsdl/" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:tns="urn:t">
  <types>
    <xsd:schema targetNamespace="urn:t">
      <xsd:simpleType name="Code">
        <xsd:restriction base="xsd:string">
          <xsd:pattern value="[A-Z]{3}"/>
          <xsd:maxLength value="3"/>
        </xsd:restriction>
      </xsd:simpleType>
      <xsd:simpleType name="ShortCode">
        <xsd:restriction base="tns:Code">
          <xsd:maxLength value="2"/>
        </xsd:restriction>
      </xsd:simpleType>
      <xsd:complexType name="Base">
        <xsd:sequence><xsd:element name="id" type="xsd:long"/></xsd:sequence>
      </xsd:complexType>
      <xsd:complexType name="Derived">
        <xsd:complexContent>
          <xsd:extension base="tns:Base">
            <xsd:sequence><xsd:element name="code" type="tns:ShortCode"/></xsd:sequence>
          </xsd:extension>
        </xsd:complexContent>
      </xsd:complexType>
      <xsd:complexType name="Either">
        <xsd:choice>
          <xsd:element name="left" type="xsd:string"/>
          <xsd:element ref="tns:right" maxOccurs="3"/>
        </xsd:choice>
      </xsd:complexType>
      <xsd:element name="right" type="xsd:positiveInteger"/>
    </xsd:schema>
  </types>
</definitions>`

func facetIndex(t *testing.T) schemaIndex {
	t.Helper()
	var def wsdlDefinitions
	if err := xml.Unmarshal([]byte(facetSchema), &def); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return newSchemaIndex(def.Types)
}

func TestSchemaIndexDerivesFacets(t *testing.T) {
	idx := facetIndex(t)
	f, ok := idx.facetsOf(xsdElement{Name: "code", Type: "tns:ShortCode"})
	if !ok {
		t.Fatalf("ShortCode should have simple content")
	}
	if f.base != "string" || f.maxLength != "2" || !slices.Equal(f.patterns, []string{"[A-Z]{3}"}) {
		t.Fatalf("derived facets: %+v", f)
	}
	if _, ok := idx.facetsOf(xsdElement{Name: "x", Type: "tns:Derived"}); ok {
		t.Fatalf("complex type reported as simple")
	}

	checks := strings.Join(valueChecks(f, "v"), "\n")
	for _, want := range []string{`new RegExp("^(?:[A-Z]{3})$")`, "pm.expect(v.length).to.be.at.most(2);"} {
		if !strings.Contains(checks, want) {
			t.Fatalf("checks missing %q:\n%s", want, checks)
		}
	}
}

func TestSchemaIndexChildren(t *testing.T) {
	idx := facetIndex(t)
	var names []string
	for _, el := range idx.children(idx.complex["Derived"]) {
		names = append(names, el.Name)
	}
	if !slices.Equal(names, []string{"id", "code"}) {
		t.Fatalf("extension children: %v", names)
	}

	kids := idx.children(idx.complex["Either"])
	if len(kids) != 2 || kids[1].Name != "right" || kids[1].Type != "xsd:positiveInteger" {
		t.Fatalf("choice children: %+v", kids)
	}
	for _, k := range kids {
		if occursOf(k).min != 0 {
			t.Fatalf("choice member %s should be optional", k.Name)
		}
	}
	if o := occursOf(kids[1]); o.max != 3 {
		t.Fatalf("ref kept maxOccurs: %+v", o)
	}
}

func TestOccursOf(t *testing.T) {
	cases := []struct {
		min, max string
		want     occurs
	}{
		{"", "", occurs{1, 1}},
		{"0", "", occurs{0, 1}},
		{"0", "unbounded", occurs{0, -1}},
		{"2", "5", occurs{2, 5}},
		{"x", "y", occurs{1, 1}},
	}
	for _, c := range cases {
		if got := occursOf(xsdElement{MinOccurs: c.min, MaxOccurs: c.max}); got != c.want {
			t.Fatalf("occursOf(%q,%q) = %+v, want %+v", c.min, c.max, got, c.want)
		}
	}
}

func TestSampleValue(t *testing.T) {
	idx := facetIndex(t)
	cases := map[string]string{
		"xsd:int":                "1",
		"xsd:negativeInteger":    "-1",
		"xsd:boolean":            "false",
		"xsd:dateTime":           "2024-01-01T00:00:00Z",
		"xsd:string":             "?",
		"tns:Derived":            "?",
		"xsd:nonNegativeInteger": "1",
	}
	for typ, want := range cases {
		if got := sampleValue(xsdElement{Name: "v", Type: typ}, idx); got != want {
			t.Fatalf("sampleValue(%s) = %q, want %q", typ, got, want)
		}
	}
}
