package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// maxXSDDepth bounds recursive complex types.
const maxXSDDepth = 6

// soapReaderJS defines readSOAP(text), a dependency-free XML reader that
// keeps the generated scripts portable to other Postman runtimes. Element
// names are compared without namespace prefixes. doc.nodes(path) matches the
// first step anywhere in the document; doc.nodes(path, node) is relative.
const soapReaderJS = `var readSOAP = (function () {
  var token = /<!--[\s\S]*?-->|<!\[CDATA\[([\s\S]*?)\]\]>|<([\/?!]?)([^\s>\/]+)[^>]*?(\/?)>|([^<]+)/g;
  function bare(name) { var i = name.indexOf(':'); return i < 0 ? name : name.slice(i + 1); }
  function parse(src) {
    var doc = { name: '#document', kids: [], text: '' };
    var open = [doc];
    var m;
    token.lastIndex = 0;
    while ((m = token.exec(src)) !== null) {
      var top = open[open.length - 1];
      if (m[1] !== undefined) { top.text += m[1]; continue; }
      if (m[5] !== undefined) { top.text += m[5].trim(); continue; }
      if (m[3] === undefined || m[2] === '?' || m[2] === '!') { continue; }
      if (m[2] === '/') { if (open.length > 1) { open.pop(); } continue; }
      var el = { name: bare(m[3]), kids: [], text: '' };
      top.kids.push(el);
      if (m[4] !== '/') { open.push(el); }
    }
    return doc;
  }
  function deep(node, name, out) {
    node.kids.forEach(function (k) {
      if (k.name === name) { out.push(k); } else { deep(k, name, out); }
    });
  }
  function find(from, path, anywhere) {
    var hits = [from];
    path.forEach(function (step, i) {
      var next = [];
      hits.forEach(function (n) {
        if (i === 0 && anywhere) { deep(n, bare(step), next); return; }
        n.kids.forEach(function (k) { if (k.name === bare(step)) { next.push(k); } });
      });
      hits = next;
    });
    return hits;
  }
  return function (src) {
    var doc = parse(String(src === undefined || src === null ? '' : src));
    var api = {
      nodes: function (path, from) { return from ? find(from, path, false) : find(doc, path, true); },
      values: function (path, from) { return api.nodes(path, from).map(function (n) { return n.text; }); },
      has: function (path, from) { return api.nodes(path, from).length > 0; },
      first: function (path, from) { var v = api.values(path, from); return v.length ? v[0] : undefined; }
    };
    return api;
  };
})();`

func defaultWSDLTests(opName string) []string {
	element := "<(?:[A-Za-z0-9_.-]+:)?" + regexp.QuoteMeta(opName)
	return append(
		pmTest("envelope present", "pm.expect(pm.response.text()).to.match(/Envelope/i);"),
		pmTest("response element", fmt.Sprintf("pm.expect(pm.response.text()).to.match(new RegExp(%s));", strconv.Quote(element)))...,
	)
}

// buildWSDLTests asserts the <op>Response element tree described by the
// schema. It returns nothing when the response element is unknown.
func buildWSDLTests(opName string, idx schemaIndex) []string {
	resp, ok := idx.elements[opName+"Response"]
	if !ok || idx.complexOf(resp) == nil {
		return nil
	}
	g := &soapChecks{idx: idx}
	g.line("var doc = readSOAP(pm.response.text());")
	g.line("if (doc.has(['Envelope', 'Body', 'Fault'])) { throw new Error('soap fault: ' + doc.first(['Fault', 'faultstring'])); }")
	resp.MinOccurs, resp.MaxOccurs = "1", "1"
	g.element(resp, "", 0)
	return append([]string{soapReaderJS}, pmTest("response schema", g.lines...)...)
}

// soapChecks accumulates the assertion lines for one response tree. Every
// element gets its own numbered JS variables so nested scopes never clash.
type soapChecks struct {
	idx   schemaIndex
	lines []string
	seq   int
}

func (g *soapChecks) line(format string, args ...any) {
	if len(args) == 0 {
		g.lines = append(g.lines, format)
		return
	}
	g.lines = append(g.lines, fmt.Sprintf(format, args...))
}

// element checks the occurrences of el below the node held in scope, or
// anywhere in the document when scope is empty.
func (g *soapChecks) element(el xsdElement, scope string, depth int) {
	if el.Name == "" || depth > maxXSDDepth {
		return
	}
	g.seq++
	list := fmt.Sprintf("n%d", g.seq)
	node := fmt.Sprintf("e%d", g.seq)
	from := ""
	if scope != "" {
		from = ", " + scope
	}
	g.line("var %s = doc.nodes(%s%s);", list, jsStringArray([]string{el.Name}), from)
	occ := occursOf(el)
	if occ.min > 0 {
		g.line("pm.expect(%s.length).to.be.at.least(%d);", list, occ.min)
	}
	if occ.max >= 0 {
		g.line("pm.expect(%s.length).to.be.at.most(%d);", list, occ.max)
	}

	outer := g.lines
	g.lines = nil
	if f, ok := g.idx.facetsOf(el); ok {
		for _, check := range valueChecks(f, node+".text") {
			g.line("%s", check)
		}
	}
	if ct := g.idx.complexOf(el); ct != nil {
		for _, child := range g.idx.children(ct) {
			g.element(child, node, depth+1)
		}
	}
	inner := g.lines
	g.lines = outer
	if len(inner) > 0 {
		g.line("%s.forEach(function (%s) { %s });", list, node, strings.Join(inner, " "))
	}
}

// valueChecks renders assertions over the text content held in ref.
func valueChecks(f facets, ref string) []string {
	var out []string
	add := func(format string, args ...any) { out = append(out, fmt.Sprintf(format, args...)) }

	switch builtinKind(f.base) {
	case kindInteger:
		add(`pm.expect(%s).to.match(/^[+-]?\d+$/);`, ref)
		switch f.base {
		case "positiveInteger":
			add("pm.expect(Number(%s)).to.be.above(0);", ref)
		case "negativeInteger":
			add("pm.expect(Number(%s)).to.be.below(0);", ref)
		case "nonPositiveInteger":
			add("pm.expect(Number(%s)).to.be.at.most(0);", ref)
		case "nonNegativeInteger", "unsignedInt", "unsignedShort", "unsignedLong", "unsignedByte":
			add("pm.expect(Number(%s)).to.be.at.least(0);", ref)
		}
	case kindDecimal:
		add(`pm.expect(%s).to.match(/^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$|^-?INF$|^NaN$/);`, ref)
	case kindBoolean:
		add("pm.expect(['true', 'false', '1', '0']).to.include(%s);", ref)
	case kindDate:
		add(`pm.expect(%s).to.match(/^-?\d{4,}-\d{2}-\d{2}(Z|[+-]\d{2}:\d{2})?$/);`, ref)
	case kindDateTime:
		add(`pm.expect(%s).to.match(/^-?\d{4,}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$/);`, ref)
	case kindTime:
		add(`pm.expect(%s).to.match(/^\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$/);`, ref)
	case kindBase64:
		add(`pm.expect(%s.replace(/\s+/g, '')).to.match(/^([A-Za-z0-9+\/]{4})*([A-Za-z0-9+\/]{2}==|[A-Za-z0-9+\/]{3}=)?$/);`, ref)
	case kindHex:
		add(`pm.expect(%s).to.match(/^([0-9A-Fa-f]{2})*$/);`, ref)
	case kindURI:
		add(`pm.expect(%s).to.not.match(/\s/);`, ref)
	}

	if len(f.enum) > 0 {
		add("pm.expect(%s).to.be.oneOf(%s);", ref, jsStringArray(f.enum))
	}
	for _, p := range f.patterns {
		// XSD patterns are implicitly anchored.
		add("pm.expect(%s).to.match(new RegExp(%s));", ref, strconv.Quote("^(?:"+p+")$"))
	}

	size := ref + ".length"
	switch builtinKind(f.base) {
	case kindHex:
		size = fmt.Sprintf("(%s.length / 2)", ref)
	case kindBase64:
		size = fmt.Sprintf("(function (s) { s = s.replace(/\\s+/g, ''); return s.length / 4 * 3 - (s.match(/=*$/)[0].length); })(%s)", ref)
	}
	if f.length != "" {
		add("pm.expect(%s).to.equal(%s);", size, f.length)
	}
	if f.minLength != "" {
		add("pm.expect(%s).to.be.at.least(%s);", size, f.minLength)
	}
	if f.maxLength != "" {
		add("pm.expect(%s).to.be.at.most(%s);", size, f.maxLength)
	}

	num := fmt.Sprintf("Number(%s)", ref)
	bounds := []struct{ value, chain string }{
		{f.minInclusive, "at.least"},
		{f.maxInclusive, "at.most"},
		{f.minExclusive, "above"},
		{f.maxExclusive, "below"},
	}
	for _, b := range bounds {
		if _, err := strconv.ParseFloat(b.value, 64); err == nil {
			add("pm.expect(%s).to.be.%s(%s);", num, b.chain, b.value)
		}
	}
	if f.totalDigits != "" {
		add("pm.expect(%s.replace(/^[+-]/, '').replace('.', '').replace(/^0+(?=\\d)/, '').length).to.be.at.most(%s);", ref, f.totalDigits)
	}
	if f.fractionDigits != "" {
		add("pm.expect((%s.split('.')[1] || '').length).to.be.at.most(%s);", ref, f.fractionDigits)
	}
	return out
}

// sampleValue is the placeholder text for a request element.
func sampleValue(el xsdElement, idx schemaIndex) string {
	f, ok := idx.facetsOf(el)
	if !ok {
		return "?"
	}
	if len(f.enum) > 0 {
		return f.enum[0]
	}
	switch builtinKind(f.base) {
	case kindInteger:
		if f.base == "negativeInteger" || f.base == "nonPositiveInteger" {
			return "-1"
		}
		return "1"
	case kindDecimal:
		return "1.0"
	case kindBoolean:
		return "false"
	case kindDate:
		return "2024-01-01"
	case kindDateTime:
		return "2024-01-01T00:00:00Z"
	case kindTime:
		return "00:00:00"
	case kindURI:
		return "http://example.com"
	}
	return "?"
}

func jsStringArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
