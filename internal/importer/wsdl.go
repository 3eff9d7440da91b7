package importer

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/collection"
)

const (
	nsSOAP12Binding  = "http://schemas.xmlsoap.org/wsdl/soap12/"
	nsSOAP11Envelope = "http://schemas.xmlsoap.org/soap/envelope/"
	nsSOAP12Envelope = "http://www.w3.org/2003/05/soap-envelope"
)

type wsdlDefinitions struct {
	XMLName         xml.Name       `xml:"definitions"`
	Name            string         `xml:"name,attr"`
	TargetNamespace string         `xml:"targetNamespace,attr"`
	Types           []xsdSchema    `xml:"types>schema"`
	Messages        []wsdlMessage  `xml:"message"`
	PortTypes       []wsdlPortType `xml:"portType"`
	Bindings        []wsdlBinding  `xml:"binding"`
	Services        []wsdlService  `xml:"service"`
}

type wsdlMessage struct {
	Name  string `xml:"name,attr"`
	Parts []struct {
		Name    string `xml:"name,attr"`
		Element string `xml:"element,attr"`
	} `xml:"part"`
}

type wsdlPortType struct {
	Name       string `xml:"name,attr"`
	Operations []struct {
		Name   string `xml:"name,attr"`
		Input  wsdlIO `xml:"input"`
		Output wsdlIO `xml:"output"`
	} `xml:"operation"`
}

type wsdlIO struct {
	Message string `xml:"message,attr"`
}

type wsdlBinding struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
	// Protocol is the <soap:binding> or <soap12:binding> child.
	Protocol *struct {
		XMLName xml.Name
	} `xml:"binding"`
	Operations []struct {
		Name string `xml:"name,attr"`
		Soap struct {
			Action string `xml:"soapAction,attr"`
		} `xml:"operation"`
	} `xml:"operation"`
}

type wsdlService struct {
	Name  string `xml:"name,attr"`
	Ports []struct {
		Name    string `xml:"name,attr"`
		Binding string `xml:"binding,attr"`
		Address struct {
			Location string `xml:"location,attr"`
		} `xml:"address"`
	} `xml:"port"`
}

func (b wsdlBinding) soap12() bool {
	return b.Protocol != nil && b.Protocol.XMLName.Space == nsSOAP12Binding
}

// address returns the endpoint of the first port bound to binding, falling
// back to the first address in the document.
func (def wsdlDefinitions) address(binding string) string {
	fallback := ""
	for _, s := range def.Services {
		for _, p := range s.Ports {
			if p.Address.Location == "" {
				continue
			}
			if localName(p.Binding) == binding {
				return p.Address.Location
			}
			if fallback == "" {
				fallback = p.Address.Location
			}
		}
	}
	return fallback
}

// messageElements resolves the document/literal request and response
// element names of op through the binding's portType. Unknown pieces fall
// back to <op> and <op>Response.
func (def wsdlDefinitions) messageElements(b wsdlBinding, op string) (in, out string) {
	in, out = op, op+"Response"
	partElement := func(msg string) string {
		for _, m := range def.Messages {
			if m.Name == localName(msg) {
				for _, p := range m.Parts {
					if p.Element != "" {
						return localName(p.Element)
					}
				}
			}
		}
		return ""
	}
	for _, pt := range def.PortTypes {
		if pt.Name != localName(b.Type) {
			continue
		}
		for _, o := range pt.Operations {
			if o.Name != op {
				continue
			}
			if el := partElement(o.Input.Message); el != "" {
				in = el
			}
			if el := partElement(o.Output.Message); el != "" {
				out = el
			}
		}
	}
	return in, out
}

// ImportWSDL parses a WSDL and builds a collection with one SOAP POST request
// per binding operation, grouped in a folder per binding.
func ImportWSDL(ctx context.Context, opts Options) (Result, error) {
	if opts.Source == "" {
		return Result{}, fmt.Errorf("--source is required")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	data, err := readSource(ctx, opts.Source, sourceClient(opts.Insecure))
	if err != nil {
		return Result{}, fmt.Errorf("load wsdl: %w", err)
	}
	var def wsdlDefinitions
	if err := xml.Unmarshal(data, &def); err != nil {
		return Result{}, fmt.Errorf("parse wsdl: %w", err)
	}

	log := opts.logger().With("fn", pslog.CurrentFn())
	log.Info("import.wsdl.start", "source", opts.Source, "output", opts.OutputFile)

	name := firstNonEmpty(opts.CollectionName, def.Name, "wsdl-import")
	idx := newSchemaIndex(def.Types)
	ns := firstNonEmpty(def.TargetNamespace, "http://example.com/ns")

	baseURL := ""
	for _, b := range def.Bindings {
		if baseURL = def.address(b.Name); baseURL != "" {
			break
		}
	}
	baseURL = firstNonEmpty(baseURL, def.address(""), "http://example.com/soap")

	bld := newBuilder(name)
	bld.coll.Variable = []collection.Variable{{Key: "baseUrl", Value: baseURL}}
	for _, b := range def.Bindings {
		folder := firstNonEmpty(b.Name, "binding")
		url := "{{baseUrl}}"
		if addr := def.address(b.Name); addr != "" && addr != baseURL {
			url = addr
		}
		for _, op := range b.Operations {
			opName := firstNonEmpty(op.Name, "operation")
			reqEl, respEl := def.messageElements(b, opName)

			lines := append(statusTest(), defaultWSDLTests(respEl)...)
			if !opts.DisableTests {
				lines = append(lines, buildWSDLTests(respEl, idx)...)
			}
			if !validJS(strings.Join(lines, "\n"), log) {
				log.Warn("import.wsdl.tests.invalid", "op", opName)
				lines = statusTest()
			}
			bld.add(folder, collection.Node{
				Name: opName,
				Request: &collection.Request{
					Method: "POST",
					URL:    collection.URL{Raw: url},
					Header: soapHeaders(b.soap12(), op.Soap.Action),
					Body:   rawBody(soapEnvelope(b.soap12(), ns, reqEl, idx), "xml"),
				},
				Event: []collection.Event{testEvent(lines)},
			})
			log.Debug("import.wsdl.op", "binding", folder, "op", opName, "action", op.Soap.Action, "soap12", b.soap12())
		}
	}

	res := Result{Collection: bld.coll, Variables: map[string]string{"baseUrl": baseURL}}
	if err := write(res, opts, log); err != nil {
		return res, err
	}
	log.Info("import.wsdl.done", "requests", bld.count())
	return res, nil
}

// soapHeaders carries the action in SOAPAction for SOAP 1.1 and in the
// content type for SOAP 1.2.
func soapHeaders(soap12 bool, action string) []collection.Header {
	if soap12 {
		ct := "application/soap+xml; charset=utf-8"
		if action != "" {
			ct += "; action=" + strconv.Quote(action)
		}
		return []collection.Header{{Key: "Content-Type", Value: ct}}
	}
	return []collection.Header{
		{Key: "Content-Type", Value: "text/xml; charset=utf-8"},
		{Key: "SOAPAction", Value: strconv.Quote(action)},
	}
}

// soapEnvelope renders a request envelope for element, with one placeholder
// child per declared element of the request type.
func soapEnvelope(soap12 bool, ns, element string, idx schemaIndex) string {
	envNS := nsSOAP11Envelope
	if soap12 {
		envNS = nsSOAP12Envelope
	}
	var body strings.Builder
	if el, ok := idx.elements[element]; ok {
		if ct := idx.complexOf(el); ct != nil {
			for _, child := range idx.children(ct) {
				if child.Name != "" {
					fmt.Fprintf(&body, "      <ns:%[1]s>%[2]s</ns:%[1]s>\n", child.Name, sampleValue(child, idx))
				}
			}
		}
	}
	var out strings.Builder
	fmt.Fprintf(&out, "<soapenv:Envelope xmlns:soapenv=%q xmlns:ns=%q>\n", envNS, ns)
	out.WriteString("  <soapenv:Header/>\n  <soapenv:Body>\n")
	fmt.Fprintf(&out, "    <ns:%s>\n%s    </ns:%s>\n", element, body.String(), element)
	out.WriteString("  </soapenv:Body>\n</soapenv:Envelope>")
	return out.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
