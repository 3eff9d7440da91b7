package importer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const demoWSDL = `<?xml version="1.0" encoding="UTF-8"?>
<definitions name="Demo" targetNamespace="http://example.com/demo"
    xmlns="http://schemas.xmlsoap.org/wsdl/"
    xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
    xmlns:tns="http://example.com/demo"
    xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <types>
    <xsd:schema targetNamespace="http://example.com/demo">
      <xsd:simpleType name="Status">
        <xsd:restriction base="xsd:string">
          <xsd:enumeration value="OK"/>
          <xsd:enumeration value="FAIL"/>
        </xsd:restriction>
      </xsd:simpleType>
      <xsd:element name="GetDemo">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="id" type="xsd:int"/>
            <xsd:element name="verbose" type="xsd:boolean" minOccurs="0"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
      <xsd:element name="GetDemoResponse">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="status" type="tns:Status"/>
            <xsd:element name="count" type="xsd:int"/>
            <xsd:element name="items" type="xsd:string" minOccurs="0" maxOccurs="unbounded"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
    </xsd:schema>
  </types>
  <binding name="DemoBinding" type="tns:DemoPort">
    <soap:binding transport="http://schemas.xmlsoap.org/soap/http"/>
    <operation name="GetDemo">
      <soap:operation soapAction="urn:GetDemo"/>
    </operation>
  </binding>
  <service name="DemoService">
    <port name="DemoPort" binding="tns:DemoBinding">
      <soap:address location="http://soap.test/demo"/>
    </port>
  </service>
</definitions>`

const demoResponse = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns="http://example.com/demo">
  <soap:Body>
    <ns:GetDemoResponse>
      <ns:status>OK</ns:status>
      <ns:count>2</ns:count>
      <ns:items>a</ns:items>
      <ns:items>b</ns:items>
    </ns:GetDemoResponse>
  </soap:Body>
</soap:Envelope>`

const demoFault = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Server</faultcode>
      <faultstring>boom</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

func importDemo(t *testing.T, mutate func(*Options)) (Result, string) {
	t.Helper()
	tmp := t.TempDir()
	opts := Options{
		Source:     writeFile(t, tmp, "demo.wsdl", demoWSDL),
		OutputFile: filepath.Join(tmp, "demo.postman_collection.json"),
		Logger:     quietLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	res, err := ImportWSDL(context.Background(), opts)
	if err != nil {
		t.Fatalf("import wsdl: %v", err)
	}
	return res, opts.OutputFile
}

func TestImportWSDLBuildsSOAPRequests(t *testing.T) {
	res, out := importDemo(t, nil)
	coll := loadCollection(t, out)
	if coll.Info.Name != "Demo" {
		t.Fatalf("collection name: %q", coll.Info.Name)
	}
	if res.Variables["baseUrl"] != "http://soap.test/demo" {
		t.Fatalf("baseUrl: %v", res.Variables)
	}

	item := findItem(t, coll, "GetDemo")
	if !slices.Equal(item.Path, []string{"DemoBinding"}) {
		t.Fatalf("binding folder: %v", item.Path)
	}
	req := item.Request
	if req.Method != "POST" || req.URL.Raw != "{{baseUrl}}" {
		t.Fatalf("request: %s %s", req.Method, req.URL.Raw)
	}
	headers := map[string]string{}
	for _, h := range req.Header {
		headers[h.Key] = h.Value
	}
	if headers["SOAPAction"] != `"urn:GetDemo"` || !strings.HasPrefix(headers["Content-Type"], "text/xml") {
		t.Fatalf("headers: %v", headers)
	}
	if req.Body == nil || req.Body.Language() != "xml" {
		t.Fatalf("body: %+v", req.Body)
	}
	for _, want := range []string{
		`xmlns:ns="http://example.com/demo"`,
		"<ns:GetDemo>",
		"<ns:id>1</ns:id>",
		"<ns:verbose>false</ns:verbose>",
	} {
		if !strings.Contains(req.Body.Raw, want) {
			t.Fatalf("envelope missing %q:\n%s", want, req.Body.Raw)
		}
	}

	src := strings.Join(item.Test, "\n")
	for _, want := range []string{"envelope present", "response schema", `.to.be.oneOf(["OK", "FAIL"])`, `.to.match(/^[+-]?\d+$/)`} {
		if !strings.Contains(src, want) {
			t.Fatalf("tests missing %q:\n%s", want, src)
		}
	}
}

func TestImportWSDLGeneratedTestsRunAgainstService(t *testing.T) {
	var gotAction, gotBody string
	fault := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPAction")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		if fault {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, demoFault)
			return
		}
		_, _ = io.WriteString(w, demoResponse)
	}))
	defer srv.Close()

	_, out := importDemo(t, nil)
	envPath := writeEnv(t, filepath.Dir(out), map[string]string{"baseUrl": srv.URL})

	sum := runGenerated(t, out, envPath)
	if !sum.Passed() {
		t.Fatalf("expected pass:\n%s", failureText(sum))
	}
	if gotAction != `"urn:GetDemo"` || !strings.Contains(gotBody, "<ns:id>1</ns:id>") {
		t.Fatalf("service saw action=%q body=%s", gotAction, gotBody)
	}
	if sum.Stats.Assertions.Total != 4 {
		t.Fatalf("assertions: %+v", sum.Stats.Assertions)
	}

	fault = true
	sum = runGenerated(t, out, envPath)
	if sum.Passed() {
		t.Fatalf("expected fault to fail the run")
	}
	if text := failureText(sum); !strings.Contains(text, "soap fault: boom") {
		t.Fatalf("fault message missing:\n%s", text)
	}
}

func TestImportWSDLDisableTests(t *testing.T) {
	res, _ := importDemo(t, func(o *Options) { o.DisableTests = true; o.CollectionName = "Soap" })
	if res.Collection.Info.Name != "Soap" {
		t.Fatalf("collection name override: %q", res.Collection.Info.Name)
	}
	src := testSource(t, res.Collection, "GetDemo")
	if strings.Contains(src, "readSOAP") {
		t.Fatalf("schema tests should be disabled:\n%s", src)
	}
	if !strings.Contains(src, "status is 2xx") || !strings.Contains(src, "response element") {
		t.Fatalf("default tests missing:\n%s", src)
	}
}

func TestImportWSDLRejectsInvalidInput(t *testing.T) {
	tmp := t.TempDir()
	if _, err := ImportWSDL(context.Background(), Options{Logger: quietLogger()}); err == nil {
		t.Fatalf("expected error without source")
	}
	bad := writeFile(t, tmp, "bad.wsdl", "<definitions")
	if _, err := ImportWSDL(context.Background(), Options{Source: bad, Logger: quietLogger()}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestImportWSDLFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, demoWSDL)
	}))
	defer srv.Close()
	res, err := ImportWSDL(context.Background(), Options{Source: srv.URL + "/demo?wsdl", Logger: quietLogger()})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	findItem(t, res.Collection, "GetDemo")
}

const ordersWSDL = `<?xml version="1.0"?>
<wsdl:definitions name="Orders" targetNamespace="urn:orders"
    xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"
    xmlns:soap12="http://schemas.xmlsoap.org/wsdl/soap12/"
    xmlns:tns="urn:orders"
    xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <wsdl:types>
    <xs:schema targetNamespace="urn:orders">
      <xs:element name="PlaceOrderRequest">
        <xs:complexType>
          <xs:sequence>
            <xs:element name="sku">
              <xs:simpleType>
                <xs:restriction base="xs:string"><xs:pattern value="[A-Z]{3}-\d+"/></xs:restriction>
              </xs:simpleType>
            </xs:element>
            <xs:element name="qty" type="xs:positiveInteger"/>
          </xs:sequence>
        </xs:complexType>
      </xs:element>
      <xs:element name="PlaceOrderResult">
        <xs:complexType>
          <xs:sequence>
            <xs:element name="orderId" type="xs:long"/>
            <xs:element name="total">
              <xs:simpleType>
                <xs:restriction base="xs:decimal"><xs:minInclusive value="0"/></xs:restriction>
              </xs:simpleType>
            </xs:element>
          </xs:sequence>
        </xs:complexType>
      </xs:element>
    </xs:schema>
  </wsdl:types>
  <wsdl:message name="PlaceOrderIn"><wsdl:part name="body" element="tns:PlaceOrderRequest"/></wsdl:message>
  <wsdl:message name="PlaceOrderOut"><wsdl:part name="body" element="tns:PlaceOrderResult"/></wsdl:message>
  <wsdl:portType name="OrdersPort">
    <wsdl:operation name="PlaceOrder">
      <wsdl:input message="tns:PlaceOrderIn"/>
      <wsdl:output message="tns:PlaceOrderOut"/>
    </wsdl:operation>
  </wsdl:portType>
  <wsdl:binding name="OrdersSoap12" type="tns:OrdersPort">
    <soap12:binding transport="http://schemas.xmlsoap.org/soap/http"/>
    <wsdl:operation name="PlaceOrder">
      <soap12:operation soapAction="urn:PlaceOrder"/>
    </wsdl:operation>
  </wsdl:binding>
  <wsdl:service name="Orders">
    <wsdl:port name="OrdersPort" binding="tns:OrdersSoap12">
      <soap12:address location="http://orders.test/soap"/>
    </wsdl:port>
  </wsdl:service>
</wsdl:definitions>`

func TestImportWSDLSOAP12MessageElements(t *testing.T) {
	var total string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/soap+xml") {
			http.Error(w, "bad content type "+ct, http.StatusUnsupportedMediaType)
			return
		}
		w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
		_, _ = io.WriteString(w, `<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope" xmlns:o="urn:orders">
  <env:Body><o:PlaceOrderResult><o:orderId>7</o:orderId><o:total>`+total+`</o:total></o:PlaceOrderResult></env:Body>
</env:Envelope>`)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	out := filepath.Join(tmp, "orders.json")
	res, err := ImportWSDL(context.Background(), Options{
		Source:     writeFile(t, tmp, "orders.wsdl", ordersWSDL),
		OutputFile: out,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Variables["baseUrl"] != "http://orders.test/soap" {
		t.Fatalf("baseUrl: %v", res.Variables)
	}
	item := findItem(t, res.Collection, "PlaceOrder")
	if len(item.Request.Header) != 1 || item.Request.Header[0].Value != `application/soap+xml; charset=utf-8; action="urn:PlaceOrder"` {
		t.Fatalf("soap 1.2 headers: %+v", item.Request.Header)
	}
	for _, want := range []string{nsSOAP12Envelope, "<ns:PlaceOrderRequest>", "<ns:qty>1</ns:qty>", "<ns:sku>?</ns:sku>"} {
		if !strings.Contains(item.Request.Body.Raw, want) {
			t.Fatalf("envelope missing %q:\n%s", want, item.Request.Body.Raw)
		}
	}

	envPath := writeEnv(t, tmp, map[string]string{"baseUrl": srv.URL})
	total = "12.50"
	if sum := runGenerated(t, out, envPath); !sum.Passed() {
		t.Fatalf("expected pass:\n%s", failureText(sum))
	}
	total = "-1"
	sum := runGenerated(t, out, envPath)
	if sum.Passed() || !strings.Contains(failureText(sum), "response schema") {
		t.Fatalf("negative total should fail the schema test:\n%s", failureText(sum))
	}
}
