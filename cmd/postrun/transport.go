package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// transportConfig holds the TLS, proxy and cookie knobs of a run.
type transportConfig struct {
	insecure   bool
	caCert     string
	caOnly     bool // trust caCert alone, not the system pool
	clientCert string
	noProxy    bool
	noCookies  bool
}

func transportFromFlags(flags *pflag.FlagSet) transportConfig {
	var c transportConfig
	c.insecure, _ = flags.GetBool("insecure")
	c.caCert, _ = flags.GetString("cacert")
	c.caOnly, _ = flags.GetBool("ignore-truststore")
	c.clientCert, _ = flags.GetString("client-cert-config")
	c.noProxy, _ = flags.GetBool("noproxy")
	c.noCookies, _ = flags.GetBool("disable-cookies")
	return c
}

// client builds the HTTP client handed to the engine. Per-request timeouts
// are applied by the engine, not here.
func (c transportConfig) client() (*http.Client, error) {
	tlsCfg, err := c.tls()
	if err != nil {
		return nil, err
	}
	tr := &http.Transport{TLSClientConfig: tlsCfg}
	if !c.noProxy {
		tr.Proxy = http.ProxyFromEnvironment
	}
	client := &http.Client{Transport: tr}
	if c.noCookies {
		return client, nil
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	client.Jar = jar
	return client, nil
}

func (c transportConfig) tls() (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: c.insecure} //nolint:gosec // user opted in
	if c.caCert != "" {
		pool, err := c.rootCAs()
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if c.clientCert != "" {
		cert, err := loadClientCert(c.clientCert)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func (c transportConfig) rootCAs() (*x509.CertPool, error) {
	pem, err := os.ReadFile(c.caCert)
	if err != nil {
		return nil, fmt.Errorf("read cacert: %w", err)
	}
	pool := x509.NewCertPool()
	if !c.caOnly {
		if sys, err := x509.SystemCertPool(); err == nil {
			pool = sys
		}
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("cacert %s: no PEM certificates found", c.caCert)
	}
	return pool, nil
}

func loadClientCert(configPath string) (tls.Certificate, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read client-cert-config: %w", err)
	}
	certPath, keyPath, err := parseClientCertConfig(configPath, raw)
	if err != nil {
		return tls.Certificate{}, err
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load client cert: %w", err)
	}
	return cert, nil
}

// parseClientCertConfig accepts {"cert","key"} or the newman style
// {"certs":[{"cert":{"src"},"key":{"src"}}]} list; the first complete entry
// wins. Relative paths are resolved against the config file.
func parseClientCertConfig(configPath string, raw []byte) (certPath, keyPath string, err error) {
	var simple struct {
		Cert string `json:"cert"`
		Key  string `json:"key"`
	}
	pairs := [][2]string{}
	// cert is a string in one form and an object in the other.
	if json.Unmarshal(raw, &simple) == nil {
		pairs = append(pairs, [2]string{simple.Cert, simple.Key})
	}
	var list struct {
		Certs []struct {
			Cert struct {
				Src string `json:"src"`
			} `json:"cert"`
			Key struct {
				Src string `json:"src"`
			} `json:"key"`
		} `json:"certs"`
	}
	if json.Unmarshal(raw, &list) == nil {
		for _, c := range list.Certs {
			pairs = append(pairs, [2]string{c.Cert.Src, c.Key.Src})
		}
	}
	dir := filepath.Dir(configPath)
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for _, p := range pairs {
		if p[0] != "" && p[1] != "" {
			return abs(p[0]), abs(p[1]), nil
		}
	}
	return "", "", fmt.Errorf("client-cert-config requires cert and key")
}
