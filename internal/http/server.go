package httpserver

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Addr    string
	TLSAddr string
	// TLSCertFile and TLSKeyFile are optional; without them the HTTPS
	// listener serves a freshly generated self-signed certificate.
	TLSCertFile  string
	TLSKeyFile   string
	Organization string
}

type Servers struct {
	log     *logrus.Entry
	servers []*http.Server
	wg      sync.WaitGroup
}

func generateSelfSignedCert(organization string) (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:  x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
		},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: derBytes,
	})
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	return tls.X509KeyPair(certPEM, keyPEM)
}

func loadCertificate(cfg Config) (tls.Certificate, error) {
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		return tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	return generateSelfSignedCert(cfg.Organization)
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// StartServers starts the HTTP listener and, when cfg.TLSAddr is set, the
// HTTPS listener. A listener that fails after startup is reported on the
// returned channel.
func StartServers(logger *logrus.Logger, cfg Config, handler http.Handler) (*Servers, <-chan error, error) {
	s := &Servers{log: logger.WithField("component", "http_server")}
	errc := make(chan error, 2)

	httpServer := newServer(cfg.Addr, handler)
	s.servers = append(s.servers, httpServer)
	s.serve(errc, "HTTP", cfg.Addr, func() error { return httpServer.ListenAndServe() })

	if cfg.TLSAddr != "" {
		cert, err := loadCertificate(cfg)
		if err != nil {
			s.Shutdown(context.Background())
			return nil, nil, fmt.Errorf("load TLS certificate: %w", err)
		}
		httpsServer := newServer(cfg.TLSAddr, handler)
		httpsServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		s.servers = append(s.servers, httpsServer)
		s.serve(errc, "HTTPS", cfg.TLSAddr, func() error { return httpsServer.ListenAndServeTLS("", "") })
	}

	return s, errc, nil
}

func (s *Servers) serve(errc chan<- error, name, addr string, listen func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.WithField("addr", addr).Infof("Starting %s server", name)
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Errorf("%s server failed", name)
			errc <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

// Shutdown gracefully stops every listener and waits for them to return.
func (s *Servers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}
