// Command demo is a throwaway HTTP relying party exercising registration
// and authentication end to end over self-signed TLS, adapted from the
// teacher library's own demo server.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/coreauthn/webauthn"
	"github.com/coreauthn/webauthn/attestation"

	_ "github.com/coreauthn/webauthn/attestation/fidou2f"
	_ "github.com/coreauthn/webauthn/attestation/none"
	_ "github.com/coreauthn/webauthn/attestation/packed"
)

type demoUser struct {
	name string
	id   []byte
	creds []*webauthn.Authenticator
}

func (u *demoUser) ID() []byte    { return u.id }
func (u *demoUser) Name() string  { return u.name }
func (u *demoUser) Icon() string  { return "" }
func (u *demoUser) DisplayName() string { return u.name }
func (u *demoUser) Credentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = demoCredential{c}
	}
	return creds
}

type demoCredential struct{ a *webauthn.Authenticator }

func (c demoCredential) CredentialID() []byte                       { return c.a.CredentialID }
func (c demoCredential) Transports() []webauthn.AuthenticatorTransport { return c.a.Transports }

type demoRP struct{ origin string }

func (r demoRP) ID() string {
	u, _ := url.Parse(r.origin)
	return u.Hostname()
}
func (r demoRP) Name() string { return "coreauthn demo" }
func (r demoRP) Icon() string { return "" }

type registrationSession struct {
	options *webauthn.PublicKeyCredentialCreationOptions
}

type authenticationSession struct {
	options *webauthn.PublicKeyCredentialRequestOptions
}

type server struct {
	mu                   sync.Mutex
	rp                    demoRP
	users                 map[string]*demoUser
	credentials           map[string]*webauthn.Authenticator // keyed by raw credential id bytes
	registrationSessions  map[string]registrationSession
	authenticationSessions map[string]authenticationSession

	registrationValidator  *webauthn.RegistrationValidator
	authenticationValidator *webauthn.AuthenticationValidator
}

func (s *server) findByID(id []byte) (*webauthn.Authenticator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[string(id)]
	if !ok {
		return nil, fmt.Errorf("demo: no credential with that id")
	}
	return cred, nil
}

var (
	bind   string
	origin string
	cert   string
	key    string
)

func init() {
	flag.StringVar(&bind, "bind", ":3001", "bind address/port")
	flag.StringVar(&origin, "origin", "https://localhost:3001", "fully qualified origin")
	flag.StringVar(&cert, "cert", "", "path to TLS certificate")
	flag.StringVar(&key, "key", "", "path to TLS key")
}

func main() {
	flag.Parse()

	if (cert == "") != (key == "") {
		log.Fatal("must provide neither or both of -cert and -key")
	}
	if cert == "" {
		tmpDir, err := os.MkdirTemp("", "")
		if err != nil {
			log.Fatalf("creating temp cert dir: %v", err)
		}
		defer os.RemoveAll(tmpDir)
		cert, key, err = generateDevCert(tmpDir, origin)
		if err != nil {
			log.Fatalf("generating dev certificate: %v", err)
		}
	}

	s := &server{
		rp:                      demoRP{origin: origin},
		users:                   make(map[string]*demoUser),
		credentials:             make(map[string]*webauthn.Authenticator),
		registrationSessions:    make(map[string]registrationSession),
		authenticationSessions:  make(map[string]authenticationSession),
		registrationValidator:   webauthn.NewRegistrationValidatorConfig().Build(),
		authenticationValidator: webauthn.NewAuthenticationValidatorConfig().Build(),
	}

	http.HandleFunc("/register/start", s.startRegistration)
	http.HandleFunc("/register/finish", s.finishRegistration)
	http.HandleFunc("/login/start", s.startAuthentication)
	http.HandleFunc("/login/finish", s.finishAuthentication)

	log.Printf("listening on %s, registered attestation formats: %v", bind, attestation.Registered())
	log.Fatal(http.ListenAndServeTLS(bind, cert, key, nil))
}

func (s *server) startRegistration(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "no username provided", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	u, ok := s.users[username]
	if !ok {
		id := make([]byte, 16)
		rand.Read(id)
		u = &demoUser{name: username, id: id}
		s.users[username] = u
	}
	s.mu.Unlock()

	opts, err := webauthn.BeginRegistration(s.rp, u, webauthn.WithAttestation(webauthn.AttestationIndirect))
	if err != nil {
		http.Error(w, fmt.Sprintf("begin registration: %v", err), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.registrationSessions[username] = registrationSession{options: opts}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(opts)
}

type registrationResponse struct {
	ID                     string                                      `json:"id"`
	ClientDataJSON         []byte                                      `json:"clientDataJSON"`
	AttestationObject      []byte                                      `json:"attestationObject"`
	ClientExtensionResults webauthn.AuthenticationExtensionsClientOutputs `json:"clientExtensionResults"`
}

func (s *server) finishRegistration(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "no username provided", http.StatusBadRequest)
		return
	}

	var resp registrationResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		http.Error(w, fmt.Sprintf("decode credential: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	session, ok := s.registrationSessions[username]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no registration session for user", http.StatusUnauthorized)
		return
	}

	data, err := webauthn.DecodeRegistrationData(resp.ClientDataJSON, resp.AttestationObject, resp.ClientExtensionResults)
	if err != nil {
		http.Error(w, fmt.Sprintf("decode registration data: %v", err), http.StatusBadRequest)
		return
	}

	params := webauthn.RegistrationParameters{
		ServerProperty: webauthn.ServerProperty{
			Origins:   []string{s.rp.origin},
			RPID:      s.rp.ID(),
			Challenge: session.options.Challenge,
		},
		UserPresenceRequired: true,
	}

	if _, err := s.registrationValidator.Validate(data, params); err != nil {
		http.Error(w, fmt.Sprintf("unauthorized: %v", err), http.StatusUnauthorized)
		return
	}

	acd := data.AuthenticatorData.AttestedCredentialData
	authenticator := &webauthn.Authenticator{
		CredentialID:  acd.CredentialID,
		AAGUID:        acd.AAGUID,
		CredentialKey: acd.CredentialKey,
		SignCount:     data.AuthenticatorData.SignCount,
	}

	s.mu.Lock()
	s.credentials[string(acd.CredentialID)] = authenticator
	s.users[username].creds = append(s.users[username].creds, authenticator)
	delete(s.registrationSessions, username)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) startAuthentication(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "no username provided", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown user", http.StatusNotFound)
		return
	}

	allow := make([]webauthn.PublicKeyCredentialDescriptor, len(u.creds))
	for i, c := range u.creds {
		allow[i] = webauthn.PublicKeyCredentialDescriptor{
			Type: webauthn.PublicKeyCredentialTypePublicKey,
			ID:   c.CredentialID,
		}
	}

	opts, err := webauthn.BeginAuthentication(
		webauthn.WithRPID(s.rp.ID()),
		webauthn.WithAllowCredentials(allow),
	)
	if err != nil {
		http.Error(w, fmt.Sprintf("begin authentication: %v", err), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.authenticationSessions[username] = authenticationSession{options: opts}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(opts)
}

type authenticationResponse struct {
	ID                     string                                        `json:"id"`
	ClientDataJSON         []byte                                        `json:"clientDataJSON"`
	AuthenticatorData      []byte                                        `json:"authenticatorData"`
	Signature              []byte                                        `json:"signature"`
	UserHandle             []byte                                        `json:"userHandle"`
	ClientExtensionResults webauthn.AuthenticationExtensionsClientOutputs `json:"clientExtensionResults"`
}

func (s *server) finishAuthentication(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "no username provided", http.StatusBadRequest)
		return
	}

	var resp authenticationResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		http.Error(w, fmt.Sprintf("decode assertion: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	session, ok := s.authenticationSessions[username]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no authentication session for user", http.StatusUnauthorized)
		return
	}

	credentialID, err := decodeBase64URL(resp.ID)
	if err != nil {
		http.Error(w, "bad credential id", http.StatusBadRequest)
		return
	}

	authenticator, err := s.findByID(credentialID)
	if err != nil {
		http.Error(w, "unknown credential", http.StatusUnauthorized)
		return
	}

	data, err := webauthn.DecodeAuthenticationData(
		resp.ClientDataJSON, resp.AuthenticatorData, resp.Signature,
		credentialID, resp.UserHandle, resp.ClientExtensionResults,
	)
	if err != nil {
		http.Error(w, fmt.Sprintf("decode authentication data: %v", err), http.StatusBadRequest)
		return
	}

	params := webauthn.AuthenticationParameters{
		ServerProperty: webauthn.ServerProperty{
			Origins:   []string{s.rp.origin},
			RPID:      s.rp.ID(),
			Challenge: session.options.Challenge,
		},
		UserPresenceRequired: true,
	}

	if err := s.authenticationValidator.Validate(data, params, authenticator); err != nil {
		http.Error(w, fmt.Sprintf("unauthorized: %v", err), http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	delete(s.authenticationSessions, username)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func generateDevCert(tmpDir, origin string) (string, string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}

	serialLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return "", "", err
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", "", err
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"coreauthn demo"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{u.Hostname()},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return "", "", err
	}

	certFile, err := os.CreateTemp(tmpDir, "")
	if err != nil {
		return "", "", err
	}
	if err := pem.Encode(certFile, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return "", "", err
	}
	certFile.Close()

	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}
	keyFile, err := os.CreateTemp(tmpDir, "")
	if err != nil {
		return "", "", err
	}
	if err := pem.Encode(keyFile, &pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}); err != nil {
		return "", "", err
	}
	keyFile.Close()

	return certFile.Name(), keyFile.Name(), nil
}
