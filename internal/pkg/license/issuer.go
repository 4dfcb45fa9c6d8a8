package license

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
)

const endMarker = "=====END LICENSE====="

// SigningError wraps any key or template problem during issuance. It is a
// fatal, operator-facing condition: at the point it can occur the charge has
// already been captured.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("license: signing failed: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// Data is everything that gets substituted into the license template.
type Data struct {
	LicenseVersion int
	CustomerName   string
	Email          string
	Created        string
	Expires        string
}

// Issuer renders and signs license artifacts. The signature is over the
// rendered body, so any edit to the license text invalidates the serial.
type Issuer struct {
	tmpl    *template.Template
	key     *rsa.PrivateKey
	version int
}

// NewIssuer builds an issuer from raw template text and a PEM-encoded RSA
// private key. Malformed keys are rejected here rather than at issue time.
func NewIssuer(templateText string, keyPEM []byte, version int) (*Issuer, error) {
	tmpl, err := template.New("license").Parse(templateText)
	if err != nil {
		return nil, &SigningError{Err: fmt.Errorf("parsing license template: %w", err)}
	}

	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, &SigningError{Err: err}
	}

	return &Issuer{tmpl: tmpl, key: key, version: version}, nil
}

// NewIssuerFromFiles reads the template and private key from disk.
func NewIssuerFromFiles(templatePath, keyPath string, version int) (*Issuer, error) {
	templateText, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, &SigningError{Err: fmt.Errorf("reading license template: %w", err)}
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, &SigningError{Err: fmt.Errorf("reading signing key: %w", err)}
	}
	return NewIssuer(string(templateText), keyPEM, version)
}

// Issue renders the template with the order data, signs the rendered body
// and appends the serial block. The result is the full license artifact.
func (i *Issuer) Issue(d Data) (string, error) {
	if d.LicenseVersion == 0 {
		d.LicenseVersion = i.version
	}

	var body strings.Builder
	if err := i.tmpl.Execute(&body, d); err != nil {
		return "", &SigningError{Err: fmt.Errorf("rendering license template: %w", err)}
	}

	serial, err := i.sign(body.String())
	if err != nil {
		return "", &SigningError{Err: err}
	}

	return body.String() + "Serial: " + serial + "\n" + endMarker + "\n", nil
}

func (i *Issuer) sign(body string) (string, error) {
	digest := sha256.Sum256([]byte(body))
	sig, err := rsa.SignPKCS1v15(nil, i.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing license body: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a license artifact against the issuer's public key. License
// consumers run the same check offline with the distributed public key.
func Verify(blob string, pub *rsa.PublicKey) error {
	idx := strings.LastIndex(blob, "Serial: ")
	if idx < 0 {
		return errors.New("license: no serial block found")
	}

	body := blob[:idx]
	serialLine := strings.TrimPrefix(blob[idx:], "Serial: ")
	if cut := strings.IndexByte(serialLine, '\n'); cut >= 0 {
		serialLine = serialLine[:cut]
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(serialLine))
	if err != nil {
		return fmt.Errorf("license: decoding serial: %w", err)
	}

	digest := sha256.Sum256([]byte(body))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("license: signature check failed: %w", err)
	}
	return nil
}

func parsePrivateKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("signing key is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an RSA key")
	}
	return key, nil
}
