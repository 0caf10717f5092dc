package tpm

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

// subjectAltNameOID is the standard X.509 SAN extension, used here because
// [TPMv2-EK-Profile] §3.2.9 carries the TPM device property in a SAN
// directoryName rather than the certificate Subject, which MUST be empty.
var subjectAltNameOID = asn1.ObjectIdentifier{2, 5, 29, 17}

const sanDirectoryNameTag = 4

var (
	tpmManufacturerOID = asn1.ObjectIdentifier{2, 23, 133, 2, 1}
	tpmModelOID        = asn1.ObjectIdentifier{2, 23, 133, 2, 2}
	tpmVersionOID      = asn1.ObjectIdentifier{2, 23, 133, 2, 3}
)

// DeviceProperty is the TPM manufacturer/model/firmware identity carried in
// an AIK certificate's Subject Alternative Name.
type DeviceProperty struct {
	Manufacturer string
	Model        string
	Version      string
}

// DevicePropertyDecoder decodes the attribute set of the SAN directoryName
// entry into a DeviceProperty. Injected via Options so callers can plug in
// a TPM vendor ID registry without forking this package.
type DevicePropertyDecoder func(attrs []pkix.AttributeTypeAndValue) (DeviceProperty, error)

// DevicePropertyValidator applies caller policy to a decoded DeviceProperty,
// for example rejecting TPM vendors or firmware versions with known
// vulnerabilities. Returning nil accepts the property unconditionally.
type DevicePropertyValidator func(DeviceProperty) error

// DefaultDevicePropertyDecoder reads the three attributes defined by
// [TPMv2-EK-Profile] §3.2.9: tpmManufacturer, tpmModel and tpmVersion. All
// three are required.
func DefaultDevicePropertyDecoder(attrs []pkix.AttributeTypeAndValue) (DeviceProperty, error) {
	var prop DeviceProperty
	for _, attr := range attrs {
		s, ok := attr.Value.(string)
		if !ok {
			continue
		}
		switch {
		case attr.Type.Equal(tpmManufacturerOID):
			prop.Manufacturer = s
		case attr.Type.Equal(tpmModelOID):
			prop.Model = s
		case attr.Type.Equal(tpmVersionOID):
			prop.Version = s
		}
	}
	if prop.Manufacturer == "" || prop.Model == "" || prop.Version == "" {
		return DeviceProperty{}, fmt.Errorf("attestation/tpm: SAN directoryName missing tpmManufacturer/tpmModel/tpmVersion")
	}
	return prop, nil
}

// DefaultDevicePropertyValidator accepts any well-formed DeviceProperty. It
// is the permissive default; RPs that maintain a TPM vendor allowlist
// should inject their own validator via Options.
func DefaultDevicePropertyValidator(DeviceProperty) error {
	return nil
}

// directoryNameAttributes extracts the RDN attribute set of the SAN
// directoryName GeneralName from cert, if present.
func directoryNameAttributes(cert *x509.Certificate) ([]pkix.AttributeTypeAndValue, error) {
	var raw []byte
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(subjectAltNameOID) {
			raw = ext.Value
			break
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("attestation/tpm: AIK certificate missing subjectAltName extension")
	}

	var names []asn1.RawValue
	if _, err := asn1.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("attestation/tpm: decoding subjectAltName: %w", err)
	}

	for _, gn := range names {
		if gn.Class != asn1.ClassContextSpecific || gn.Tag != sanDirectoryNameTag {
			continue
		}
		var rdn pkix.RDNSequence
		if _, err := asn1.Unmarshal(gn.Bytes, &rdn); err != nil {
			return nil, fmt.Errorf("attestation/tpm: decoding subjectAltName directoryName: %w", err)
		}
		var attrs []pkix.AttributeTypeAndValue
		for _, set := range rdn {
			attrs = append(attrs, set...)
		}
		return attrs, nil
	}
	return nil, fmt.Errorf("attestation/tpm: subjectAltName does not contain a directoryName entry")
}
