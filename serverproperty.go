package webauthn

// ServerProperty is the Relying Party's configuration for one ceremony: the
// set of acceptable origins, the effective domain, the challenge issued to
// the client, and (optionally) the Token Binding id observed on the
// underlying TLS connection.
type ServerProperty struct {
	Origins        []string
	RPID           string
	Challenge      []byte
	TokenBindingID []byte
}
