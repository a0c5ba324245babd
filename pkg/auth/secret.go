package auth

// Secret is a string whose value is redacted from String, GoString and text
// serialization. Use [Secret.Value] where the raw value is needed, such as
// the client secret of a client-credentials exchange.
type Secret string

const secretRedacted = "[REDACTED]"

func (s Secret) String() string { return secretRedacted }

func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the secret out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }
