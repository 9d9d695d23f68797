package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
	flagAttested     = 0x40
)

type attestationObject struct {
	Fmt      string          `cbor:"fmt"`
	AttStmt  cbor.RawMessage `cbor:"attStmt"`
	AuthData []byte          `cbor:"authData"`
}

// Attested is the credential data carried inside authData.
type Attested struct {
	Format       string
	UserVerified bool
	SignCount    uint32
	AAGUID       []byte
	CredentialID []byte
	// PublicKey is the raw COSE_Key encoding.
	PublicKey []byte
}

// ParseAttestation decodes a CBOR attestation object and extracts the
// attested credential. The attestation statement itself is not verified.
func ParseAttestation(raw []byte) (Attested, error) {
	if len(raw) == 0 {
		return Attested{}, errors.New("attestation object empty")
	}
	var obj attestationObject
	if err := cbor.Unmarshal(raw, &obj); err != nil {
		return Attested{}, fmt.Errorf("decode attestation object: %w", err)
	}

	ad := obj.AuthData
	// rpIdHash(32) | flags(1) | signCount(4)
	if len(ad) < 37 {
		return Attested{}, errors.New("authData too short")
	}
	flags := ad[32]
	if flags&flagAttested == 0 {
		return Attested{}, errors.New("authData carries no attested credential")
	}
	out := Attested{
		Format:       obj.Fmt,
		UserVerified: flags&flagUserVerified != 0,
		SignCount:    binary.BigEndian.Uint32(ad[33:37]),
	}

	rest := ad[37:]
	// aaguid(16) | credIdLen(2) | credId | COSE_Key
	if len(rest) < 18 {
		return Attested{}, errors.New("attested credential data truncated")
	}
	out.AAGUID = rest[:16]
	n := int(binary.BigEndian.Uint16(rest[16:18]))
	rest = rest[18:]
	if len(rest) < n {
		return Attested{}, errors.New("credential id truncated")
	}
	out.CredentialID = rest[:n]
	rest = rest[n:]

	var key cbor.RawMessage
	if err := cbor.NewDecoder(bytes.NewReader(rest)).Decode(&key); err != nil {
		return Attested{}, fmt.Errorf("decode credential public key: %w", err)
	}
	out.PublicKey = key
	return out, nil
}

// buildAuthData assembles authData for a freshly attested credential.
func buildAuthData(rpIDHash []byte, flags byte, signCount uint32, credID, coseKey []byte) []byte {
	var buf bytes.Buffer
	buf.Write(rpIDHash)
	buf.WriteByte(flags | flagAttested)
	_ = binary.Write(&buf, binary.BigEndian, signCount)
	buf.Write(make([]byte, 16))
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(credID)))
	buf.Write(credID)
	buf.Write(coseKey)
	return buf.Bytes()
}

func marshalAttestation(authData []byte) ([]byte, error) {
	return cbor.Marshal(attestationObject{
		Fmt:      "none",
		AttStmt:  cbor.RawMessage{0xa0},
		AuthData: authData,
	})
}
