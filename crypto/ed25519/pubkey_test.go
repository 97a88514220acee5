package ed25519

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/internal/testing/fake"
)

func TestPublicKey_Binary(t *testing.T) {
	point := suite.Point().Pick(suite.RandomStream())

	raw, err := NewPublicKeyFromPoint(point).MarshalBinary()
	require.NoError(t, err)

	pk, err := NewPublicKey(raw)
	require.NoError(t, err)
	require.True(t, pk.GetPoint().Equal(point))

	_, err = NewPublicKey(nil)
	require.EqualError(t, err, "couldn't unmarshal point: invalid Ed25519 curve point")
}

func TestPublicKey_Text(t *testing.T) {
	pk := NewSigner().GetPublicKey().(PublicKey)

	text, err := pk.MarshalText()
	require.NoError(t, err)
	require.Regexp(t, "^schnorr:[a-f0-9]{64}$", string(text))
	require.Equal(t, string(text[:shortKeyLen]), pk.String())

	pk.point = badPoint{}

	_, err = pk.MarshalText()
	require.EqualError(t, err, fake.Err("couldn't marshal"))
	require.Equal(t, "schnorr:malformed_point", pk.String())
}

func TestPublicKey_Serialize(t *testing.T) {
	pk := NewSigner().GetPublicKey()

	data, err := pk.Serialize(fake.NewContext())
	require.NoError(t, err)
	require.Equal(t, fake.GetFakeFormatValue(), data)

	_, err = pk.Serialize(fake.NewBadContext())
	require.EqualError(t, err, fake.Err("couldn't encode public key"))
}

func TestPublicKey_Verify(t *testing.T) {
	signer := NewSigner()
	pk := signer.GetPublicKey()

	sig, err := signer.Sign([]byte("vote"))
	require.NoError(t, err)

	require.NoError(t, pk.Verify([]byte("vote"), sig))

	err = pk.Verify([]byte("vote"), fake.NewBadSignature())
	require.EqualError(t, err, "invalid signature type 'fake.Signature'")

	err = pk.Verify([]byte("veto"), sig)
	require.Error(t, err)
	require.Contains(t, err.Error(), "schnorr verify failed: ")

	err = NewSigner().GetPublicKey().Verify([]byte("vote"), sig)
	require.Error(t, err)
}

func TestPublicKey_Equal(t *testing.T) {
	point := suite.Point().Pick(suite.RandomStream())
	pk := NewPublicKeyFromPoint(point)

	require.True(t, pk.Equal(NewPublicKeyFromPoint(point.Clone())))
	require.False(t, pk.Equal(NewSigner().GetPublicKey()))
	require.False(t, pk.Equal(fake.NewBadPublicKey()))
	require.False(t, pk.Equal(nil))
}

func TestPublicKeyFactory_PublicKeyOf(t *testing.T) {
	fac := NewPublicKeyFactory()

	msg, err := fac.Deserialize(fake.NewContext(), nil)
	require.NoError(t, err)
	require.IsType(t, PublicKey{}, msg)

	_, err = fac.PublicKeyOf(fake.NewBadContext(), nil)
	require.EqualError(t, err, fake.Err("couldn't decode public key"))

	_, err = fac.PublicKeyOf(fake.NewContextWithFormat("WRONG_TYPE"), nil)
	require.EqualError(t, err,
		"couldn't decode public key: invalid message of type 'fake.Message'")
}

func TestPublicKeyFactory_FromBytes(t *testing.T) {
	fac := NewPublicKeyFactory()
	pk := NewSigner().GetPublicKey()

	raw, err := pk.MarshalBinary()
	require.NoError(t, err)

	res, err := fac.FromBytes(raw)
	require.NoError(t, err)
	require.True(t, pk.Equal(res))

	_, err = fac.FromBytes([]byte{1, 2})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to unmarshal the key: ")
}
