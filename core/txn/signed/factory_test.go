package signed

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/internal/testing/fake"
	"go.dedis.ch/swarm/serde"
)

func TestTransactionFactory_TransactionOf(t *testing.T) {
	fac := NewTransactionFactory()
	require.Equal(t, ed25519.NewPublicKeyFactory(), fac.pubkeyFac)

	msg, err := fac.Deserialize(fake.NewContext(), nil)
	require.NoError(t, err)
	require.IsType(t, &Transaction{}, msg)

	_, err = fac.TransactionOf(fake.NewBadContext(), nil)
	require.EqualError(t, err, fake.Err("failed to decode"))

	_, err = fac.TransactionOf(fake.NewContextWithFormat("WRONG_TYPE"), nil)
	require.EqualError(t, err, "invalid transaction of type 'fake.Message'")
}

func TestTransactionFactory_Context(t *testing.T) {
	format := fake.Format{Msg: &Transaction{}, Call: fake.NewCall()}
	RegisterTransactionFormat("CALLS", format)

	fac := NewTransactionFactoryWith(fake.NewBadPublicKeyFactory(), fake.NewBadSignatureFactory())

	_, err := fac.TransactionOf(fake.NewContextWithFormat("CALLS"), []byte("raw"))
	require.NoError(t, err)
	require.Equal(t, 1, format.Call.Len())

	ctx := format.Call.Get(0, 0).(serde.Context)
	require.Equal(t, fake.NewBadPublicKeyFactory(), ctx.GetFactory(PublicKeyFac{}))
	require.Equal(t, fake.NewBadSignatureFactory(), ctx.GetFactory(SignatureFac{}))
}
