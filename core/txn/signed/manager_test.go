package signed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/internal/testing/fake"
)

func TestManager_Make(t *testing.T) {
	signer := ed25519.NewSigner()
	mgr := NewManager(signer, fakeClient{nonce: 5})

	tx, err := mgr.Make(txn.Arg{Key: "subject", Value: []byte{0xaa}})
	require.NoError(t, err)
	require.Equal(t, uint64(0), tx.GetNonce())
	require.Equal(t, []byte{0xaa}, tx.GetArg("subject"))
	require.NoError(t, signer.GetPublicKey().Verify(tx.GetID(), tx.(*Transaction).GetSignature()))

	require.NoError(t, mgr.Sync())

	for _, nonce := range []uint64{5, 6} {
		tx, err = mgr.Make()
		require.NoError(t, err)
		require.Equal(t, nonce, tx.GetNonce())
	}
}

func TestManager_Concurrent_Make(t *testing.T) {
	mgr := NewManager(ed25519.NewSigner(), fakeClient{})

	nonces := make(chan uint64, 20)

	var wg sync.WaitGroup
	for i := 0; i < cap(nonces); i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tx, err := mgr.Make()
			if err == nil {
				nonces <- tx.GetNonce()
			}
		}()
	}

	wg.Wait()
	close(nonces)

	seen := map[uint64]bool{}
	for nonce := range nonces {
		require.False(t, seen[nonce])
		seen[nonce] = true
	}

	require.Len(t, seen, 20)
}

func TestManager_Failures(t *testing.T) {
	mgr := NewManager(ed25519.NewSigner(), fakeClient{err: fake.GetError()})

	err := mgr.Sync()
	require.EqualError(t, err, fake.Err("client"))

	mgr.hashFac = fake.NewHashFactory(fake.NewBadHash())

	_, err = mgr.Make()
	require.EqualError(t, err,
		fake.Err("failed to create tx: couldn't fingerprint tx: couldn't write nonce"))

	mgr.hashFac = crypto.NewSha256Factory()
	mgr.signer = fake.NewBadSigner()

	_, err = mgr.Make()
	require.EqualError(t, err, fake.Err("failed to sign: signer"))
	require.Equal(t, uint64(0), mgr.nonce)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeClient struct {
	nonce uint64
	err   error
}

func (c fakeClient) GetNonce(crypto.PublicKey) (uint64, error) {
	return c.nonce, c.err
}
