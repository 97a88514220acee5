package binprefix

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/core/store/mem"
	"go.dedis.ch/swarm/internal/testing/fake"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

func TestFactory_Open(t *testing.T) {
	factory := NewFactory(Nonce{1})
	snap := mem.NewSnapshot(nil)

	tree, err := factory.Open(snap, nil)
	require.NoError(t, err)

	empty, err := factory.EmptyRoot()
	require.NoError(t, err)
	require.Equal(t, empty, tree.GetRoot())

	other, err := NewFactory(Nonce{2}).EmptyRoot()
	require.NoError(t, err)
	require.NotEqual(t, empty, other)

	tree, err = factory.Open(snap, empty)
	require.NoError(t, err)
	require.Equal(t, empty, tree.GetRoot())

	_, err = factory.Open(snap, []byte{0xaa})
	require.EqualError(t, err, "couldn't load root: node 0xaa not found")

	_, err = factory.Open(fake.NewBadSnapshot(), []byte{0xaa})
	require.EqualError(t, err, fake.Err("couldn't load root: failed to read node"))

	factory = NewFactory(Nonce{}, WithHashFactory(fake.NewHashFactory(fake.NewBadHash())))
	_, err = factory.Open(snap, nil)
	require.EqualError(t, err, fake.Err("couldn't compute empty root: empty node failed"))
}

func TestTree_SetGet(t *testing.T) {
	tree := makeTree(t)

	value, err := tree.Get([]byte("A"))
	require.NoError(t, err)
	require.Nil(t, value)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key%d", i))
		require.NoError(t, tree.Set(key, []byte(fmt.Sprintf("value%d", i))))
	}

	for i := 0; i < 50; i++ {
		value, err := tree.Get([]byte(fmt.Sprintf("key%d", i)))
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("value%d", i)), value)
	}

	value, err = tree.Get([]byte("unknown"))
	require.NoError(t, err)
	require.Nil(t, value)

	// Overwrite an existing key.
	root := tree.GetRoot()
	require.NoError(t, tree.Set([]byte("key0"), []byte("other")))
	require.NotEqual(t, root, tree.GetRoot())

	value, err = tree.Get([]byte("key0"))
	require.NoError(t, err)
	require.Equal(t, []byte("other"), value)

	require.NoError(t, tree.Set([]byte("empty"), nil))
	value, err = tree.Get([]byte("empty"))
	require.NoError(t, err)
	require.Equal(t, []byte{}, value)
}

func TestTree_CanonicalRoot(t *testing.T) {
	keys := make([][]byte, 40)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("subject-%d", i))
	}

	tree1 := makeTree(t)
	for _, key := range keys {
		require.NoError(t, tree1.Set(key, key))
	}

	tree2 := makeTree(t)
	for _, i := range rand.Perm(len(keys)) {
		require.NoError(t, tree2.Set(keys[i], keys[i]))
	}

	require.Equal(t, tree1.GetRoot(), tree2.GetRoot())

	// Deleting keys brings the tree in the same shape as if they had never
	// been inserted.
	tree3 := makeTree(t)
	for _, key := range keys[:20] {
		require.NoError(t, tree3.Set(key, key))
	}

	for _, key := range keys[20:] {
		require.NoError(t, tree1.Delete(key))
	}

	require.Equal(t, tree3.GetRoot(), tree1.GetRoot())

	for _, key := range keys[:20] {
		require.NoError(t, tree1.Delete(key))
	}

	empty, err := NewFactory(Nonce{}).EmptyRoot()
	require.NoError(t, err)
	require.Equal(t, empty, tree1.GetRoot())

	// Deleting an unknown key is a no-op.
	root := tree3.GetRoot()
	require.NoError(t, tree3.Delete([]byte("unknown")))
	require.Equal(t, root, tree3.GetRoot())
}

func TestTree_GetPath(t *testing.T) {
	tree := makeTree(t)

	path, err := tree.GetPath([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, tree.GetRoot(), path.GetRoot())
	require.Nil(t, path.GetValue())

	for i := 0; i < 30; i++ {
		key := []byte(fmt.Sprintf("key%d", i))
		require.NoError(t, tree.Set(key, []byte{byte(i)}))
	}

	for i := 0; i < 60; i++ {
		key := []byte(fmt.Sprintf("key%d", i))

		path, err := tree.GetPath(key)
		require.NoError(t, err)
		require.Equal(t, key, path.GetKey())
		require.Equal(t, tree.GetRoot(), path.GetRoot())

		if i < 30 {
			require.Equal(t, []byte{byte(i)}, path.GetValue())
		} else {
			require.Nil(t, path.GetValue())
		}
	}
}

func TestTree_PreviousVersions(t *testing.T) {
	factory := NewFactory(Nonce{})
	snap := mem.NewSnapshot(nil)

	tree, err := factory.OpenWritable(snap, nil)
	require.NoError(t, err)

	require.NoError(t, tree.Set([]byte("A"), []byte("1")))
	root := tree.GetRoot()

	require.NoError(t, tree.Set([]byte("A"), []byte("2")))
	require.NoError(t, tree.Set([]byte("B"), []byte("3")))

	old, err := factory.Open(snap, root)
	require.NoError(t, err)

	value, err := old.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	value, err = old.Get([]byte("B"))
	require.NoError(t, err)
	require.Nil(t, value)

	_, ok := old.(*Tree)
	require.True(t, ok)
	require.EqualError(t, old.(*Tree).Set([]byte("A"), nil), "tree is read-only")
	require.EqualError(t, old.(*Tree).Delete([]byte("A")), "tree is read-only")
}

func TestTree_ForEach(t *testing.T) {
	tree := makeTree(t)

	expected := map[string]string{}
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("key%d", i)
		expected[key] = fmt.Sprintf("value%d", i)
		require.NoError(t, tree.Set([]byte(key), []byte(expected[key])))
	}

	found := map[string]string{}
	err := tree.ForEach(func(key, value []byte) error {
		found[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, expected, found)

	err = tree.ForEach(func(key, value []byte) error {
		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")
}

func TestTree_Failures(t *testing.T) {
	factory := NewFactory(Nonce{})

	tree, err := factory.OpenWritable(fake.NewBadWriteSnapshot(), nil)
	require.NoError(t, err)

	err = tree.Set([]byte("A"), []byte("B"))
	require.EqualError(t, err, fake.Err("failed to insert: failed to store node"))

	snap := mem.NewSnapshot(nil)
	tree, err = factory.OpenWritable(snap, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Set([]byte("A"), []byte("B")))
	require.NoError(t, tree.Set([]byte("C"), []byte("D")))

	// Remove the nodes so that the traversal fails.
	require.NoError(t, snap.ForEach(func(key, value []byte, deleted bool) error {
		return snap.Delete(key)
	}))

	_, err = tree.Get([]byte("A"))
	require.Error(t, err)
	require.Regexp(t, "^couldn't search key: node 0x[0-9a-f]+ not found$", err.Error())

	_, err = tree.GetPath([]byte("A"))
	require.Error(t, err)

	err = tree.Set([]byte("E"), []byte("F"))
	require.Error(t, err)
	require.Regexp(t, "^failed to insert: node", err.Error())

	err = tree.Delete([]byte("A"))
	require.Error(t, err)
	require.Regexp(t, "^failed to delete: node", err.Error())

	wt := tree.(*Tree)
	wt.hasher = hasher{fac: fake.NewHashFactory(fake.NewBadHash())}

	err = wt.Set([]byte("A"), nil)
	require.EqualError(t, err, fake.Err("failed to insert: key hash failed"))

	err = wt.Delete([]byte("A"))
	require.EqualError(t, err, fake.Err("failed to delete: key hash failed"))
}

func TestPath_Serialize(t *testing.T) {
	tree := makeTree(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, tree.Set([]byte{byte(i)}, []byte{byte(i)}))
	}

	ctx := json.NewContext()
	factory := NewPathFactory(NewFactory(Nonce{}).hashFactory)

	for i := 0; i < 20; i++ {
		path, err := tree.GetPath([]byte{byte(i)})
		require.NoError(t, err)

		data, err := path.(Path).Serialize(ctx)
		require.NoError(t, err)

		decoded, err := factory.PathOf(ctx, data)
		require.NoError(t, err)
		require.Equal(t, tree.GetRoot(), decoded.GetRoot())
		require.Equal(t, path.GetValue(), decoded.GetValue())
	}

	_, err := factory.Deserialize(fake.NewBadContext(), nil)
	require.EqualError(t, err, "format failed: format 'FakeBad' is not implemented")

	_, err = path(t).Serialize(fake.NewBadContext())
	require.EqualError(t, err, "failed to encode path: format 'FakeBad' is not implemented")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeTree(t *testing.T) *Tree {
	tree, err := NewFactory(Nonce{}).OpenWritable(mem.NewSnapshot(nil), nil)
	require.NoError(t, err)

	return tree.(*Tree)
}

func path(t *testing.T) Path {
	p, err := makeTree(t).GetPath([]byte("A"))
	require.NoError(t, err)

	return p.(Path)
}
