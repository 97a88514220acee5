package controller

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/contracts/voting"
	"go.dedis.ch/swarm/contracts/voting/ledger"
	"go.dedis.ch/swarm/contracts/voting/proof"
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/execution/native"
	"go.dedis.ch/swarm/core/ordering/abci"
	"go.dedis.ch/swarm/core/store/hashtree/binprefix"
	"go.dedis.ch/swarm/core/store/mem"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/txn/signed"
	_ "go.dedis.ch/swarm/core/txn/signed/json"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/internal/testing/fake"
	sjson "go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

func TestHandlers_GetVoting(t *testing.T) {
	srv := &fakeService{
		votings: map[string]types.Voting{
			"a1": types.NewVoting([]byte{0xa1}, []byte{0xd1}),
		},
	}

	h := newHandlers(srv)

	res := h.do(t, http.MethodGet, "/v1/voting?pub_key=a1", nil)
	require.Equal(t, http.StatusOK, res.Code)

	var resp types.VotingResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.Equal(t, "a1", resp.SubjectKey)
	require.Equal(t, "d1", resp.DroneKey)
	require.Empty(t, resp.Actions)

	res = h.do(t, http.MethodGet, "/v1/voting?pub_key=b2", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, `"Voting not found"`, res.Body.String())

	res = h.do(t, http.MethodGet, "/v1/voting", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	requireMessage(t, res, "missing query parameter 'pub_key'")

	res = h.do(t, http.MethodGet, "/v1/voting?pub_key=zz", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, http.MethodPost, "/v1/voting?pub_key=a1", nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)

	srv.err = fake.GetError()
	res = h.do(t, http.MethodGet, "/v1/voting?pub_key=a1", nil)
	require.Equal(t, http.StatusInternalServerError, res.Code)
	requireMessage(t, res, fake.GetError().Error())
}

func TestHandlers_ListVotings(t *testing.T) {
	srv := &fakeService{
		votings: map[string]types.Voting{
			"a1": types.NewVoting([]byte{0xa1}, []byte{0xd1}),
			"a2": types.NewVoting([]byte{0xa2}, []byte{0xd1}),
		},
	}

	h := newHandlers(srv)

	res := h.do(t, http.MethodGet, "/v1/votings", nil)
	require.Equal(t, http.StatusOK, res.Code)

	var resp []types.VotingResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.Len(t, resp, 2)

	res = h.do(t, http.MethodDelete, "/v1/votings", nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)

	srv.err = fake.GetError()
	res = h.do(t, http.MethodGet, "/v1/votings", nil)
	require.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestHandlers_Submit(t *testing.T) {
	srv := &fakeService{}
	h := newHandlers(srv)

	create := makeTx(t, types.CreateVoting{SubjectKey: []byte{1}, DroneKey: []byte{2}})

	res := h.do(t, http.MethodPost, "/v1/votings", encodeTx(t, create))
	require.Equal(t, http.StatusOK, res.Code)

	var resp types.TransactionResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.Equal(t, hex.EncodeToString(create.GetID()), resp.TxHash)
	require.Len(t, srv.txs, 1)

	vote := makeTx(t, types.CastVote{SubjectKey: []byte{1}, ValidatorKey: []byte{3}, Decision: true})

	res = h.do(t, http.MethodPost, "/v1/votings/vote", encodeTx(t, vote))
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, srv.txs, 2)

	res = h.do(t, http.MethodPost, "/v1/votings/vote", encodeTx(t, create))
	require.Equal(t, http.StatusBadRequest, res.Code)
	requireMessage(t, res, "expected command CAST_VOTE but got 'CREATE_VOTING'")

	res = h.do(t, http.MethodPost, "/v1/votings", []byte("garbage"))
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, http.MethodGet, "/v1/votings/vote", nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)

	srv.err = fake.GetError()
	res = h.do(t, http.MethodPost, "/v1/votings", encodeTx(t, create))
	require.Equal(t, http.StatusBadRequest, res.Code)
	requireMessage(t, res, fake.GetError().Error())
}

func TestHandlers_GetVotingInfo(t *testing.T) {
	srv := &fakeService{proof: makeProof(t, []byte{0xa1})}
	h := newHandlers(srv)

	res := h.do(t, http.MethodGet, "/v1/votings/info?pub_key=a1", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, uint64(0), srv.height)

	fac := proof.NewFactory(
		abci.NewHeaderFactory(crypto.NewSha256Factory()),
		binprefix.NewPathFactory(crypto.NewSha256Factory()),
		nil,
		signed.NewTransactionFactory(),
	)

	p, err := fac.ProofOf(sjson.NewContext(), res.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte{0xa1}, p.GetSubjectKey())

	res = h.do(t, http.MethodGet, "/v1/votings/info?pub_key=a1&height=3", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, uint64(3), srv.height)

	res = h.do(t, http.MethodGet, "/v1/votings/info?pub_key=a1&height=abc", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, http.MethodGet, "/v1/votings/info", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, http.MethodPost, "/v1/votings/info?pub_key=a1", nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)

	srv.err = proof.NewNoBlockError(fake.GetError())
	res = h.do(t, http.MethodGet, "/v1/votings/info?pub_key=a1", nil)
	require.Equal(t, http.StatusNotFound, res.Code)

	srv.err = xerrors.Errorf("failed to compose proof: %w", proof.NewNoBlockError(fake.GetError()))
	res = h.do(t, http.MethodGet, "/v1/votings/info?pub_key=a1&height=9", nil)
	require.Equal(t, http.StatusNotFound, res.Code)

	// A failure of the storage is not a missing block.
	srv.err = xerrors.Errorf("failed to compose proof: %v", fake.GetError())
	res = h.do(t, http.MethodGet, "/v1/votings/info?pub_key=a1", nil)
	require.Equal(t, http.StatusInternalServerError, res.Code)

	srv.err = nil
	srv.proof = proof.NewVotingInfoProof(nil, nil, nil, nil, nil)
	res = h.do(t, http.MethodGet, "/v1/votings/info?pub_key=a1", nil)
	require.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestHandlers_GetNonce(t *testing.T) {
	h := newHandlers(&fakeService{})

	pk, err := testSigner.GetPublicKey().MarshalBinary()
	require.NoError(t, err)

	res := h.do(t, http.MethodGet, "/v1/nonce?identity="+hex.EncodeToString(pk), nil)
	require.Equal(t, http.StatusOK, res.Code)

	var resp types.NonceResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.Equal(t, uint64(5), resp.Nonce)

	res = h.do(t, http.MethodGet, "/v1/nonce?identity=aa", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, http.MethodGet, "/v1/nonce", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = h.do(t, http.MethodPut, "/v1/nonce", nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)

	h.nonces = fakeNonces{err: fake.GetError()}
	res = h.do(t, http.MethodGet, "/v1/nonce?identity="+hex.EncodeToString(pk), nil)
	require.Equal(t, http.StatusInternalServerError, res.Code)
}

// -----------------------------------------------------------------------------
// Utility functions

var testSigner = ed25519.NewSigner()

type testHandlers struct {
	Handlers
}

func newHandlers(srv Service) *testHandlers {
	h := NewHandlers(srv, fakeNonces{nonce: 5}, signed.NewTransactionFactory(),
		ed25519.NewPublicKeyFactory())

	return &testHandlers{Handlers: h}
}

func (h *testHandlers) do(t *testing.T, method, url string, body []byte) *httptest.ResponseRecorder {
	mux := http.NewServeMux()

	proxy := fakeProxy{mux: mux}
	h.Register(proxy)

	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	return rec
}

func requireMessage(t *testing.T, res *httptest.ResponseRecorder, expected string) {
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	require.Equal(t, expected, resp.Message)
}

func makeTx(t *testing.T, cmd types.Command) txn.Transaction {
	opts := []signed.TransactionOption{signed.WithArg(native.ContractArg, []byte(voting.ContractName))}
	for _, arg := range cmd.Args() {
		opts = append(opts, signed.WithArg(arg.Key, arg.Value))
	}

	tx, err := signed.NewTransaction(0, testSigner.GetPublicKey(), opts...)
	require.NoError(t, err)

	require.NoError(t, tx.Sign(testSigner))

	return tx
}

func encodeTx(t *testing.T, tx txn.Transaction) []byte {
	data, err := tx.Serialize(sjson.NewContext())
	require.NoError(t, err)

	return data
}

// makeProof returns a proof of absence over an empty state.
func makeProof(t *testing.T, subject []byte) proof.VotingInfoProof {
	trees := binprefix.NewFactory(binprefix.Nonce{})

	state, err := trees.Open(mem.NewSnapshot(nil), nil)
	require.NoError(t, err)

	table, err := state.GetPath([]byte(ledger.TableName))
	require.NoError(t, err)

	record, err := state.GetPath(subject)
	require.NoError(t, err)

	header, err := abci.NewHeader(crypto.NewSha256Factory(), 1, state.GetRoot())
	require.NoError(t, err)

	return proof.NewVotingInfoProof(subject, header, table, record, nil)
}

type fakeService struct {
	votings map[string]types.Voting
	txs     []txn.Transaction
	proof   proof.VotingInfoProof
	height  uint64
	err     error
}

func (s *fakeService) SubmitTx(tx txn.Transaction) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}

	s.txs = append(s.txs, tx)

	return tx.GetID(), nil
}

func (s *fakeService) GetVoting(subject []byte) (types.Voting, error) {
	if s.err != nil {
		return types.Voting{}, s.err
	}

	v, found := s.votings[hex.EncodeToString(subject)]
	if !found {
		return types.Voting{}, voting.ErrNotFound
	}

	return v, nil
}

func (s *fakeService) ListVotings() ([]types.Voting, error) {
	if s.err != nil {
		return nil, s.err
	}

	list := []types.Voting{}
	for _, v := range s.votings {
		list = append(list, v)
	}

	return list, nil
}

func (s *fakeService) GetVotingInfo(subject []byte) (proof.VotingInfoProof, error) {
	return s.proof, s.err
}

func (s *fakeService) GetVotingInfoAt(subject []byte, height uint64) (proof.VotingInfoProof, error) {
	s.height = height

	return s.proof, s.err
}

type fakeNonces struct {
	nonce uint64
	err   error
}

func (n fakeNonces) GetNonce(crypto.PublicKey) (uint64, error) {
	return n.nonce, n.err
}

type fakeProxy struct {
	mux *http.ServeMux
}

func (p fakeProxy) Listen() {}

func (p fakeProxy) Stop() {}

func (p fakeProxy) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	p.mux.HandleFunc(path, handler)
}

func (p fakeProxy) GetAddr() net.Addr {
	return nil
}
