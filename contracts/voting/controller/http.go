// Package controller implements the HTTP routes of the voting service.
package controller

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/contracts/voting"
	"go.dedis.ch/swarm/contracts/voting/proof"
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/proxy"
	"go.dedis.ch/swarm/serde"
	sjson "go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

const (
	votingPath  = "/v1/voting"
	votingsPath = "/v1/votings"
	infoPath    = "/v1/votings/info"
	votePath    = "/v1/votings/vote"
	noncePath   = "/v1/nonce"

	maxBodySize = 1 << 20

	notFoundMessage = "Voting not found"
)

// Service is the part of the voting service served over HTTP.
type Service interface {
	SubmitTx(tx txn.Transaction) ([]byte, error)
	GetVoting(subject []byte) (types.Voting, error)
	ListVotings() ([]types.Voting, error)
	GetVotingInfo(subject []byte) (proof.VotingInfoProof, error)
	GetVotingInfoAt(subject []byte, height uint64) (proof.VotingInfoProof, error)
}

// NonceReader returns the next nonce expected from an identity.
type NonceReader interface {
	GetNonce(ident crypto.PublicKey) (uint64, error)
}

// NewNonceReader returns the reader of the nonces of the committed state of
// the ordering service.
func NewNonceReader(val validation.Service, ord ordering.Service) NonceReader {
	return nonceReader{
		validation: val,
		ordering:   ord,
	}
}

type nonceReader struct {
	validation validation.Service
	ordering   ordering.Service
}

func (r nonceReader) GetNonce(ident crypto.PublicKey) (uint64, error) {
	return r.validation.GetNonce(r.ordering.GetStore(), ident)
}

// Handlers are the HTTP handlers of the voting service.
type Handlers struct {
	service   Service
	nonces    NonceReader
	txFactory txn.Factory
	pkFactory crypto.PublicKeyFactory
	context   serde.Context
	logger    zerolog.Logger
}

// NewHandlers creates the handlers of the service.
func NewHandlers(srv Service, nonces NonceReader, txFac txn.Factory,
	pkFac crypto.PublicKeyFactory) Handlers {

	return Handlers{
		service:   srv,
		nonces:    nonces,
		txFactory: txFac,
		pkFactory: pkFac,
		context:   sjson.NewContext(),
		logger:    swarm.Logger.With().Str("role", "voting http").Logger(),
	}
}

// Register registers the routes of the service to the proxy.
func (h Handlers) Register(p proxy.Proxy) {
	p.RegisterHandler(votingPath, h.getVoting)
	p.RegisterHandler(votingsPath, h.votings)
	p.RegisterHandler(infoPath, h.getVotingInfo)
	p.RegisterHandler(votePath, h.castVote)
	p.RegisterHandler(noncePath, h.getNonce)
}

func (h Handlers) getVoting(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	subject, err := readHex(r, "pub_key")
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}

	v, err := h.service.GetVoting(subject)
	if xerrors.Is(err, voting.ErrNotFound) {
		h.reply(w, http.StatusNotFound, notFoundMessage)
		return
	}

	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	h.reply(w, http.StatusOK, types.NewVotingResponse(v))
}

func (h Handlers) votings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVotings(w)
	case http.MethodPost:
		h.submit(w, r, types.CmdCreateVoting)
	default:
		w.Header().Set("Allow", "GET, POST")
		h.fail(w, http.StatusMethodNotAllowed, xerrors.Errorf("method %s not allowed", r.Method))
	}
}

func (h Handlers) listVotings(w http.ResponseWriter) {
	list, err := h.service.ListVotings()
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	res := make([]types.VotingResponse, len(list))
	for i, v := range list {
		res[i] = types.NewVotingResponse(v)
	}

	h.reply(w, http.StatusOK, res)
}

func (h Handlers) castVote(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	h.submit(w, r, types.CmdCastVote)
}

func (h Handlers) submit(w http.ResponseWriter, r *http.Request, expected types.CommandType) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.fail(w, http.StatusBadRequest, xerrors.Errorf("failed to read body: %v", err))
		return
	}

	tx, err := h.txFactory.TransactionOf(h.context, data)
	if err != nil {
		h.fail(w, http.StatusBadRequest, xerrors.Errorf("failed to decode tx: %v", err))
		return
	}

	if types.CommandType(tx.GetArg(types.CmdArg)) != expected {
		h.fail(w, http.StatusBadRequest,
			xerrors.Errorf("expected command %s but got '%s'", expected, tx.GetArg(types.CmdArg)))
		return
	}

	id, err := h.service.SubmitTx(tx)
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}

	h.reply(w, http.StatusOK, types.TransactionResponse{TxHash: hex.EncodeToString(id)})
}

func (h Handlers) getVotingInfo(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	subject, err := readHex(r, "pub_key")
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}

	var p proof.VotingInfoProof

	height := r.URL.Query().Get("height")
	if height == "" {
		p, err = h.service.GetVotingInfo(subject)
	} else {
		var n uint64

		n, err = strconv.ParseUint(height, 10, 64)
		if err != nil {
			h.fail(w, http.StatusBadRequest, xerrors.Errorf("invalid height: %v", err))
			return
		}

		p, err = h.service.GetVotingInfoAt(subject, n)
	}

	var noBlock proof.NoBlockError

	if xerrors.As(err, &noBlock) {
		h.fail(w, http.StatusNotFound, err)
		return
	}

	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	data, err := p.Serialize(h.context)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h Handlers) getNonce(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	raw, err := readHex(r, "identity")
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}

	ident, err := h.pkFactory.FromBytes(raw)
	if err != nil {
		h.fail(w, http.StatusBadRequest, xerrors.Errorf("invalid identity: %v", err))
		return
	}

	nonce, err := h.nonces.GetNonce(ident)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	h.reply(w, http.StatusOK, types.NonceResponse{Nonce: nonce})
}

func (h Handlers) reply(w http.ResponseWriter, status int, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (h Handlers) fail(w http.ResponseWriter, status int, err error) {
	h.logger.Debug().Err(err).Int("status", status).Msg("request failed")

	h.reply(w, status, types.ErrorResponse{Message: err.Error()})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}

	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

	return false
}

func readHex(r *http.Request, key string) ([]byte, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, xerrors.Errorf("missing query parameter '%s'", key)
	}

	data, err := hex.DecodeString(value)
	if err != nil {
		return nil, xerrors.Errorf("invalid '%s': %v", key, err)
	}

	return data, nil
}
