package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/swarm/cli/node"
	"go.dedis.ch/swarm/contracts/voting"
	"go.dedis.ch/swarm/contracts/voting/types"
	ordctrl "go.dedis.ch/swarm/core/ordering/controller"
	"go.dedis.ch/swarm/core/txn/signed"
	"go.dedis.ch/swarm/crypto/ed25519"
	"golang.org/x/xerrors"
)

func TestController_SetCommands(t *testing.T) {
	app := node.NewBuilder(NewController()).Build().(*urfave.App)

	require.Equal(t, "voting", app.Commands[0].Name)
	require.Len(t, app.Commands[0].Subcommands, 5)
}

func TestController_Scenario(t *testing.T) {
	dir := t.TempDir()
	flags := node.FlagSet{"config": dir}

	inj := node.NewInjector()

	cfg := node.DefaultConfig()
	cfg.DB.Path = filepath.Join(dir, "swarm.db")
	inj.Inject(cfg)

	mux := http.NewServeMux()
	inj.Inject(fakeProxy{mux: mux})

	host := ordctrl.NewController()
	require.NoError(t, host.OnStart(flags, inj))
	defer host.OnStop(inj)

	ctrl := NewController()
	require.NoError(t, ctrl.OnStart(flags, inj))
	defer ctrl.OnStop(inj)

	lst := ordctrl.NewListener()
	require.NoError(t, lst.OnStart(flags, inj))
	defer lst.OnStop(inj)

	require.FileExists(t, filepath.Join(dir, PrivateKeyFile))

	var srv voting.Service
	require.NoError(t, inj.Resolve(&srv))

	var mgr *signed.TransactionManager
	require.NoError(t, inj.Resolve(&mgr))

	wait := float64(10 * time.Second)

	out := new(bytes.Buffer)
	err := createAction{}.Execute(makeContext(inj, out, node.FlagSet{
		"subject": "aa",
		"drone":   "bb",
		"wait":    wait,
	}))
	require.NoError(t, err)
	require.Regexp(t, "^transaction [0-9a-f]+ accepted in block [0-9]+$", out.String())

	voteFlags := node.FlagSet{
		"subject":   "aa",
		"validator": "cc",
		"action":    float64(2),
		"decision":  "approve",
		"wait":      wait,
	}

	out.Reset()
	err = voteAction{}.Execute(makeContext(inj, out, voteFlags))
	require.NoError(t, err)
	require.Contains(t, out.String(), "accepted in block")

	out.Reset()
	err = voteAction{}.Execute(makeContext(inj, out, voteFlags))
	require.Error(t, err)
	require.Regexp(t, "^transaction [0-9a-f]+ refused: ", err.Error())

	out.Reset()
	err = getAction{}.Execute(makeContext(inj, out, node.FlagSet{"subject": "aa"}))
	require.NoError(t, err)

	var res types.VotingResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Equal(t, "aa", res.SubjectKey)
	require.Equal(t, "bb", res.DroneKey)
	require.Equal(t, uint64(1), res.ApprovalCount)
	require.Equal(t, uint64(2), res.HistoryLen)
	require.Len(t, res.Actions, 1)

	out.Reset()
	err = listAction{}.Execute(makeContext(inj, out, node.FlagSet{}))
	require.NoError(t, err)

	var list []types.VotingResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.Len(t, list, 1)

	out.Reset()
	err = infoAction{}.Execute(makeContext(inj, out, node.FlagSet{
		"subject": "aa",
		"height":  float64(-1),
		"verify":  true,
	}))
	require.NoError(t, err)
	require.Contains(t, out.String(), `"History"`)

	out.Reset()
	err = createAction{}.Execute(makeContext(inj, out, node.FlagSet{
		"subject": "dd",
		"drone":   "ee",
	}))
	require.NoError(t, err)
	require.Regexp(t, "^transaction [0-9a-f]+ submitted$", out.String())
}

func TestController_OnStart_Failures(t *testing.T) {
	ctrl := NewController()

	err := ctrl.OnStart(node.FlagSet{}, node.NewInjector())
	require.EqualError(t, err, "injector: couldn't find dependency for '*native.Service'")

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, PrivateKeyFile), 0700))

	inj := node.NewInjector()

	cfg := node.DefaultConfig()
	cfg.DB.Path = filepath.Join(dir, "swarm.db")
	inj.Inject(cfg)

	host := ordctrl.NewController()
	require.NoError(t, host.OnStart(node.FlagSet{}, inj))
	defer host.OnStop(inj)

	err = ctrl.OnStart(node.FlagSet{"config": dir}, inj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "signer: failed to load key: ")
}

func TestSignerGenerator_Generate(t *testing.T) {
	data, err := signerGenerator{}.Generate()
	require.NoError(t, err)

	_, err = ed25519.NewSignerFromBytes(data)
	require.NoError(t, err)
}

func TestCreateAction_Failures(t *testing.T) {
	inj := node.NewInjector()
	out := new(bytes.Buffer)

	err := createAction{}.Execute(makeContext(inj, out, node.FlagSet{}))
	require.EqualError(t, err, "missing flag 'subject'")

	err = createAction{}.Execute(makeContext(inj, out, node.FlagSet{"subject": "aa", "drone": "zz"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid 'drone': ")

	flags := node.FlagSet{"subject": "aa", "drone": "bb"}

	err = createAction{}.Execute(makeContext(inj, out, flags))
	require.EqualError(t, err, "injector: couldn't find dependency for 'controller.Service'")

	inj.Inject(&fakeService{})

	err = createAction{}.Execute(makeContext(inj, out, flags))
	require.EqualError(t, err, "injector: couldn't find dependency for 'txn.Manager'")

	inj = node.NewInjector()
	inj.Inject(&fakeService{})
	inj.Inject(signed.NewManager(ed25519.NewSigner(), fakeNonces{err: xerrors.New("oops")}))

	err = createAction{}.Execute(makeContext(inj, out, flags))
	require.EqualError(t, err, "failed to sync manager: client: oops")

	inj = node.NewInjector()
	inj.Inject(&fakeService{err: xerrors.New("oops")})
	inj.Inject(signed.NewManager(ed25519.NewSigner(), fakeNonces{}))

	err = createAction{}.Execute(makeContext(inj, out, flags))
	require.EqualError(t, err, "failed to submit tx: oops")

	inj = node.NewInjector()
	inj.Inject(&fakeService{})
	inj.Inject(signed.NewManager(ed25519.NewSigner(), fakeNonces{}))

	flags["wait"] = float64(time.Second)

	err = createAction{}.Execute(makeContext(inj, out, flags))
	require.EqualError(t, err, "injector: couldn't find dependency for 'ordering.Service'")
}

func TestCreateAction_Submit(t *testing.T) {
	srv := &fakeService{}

	inj := node.NewInjector()
	inj.Inject(srv)
	inj.Inject(signed.NewManager(ed25519.NewSigner(), fakeNonces{nonce: 3}))

	out := new(bytes.Buffer)

	err := createAction{}.Execute(makeContext(inj, out, node.FlagSet{"subject": "aa", "drone": "bb"}))
	require.NoError(t, err)
	require.Len(t, srv.txs, 1)

	tx := srv.txs[0]
	require.Equal(t, uint64(3), tx.GetNonce())
	require.Equal(t, voting.ContractName, string(tx.GetArg("go.dedis.ch/swarm.ContractArg")))
	require.Equal(t, []byte(types.CmdCreateVoting), tx.GetArg(types.CmdArg))
	require.Equal(t, []byte{0xbb}, tx.GetArg(types.DroneArg))
}

func TestVoteAction_Failures(t *testing.T) {
	inj := node.NewInjector()
	out := new(bytes.Buffer)

	err := voteAction{}.Execute(makeContext(inj, out, node.FlagSet{"subject": "aa"}))
	require.EqualError(t, err, "missing flag 'validator'")

	flags := node.FlagSet{
		"subject":   "aa",
		"validator": "cc",
		"decision":  "maybe",
	}

	err = voteAction{}.Execute(makeContext(inj, out, flags))
	require.EqualError(t, err, "invalid decision 'maybe'")

	flags["decision"] = "reject"
	flags["action"] = float64(-1)

	err = voteAction{}.Execute(makeContext(inj, out, flags))
	require.EqualError(t, err, "invalid action -1")
}

func TestVoteAction_Submit(t *testing.T) {
	srv := &fakeService{}

	inj := node.NewInjector()
	inj.Inject(srv)
	inj.Inject(signed.NewManager(ed25519.NewSigner(), fakeNonces{}))

	flags := node.FlagSet{
		"subject":   "aa",
		"validator": "cc",
		"decision":  "reject",
		"action":    float64(4),
		"seed":      float64(9),
	}

	err := voteAction{}.Execute(makeContext(inj, new(bytes.Buffer), flags))
	require.NoError(t, err)
	require.Len(t, srv.txs, 1)

	cmd, err := types.CommandOf(srv.txs[0])
	require.NoError(t, err)
	require.Equal(t, types.CastVote{
		ActionID:     4,
		SubjectKey:   []byte{0xaa},
		ValidatorKey: []byte{0xcc},
		Decision:     false,
		Seed:         9,
	}, cmd)
}

func TestGetAction_Execute(t *testing.T) {
	srv := &fakeService{
		votings: map[string]types.Voting{
			"aa": types.NewVoting([]byte{0xaa}, []byte{0xbb}),
		},
	}

	inj := node.NewInjector()
	out := new(bytes.Buffer)

	err := getAction{}.Execute(makeContext(inj, out, node.FlagSet{"subject": "aa"}))
	require.EqualError(t, err, "injector: couldn't find dependency for 'controller.Service'")

	inj.Inject(srv)

	err = getAction{}.Execute(makeContext(inj, out, node.FlagSet{"subject": "aa"}))
	require.NoError(t, err)
	require.Contains(t, out.String(), `"drone": "bb"`)

	err = getAction{}.Execute(makeContext(inj, out, node.FlagSet{"subject": "ff"}))
	require.EqualError(t, err, "failed to get voting: voting not found")

	err = getAction{}.Execute(makeContext(inj, out, node.FlagSet{}))
	require.EqualError(t, err, "missing flag 'subject'")
}

func TestListAction_Execute(t *testing.T) {
	srv := &fakeService{
		votings: map[string]types.Voting{
			"aa": types.NewVoting([]byte{0xaa}, []byte{0xbb}),
		},
	}

	inj := node.NewInjector()
	out := new(bytes.Buffer)

	err := listAction{}.Execute(makeContext(inj, out, node.FlagSet{}))
	require.EqualError(t, err, "injector: couldn't find dependency for 'controller.Service'")

	inj.Inject(srv)

	err = listAction{}.Execute(makeContext(inj, out, node.FlagSet{}))
	require.NoError(t, err)
	require.Contains(t, out.String(), `"pub_key": "aa"`)

	srv.err = xerrors.New("oops")

	err = listAction{}.Execute(makeContext(inj, out, node.FlagSet{}))
	require.EqualError(t, err, "failed to list votings: oops")
}

func TestInfoAction_Execute(t *testing.T) {
	srv := &fakeService{proof: makeProof(t, []byte{0xaa})}

	inj := node.NewInjector()
	inj.Inject(srv)

	out := new(bytes.Buffer)

	err := infoAction{}.Execute(makeContext(inj, out, node.FlagSet{
		"subject": "aa",
		"height":  float64(5),
	}))
	require.NoError(t, err)
	require.Equal(t, uint64(5), srv.height)
	require.Contains(t, out.String(), `"Header"`)

	err = infoAction{}.Execute(makeContext(inj, out, node.FlagSet{
		"subject": "aa",
		"height":  float64(-1),
		"verify":  true,
	}))
	require.EqualError(t, err, "injector: couldn't find dependency for 'ordering.Service'")

	srv.err = xerrors.New("oops")

	err = infoAction{}.Execute(makeContext(inj, out, node.FlagSet{
		"subject": "aa",
		"height":  float64(-1),
	}))
	require.EqualError(t, err, "failed to get proof: oops")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeContext(inj node.Injector, out *bytes.Buffer, flags node.FlagSet) node.Context {
	return node.Context{
		Injector: inj,
		Flags:    flags,
		Out:      out,
	}
}
