package types

import "encoding/hex"

// VoteActionResponse is the HTTP representation of a vote.
type VoteActionResponse struct {
	ActionID     uint64 `json:"action_id"`
	ValidatorKey string `json:"validator"`
	Decision     bool   `json:"voting_status"`
}

// VotingResponse is the HTTP representation of a voting. The keys and the
// root are hex encoded.
type VotingResponse struct {
	SubjectKey    string               `json:"pub_key"`
	DroneKey      string               `json:"drone"`
	Actions       []VoteActionResponse `json:"actions"`
	ApprovalCount uint64               `json:"amount"`
	HistoryLen    uint64               `json:"history_len"`
	HistoryRoot   string               `json:"history_hash"`
}

// NewVotingResponse returns the HTTP representation of the voting.
func NewVotingResponse(v Voting) VotingResponse {
	actions := make([]VoteActionResponse, len(v.actions))
	for i, action := range v.actions {
		actions[i] = VoteActionResponse{
			ActionID:     action.ActionID,
			ValidatorKey: hex.EncodeToString(action.ValidatorKey),
			Decision:     action.Decision,
		}
	}

	return VotingResponse{
		SubjectKey:    hex.EncodeToString(v.subjectKey),
		DroneKey:      hex.EncodeToString(v.droneKey),
		Actions:       actions,
		ApprovalCount: v.approvalCount,
		HistoryLen:    v.historyLen,
		HistoryRoot:   hex.EncodeToString(v.historyRoot),
	}
}

// TransactionResponse is the HTTP response of a submitted transaction.
type TransactionResponse struct {
	TxHash string `json:"tx_hash"`
}

// NonceResponse is the HTTP response of a nonce request.
type NonceResponse struct {
	Nonce uint64 `json:"nonce"`
}

// ErrorResponse is the HTTP response of a failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}
