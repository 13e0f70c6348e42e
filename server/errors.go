package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"hyc/hyc-node/logging"
	merkle_tree "hyc/hyc-node/merkle-tree"
	"hyc/hyc-node/pool"
)

type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func malformedBodyError(err error) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "malformed_body", Message: err.Error()}
}

func provingError(err error) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "proving_error", Message: err.Error()}
}

func unexpectedError(err error) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: "unexpected_error", Message: err.Error()}
}

func notFoundError(message string) *Error {
	return &Error{StatusCode: http.StatusNotFound, Code: "not_found", Message: message}
}

var poolErrorCodes = []struct {
	err    error
	status int
	code   string
}{
	{pool.ErrFeeExceedsDeposit, http.StatusBadRequest, "fee_exceeds_deposit"},
	{pool.ErrNullifierAlreadySpent, http.StatusConflict, "nullifier_already_spent"},
	{pool.ErrUnknownCommitmentRoot, http.StatusBadRequest, "unknown_commitment_root"},
	{pool.ErrUnknownWhitelistRoot, http.StatusBadRequest, "unknown_whitelist_root"},
	{pool.ErrInvalidProof, http.StatusBadRequest, "invalid_proof"},
	{pool.ErrKillSwitchActive, http.StatusServiceUnavailable, "kill_switch_active"},
	{pool.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{pool.ErrDuplicateCommitment, http.StatusConflict, "duplicate_commitment"},
	{pool.ErrInvalidCommitment, http.StatusBadRequest, "invalid_commitment"},
	{pool.ErrWrongDepositAmount, http.StatusBadRequest, "wrong_deposit_amount"},
	{pool.ErrInvalidAccount, http.StatusBadRequest, "invalid_account"},
	{pool.ErrRiskTooHigh, http.StatusForbidden, "risk_too_high"},
	{pool.ErrDisbursementFailed, http.StatusBadGateway, "disbursement_failed"},
	{merkle_tree.ErrCapacityExceeded, http.StatusInsufficientStorage, "capacity_exceeded"},
	{merkle_tree.ErrAlreadyWhitelisted, http.StatusConflict, "already_whitelisted"},
	{merkle_tree.ErrNotWhitelisted, http.StatusNotFound, "not_whitelisted"},
}

// poolError maps a pool rejection to its HTTP form. Unknown errors are 500s.
func poolError(err error) *Error {
	var malformed malformedAction
	if errors.As(err, &malformed) {
		return malformedBodyError(err)
	}
	for _, e := range poolErrorCodes {
		if errors.Is(err, e.err) {
			return &Error{StatusCode: e.status, Code: e.code, Message: err.Error()}
		}
	}
	return unexpectedError(err)
}

func (error *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"code":    error.Code,
		"message": error.Message,
	})
}

func (error *Error) send(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(error.StatusCode)
	jsonBytes, err := error.MarshalJSON()
	if err != nil {
		jsonBytes = []byte(`{"code": "unexpected_error", "message": "failed to marshal error"}`)
	}
	length, err := w.Write(jsonBytes)
	if err != nil || length != len(jsonBytes) {
		logging.Logger().Error().Err(err).Msg("error writing response")
	}
}

func sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Logger().Error().Err(err).Msg("error writing response")
	}
}
