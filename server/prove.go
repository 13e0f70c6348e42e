package server

import (
	"context"
	"net/http"

	"hyc/hyc-node/fieldhash"
	"hyc/hyc-node/logging"
	"hyc/hyc-node/pool"
	"hyc/hyc-node/prover"
)

type proveBody struct {
	Note      prover.Note `json:"note"`
	Recipient string      `json:"recipient"`
	Relayer   string      `json:"relayer"`
	Fee       string      `json:"fee"`
	Refund    string      `json:"refund"`
}

// Snapshot reads both trees' leaves from the pool for witness generation.
func Snapshot(ctx context.Context, p *pool.Pool) (commitments, whitelist prover.TreeSnapshot, err error) {
	commitmentParams, whitelistParams := p.TreeParams()
	commitmentCount, whitelistCount := p.Leaves()

	commitments = prover.TreeSnapshot{Height: commitmentParams.Height}
	commitments.ZeroValue.Set(&commitmentParams.ZeroValue)
	if commitments.Leaves, err = p.CommitmentLeaves(ctx, 0, commitmentCount); err != nil {
		return
	}
	whitelist = prover.TreeSnapshot{Height: whitelistParams.Height}
	whitelist.ZeroValue.Set(&whitelistParams.ZeroValue)
	whitelist.Leaves, err = p.WhitelistLeaves(ctx, 0, whitelistCount)
	return
}

// proveHandler generates a withdrawal proof for a note against the pool's current trees.
// It is meant for relayers running next to the node; the note never leaves the request.
type proveHandler struct {
	backend *Backend
}

func (handler proveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	timer := StartTimer("prove")

	var body proveBody
	if err := readJSON(r, &body); err != nil {
		timer.ObserveError("malformed_body")
		malformedBodyError(err).send(w)
		return
	}
	req := &prover.WithdrawRequest{Note: body.Note, Recipient: body.Recipient, Relayer: body.Relayer}
	fields, err := parseFields(map[string]string{"fee": orZero(body.Fee), "refund": orZero(body.Refund)})
	if err != nil {
		timer.ObserveError("malformed_body")
		malformedBodyError(err).send(w)
		return
	}
	req.Fee.Set(fields["fee"])
	req.Refund.Set(fields["refund"])

	req.Commitments, req.Whitelist, err = Snapshot(r.Context(), handler.backend.Pool)
	if err != nil {
		timer.ObserveError("unexpected_error")
		unexpectedError(err).send(w)
		return
	}
	params, err := prover.BuildWithdrawParameters(req)
	if err != nil {
		timer.ObserveError("proving_error")
		provingError(err).send(w)
		return
	}
	proof, err := prover.ProveWithdraw(handler.backend.ProofSystem, params)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("withdraw proving failed")
		timer.ObserveError("proving_error")
		provingError(err).send(w)
		return
	}
	timer.ObserveDuration()

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"root":          fieldhash.ToHex(&params.Root),
		"nullifierHash": fieldhash.ToHex(&params.NullifierHash),
		"recipient":     body.Recipient,
		"relayer":       body.Relayer,
		"fee":           fieldhash.ToHex(&params.Fee),
		"refund":        fieldhash.ToHex(&params.Refund),
		"whitelistRoot": fieldhash.ToHex(&params.WhitelistRoot),
		"proof":         proof,
	})
}
