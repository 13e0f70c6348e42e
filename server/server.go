package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"hyc/hyc-node/disburse"
	"hyc/hyc-node/fieldhash"
	"hyc/hyc-node/logging"
	"hyc/hyc-node/pool"
	"hyc/hyc-node/prover"
)

const maxBodyBytes = 1 << 20

type Config struct {
	Address        string
	MetricsAddress string
	APIKey         string
	CORSOrigins    []string
}

// Backend is what the HTTP layer serves. ProofSystem and Transfers are optional.
type Backend struct {
	Pool        *pool.Pool
	ProofSystem *prover.WithdrawProofSystem
	Transfers   *disburse.TransferQueue
}

func readJSON(r *http.Request, v interface{}) error {
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

func parseFields(values map[string]string) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(values))
	for name, s := range values {
		v, err := fieldhash.ParseField(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func refreshGauges(ctx context.Context, p *pool.Pool) {
	commitments, whitelist := p.Leaves()
	TreeLeaves.WithLabelValues("commitments").Set(float64(commitments))
	TreeLeaves.WithLabelValues("whitelist").Set(float64(whitelist))
	if n, err := p.NullifierCount(ctx); err == nil {
		NullifiersSpent.Set(float64(n))
	}
}

type withdrawBody struct {
	Root          string          `json:"root"`
	NullifierHash string          `json:"nullifierHash"`
	Recipient     string          `json:"recipient"`
	Relayer       string          `json:"relayer"`
	Fee           string          `json:"fee"`
	Refund        string          `json:"refund"`
	WhitelistRoot string          `json:"whitelistRoot"`
	Proof         json.RawMessage `json:"proof"`
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// request only rejects bodies that do not parse as numbers. Out-of-field values and proofs
// that fail to decode go through to the pool, which rejects them in its own check order.
func (b *withdrawBody) request() (*pool.WithdrawRequest, error) {
	values := map[string]string{
		"root":          b.Root,
		"nullifierHash": b.NullifierHash,
		"fee":           orZero(b.Fee),
		"refund":        orZero(b.Refund),
		"whitelistRoot": b.WhitelistRoot,
	}
	fields := make(map[string]*big.Int, len(values))
	for name, s := range values {
		v, err := fieldhash.ParseUint(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		fields[name] = v
	}
	req := &pool.WithdrawRequest{Recipient: b.Recipient, Relayer: b.Relayer, Proof: decodeProof(b.Proof)}
	req.Root.Set(fields["root"])
	req.NullifierHash.Set(fields["nullifierHash"])
	req.Fee.Set(fields["fee"])
	req.Refund.Set(fields["refund"])
	req.WhitelistRoot.Set(fields["whitelistRoot"])
	return req, nil
}

// decodeProof returns nil for a missing or undecodable proof; the verifier rejects nil.
func decodeProof(raw json.RawMessage) *prover.Proof {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var proof prover.Proof
	if err := json.Unmarshal(raw, &proof); err != nil {
		logging.Logger().Debug().Err(err).Msg("Withdrawal proof does not decode")
		return nil
	}
	return &proof
}

func transfersJSON(transfers []disburse.Transfer) []disburse.Transfer {
	if transfers == nil {
		return []disburse.Transfer{}
	}
	return transfers
}

type withdrawHandler struct {
	backend *Backend
}

func (handler withdrawHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	timer := StartTimer("withdraw")

	var body withdrawBody
	if err := readJSON(r, &body); err != nil {
		timer.ObserveError("malformed_body")
		malformedBodyError(err).send(w)
		return
	}
	req, err := body.request()
	if err != nil {
		timer.ObserveError("malformed_body")
		malformedBodyError(err).send(w)
		return
	}

	receipt, err := handler.backend.Pool.Withdraw(r.Context(), req)
	defer refreshGauges(r.Context(), handler.backend.Pool)
	if err != nil && receipt == nil {
		e := poolError(err)
		timer.ObserveError(e.Code)
		e.send(w)
		return
	}

	response := map[string]interface{}{
		"nullifierHash":  fieldhash.ToHex(&receipt.NullifierHash),
		"nullifierCount": receipt.NullifierCount,
		"transfers":      transfersJSON(receipt.Transfers),
		"status":         "disbursed",
	}
	if err != nil {
		// Committed: the nullifier is spent whatever happened to the transfers.
		timer.ObserveError("disbursement_failed")
		response["status"] = "committed"
		response["error"] = err.Error()
		sendJSON(w, http.StatusAccepted, response)
		return
	}
	timer.ObserveDuration()
	sendJSON(w, http.StatusOK, response)
}

type depositBody struct {
	Sender     string `json:"sender"`
	Commitment string `json:"commitment"`
	Amount     string `json:"amount"`
}

type depositHandler struct {
	backend *Backend
}

func (handler depositHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	timer := StartTimer("deposit")

	var body depositBody
	if err := readJSON(r, &body); err != nil {
		timer.ObserveError("malformed_body")
		malformedBodyError(err).send(w)
		return
	}
	req := &pool.DepositRequest{Sender: body.Sender}
	commitment, err := fieldhash.ParseField(body.Commitment)
	if err != nil {
		timer.ObserveError("malformed_body")
		malformedBodyError(fmt.Errorf("commitment: %w", err)).send(w)
		return
	}
	if _, ok := req.Amount.SetString(body.Amount, 0); !ok {
		timer.ObserveError("malformed_body")
		malformedBodyError(fmt.Errorf("invalid amount %q", body.Amount)).send(w)
		return
	}
	req.Commitment.Set(commitment)

	receipt, err := handler.backend.Pool.Deposit(r.Context(), req)
	defer refreshGauges(r.Context(), handler.backend.Pool)
	if err != nil && receipt == nil {
		e := poolError(err)
		timer.ObserveError(e.Code)
		e.send(w)
		return
	}
	response := map[string]interface{}{
		"leafIndex": receipt.LeafIndex,
		"root":      fieldhash.ToHex(&receipt.Root),
		"transfers": transfersJSON(receipt.Transfers),
	}
	if err != nil {
		timer.ObserveError("disbursement_failed")
		response["error"] = err.Error()
		sendJSON(w, http.StatusAccepted, response)
		return
	}
	timer.ObserveDuration()
	sendJSON(w, http.StatusOK, response)
}

type configHandler struct {
	backend *Backend
}

func (handler configHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	commitments, whitelist := handler.backend.Pool.TreeParams()
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"settings": handler.backend.Pool.Settings(),
		"commitments": map[string]interface{}{
			"height":     commitments.Height,
			"rootWindow": commitments.RootWindow,
			"zeroValue":  fieldhash.ToHex(&commitments.ZeroValue),
		},
		"whitelist": map[string]interface{}{
			"height":     whitelist.Height,
			"rootWindow": whitelist.RootWindow,
			"zeroValue":  fieldhash.ToHex(&whitelist.ZeroValue),
		},
	})
}

func hexRoots(roots []big.Int) []string {
	out := make([]string, len(roots))
	for i := range roots {
		out[i] = fieldhash.ToHex(&roots[i])
	}
	return out
}

type rootsHandler struct {
	backend *Backend
}

func (handler rootsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := handler.backend.Pool
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"commitmentsRoot":  fieldhash.ToHex(p.CommitmentsRoot()),
		"whitelistRoot":    fieldhash.ToHex(p.WhitelistRoot()),
		"commitmentsRoots": hexRoots(p.CommitmentRoots()),
		"whitelistRoots":   hexRoots(p.WhitelistRoots()),
	})
}

type leavesHandler struct {
	backend *Backend
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

const maxLeavesPerPage = 1 << 16

func (handler leavesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	from, err := queryUint(r, "from", 0)
	if err != nil {
		malformedBodyError(err).send(w)
		return
	}
	to, err := queryUint(r, "to", from+maxLeavesPerPage)
	if err != nil {
		malformedBodyError(err).send(w)
		return
	}
	if to > from+maxLeavesPerPage {
		to = from + maxLeavesPerPage
	}

	var leaves []big.Int
	switch tree := r.URL.Query().Get("tree"); tree {
	case "", "commitments":
		leaves, err = handler.backend.Pool.CommitmentLeaves(r.Context(), from, to)
	case "whitelist":
		leaves, err = handler.backend.Pool.WhitelistLeaves(r.Context(), from, to)
	default:
		malformedBodyError(fmt.Errorf("unknown tree %q", tree)).send(w)
		return
	}
	if err != nil {
		unexpectedError(err).send(w)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"from": from, "leaves": hexRoots(leaves)})
}

type whitelistStatusHandler struct {
	backend *Backend
}

func (handler whitelistStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	account := r.URL.Query().Get("account")
	ok, err := handler.backend.Pool.IsInWhitelist(r.Context(), account)
	if err != nil {
		malformedBodyError(err).send(w)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"account": account, "whitelisted": ok})
}

type nullifierHandler struct {
	backend *Backend
}

func (handler nullifierHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h, err := fieldhash.ParseField(r.URL.Query().Get("hash"))
	if err != nil {
		malformedBodyError(err).send(w)
		return
	}
	spent, err := handler.backend.Pool.WasNullifierSpent(r.Context(), h)
	if err != nil {
		unexpectedError(err).send(w)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"nullifierHash": fieldhash.ToHex(h), "spent": spent})
}

type hashHandler struct{}

func (handler hashHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	switch {
	case q.Get("account") != "":
		h, err := fieldhash.AccountHash(q.Get("account"))
		if err != nil {
			malformedBodyError(err).send(w)
			return
		}
		sendJSON(w, http.StatusOK, map[string]string{"accountHash": fieldhash.ToHex(h)})
	case q.Get("nullifier") != "":
		n, err := fieldhash.ParseField(q.Get("nullifier"))
		if err != nil {
			malformedBodyError(err).send(w)
			return
		}
		sendJSON(w, http.StatusOK, map[string]string{"nullifierHash": fieldhash.ToHex(fieldhash.NullifierHash(n))})
	default:
		malformedBodyError(errors.New("account or nullifier parameter required")).send(w)
	}
}

type adminBody struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Action  string `json:"action"`
	Owner   string `json:"owner"`
	Enabled *bool  `json:"enabled"`
}

type adminHandler struct {
	backend *Backend
	action  func(ctx context.Context, p *pool.Pool, body *adminBody) error
	name    string
}

func (handler adminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	timer := StartTimer(handler.name)
	var body adminBody
	if err := readJSON(r, &body); err != nil {
		timer.ObserveError("malformed_body")
		malformedBodyError(err).send(w)
		return
	}
	if err := handler.action(r.Context(), handler.backend.Pool, &body); err != nil {
		e := poolError(err)
		timer.ObserveError(e.Code)
		e.send(w)
		return
	}
	timer.ObserveDuration()
	refreshGauges(r.Context(), handler.backend.Pool)
	sendJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "settings": handler.backend.Pool.Settings()})
}

func whitelistAction(ctx context.Context, p *pool.Pool, body *adminBody) error {
	switch body.Action {
	case "", "allow":
		return p.AddToWhitelist(ctx, body.Caller, body.Account)
	case "deny":
		return p.Deny(ctx, body.Caller, body.Account)
	default:
		return malformedAction(body.Action)
	}
}

func ownerAction(ctx context.Context, p *pool.Pool, body *adminBody) error {
	return p.TransferOwnership(ctx, body.Caller, body.Owner)
}

func killSwitchAction(ctx context.Context, p *pool.Pool, body *adminBody) error {
	if body.Enabled == nil {
		return malformedAction("enabled is required")
	}
	return p.SetKillSwitch(ctx, body.Caller, *body.Enabled)
}

type malformedAction string

func (m malformedAction) Error() string { return "invalid admin request: " + string(m) }

type failedTransfersHandler struct {
	backend *Backend
}

func (handler failedTransfersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	failed, err := handler.backend.Transfers.Failed(r.Context())
	if err != nil {
		unexpectedError(err).send(w)
		return
	}
	pending, err := handler.backend.Transfers.Pending(r.Context())
	if err != nil {
		unexpectedError(err).send(w)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"pending": pending, "failed": failed})
}

type healthHandler struct{}

func (handler healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	logging.Logger().Debug().Msg("received health check request")
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewHandler builds the API mux with auth and CORS applied.
func NewHandler(config *Config, backend *Backend) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler{})
	mux.Handle("/withdraw", withdrawHandler{backend: backend})
	mux.Handle("/deposit", depositHandler{backend: backend})
	mux.Handle("/config", configHandler{backend: backend})
	mux.Handle("/roots", rootsHandler{backend: backend})
	mux.Handle("/leaves", leavesHandler{backend: backend})
	mux.Handle("/whitelist", whitelistStatusHandler{backend: backend})
	mux.Handle("/nullifier", nullifierHandler{backend: backend})
	mux.Handle("/hash", hashHandler{})
	mux.Handle("/admin/whitelist", adminHandler{backend: backend, action: whitelistAction, name: "whitelist"})
	mux.Handle("/admin/owner", adminHandler{backend: backend, action: ownerAction, name: "owner"})
	mux.Handle("/admin/kill-switch", adminHandler{backend: backend, action: killSwitchAction, name: "kill_switch"})
	if backend.ProofSystem != nil {
		mux.Handle("/prove", proveHandler{backend: backend})
	}
	if backend.Transfers != nil {
		mux.Handle("/transfers", failedTransfersHandler{backend: backend})
	}

	origins := config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := handlers.CORS(
		handlers.AllowedHeaders([]string{
			"X-Requested-With",
			"Content-Type",
			"Authorization",
			"X-API-Key",
		}),
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
	)
	return corsHandler(conditionalAuthMiddleware(config.APIKey)(mux))
}

func Run(config *Config, backend *Backend) RunningJob {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: config.MetricsAddress, Handler: metricsMux}
	metricsJob := spawnServerJob(metricsServer, "metrics server")
	logging.Logger().Info().Str("addr", config.MetricsAddress).Msg("metrics server started")

	refreshGauges(context.Background(), backend.Pool)
	apiServer := &http.Server{Addr: config.Address, Handler: NewHandler(config, backend)}
	apiJob := spawnServerJob(apiServer, "pool server")
	logging.Logger().Info().
		Str("addr", config.Address).
		Bool("auth", config.APIKey != "").
		Bool("prover", backend.ProofSystem != nil).
		Bool("transfer_queue", backend.Transfers != nil).
		Msg("pool server started")

	return CombineJobs(metricsJob, apiJob)
}

func spawnServerJob(server *http.Server, label string) RunningJob {
	start := func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("%s failed: %s", label, err))
		}
	}
	shutdown := func() {
		logging.Logger().Info().Msgf("shutting down %s", label)
		err := server.Shutdown(context.Background())
		if err != nil {
			logging.Logger().Error().Err(err).Msgf("error when shutting down %s", label)
		}
		logging.Logger().Info().Msgf("%s shut down", label)
	}
	return SpawnJob(start, shutdown)
}
