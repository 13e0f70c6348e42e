package prover

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"hyc/hyc-node/fieldhash"
	merkle_tree "hyc/hyc-node/merkle-tree"
)

// Note is the depositor's private receipt. Losing it loses the deposit.
type Note struct {
	Secret    string `json:"secret"`
	Nullifier string `json:"nullifier"`
	Account   string `json:"account"`
}

func NewNote(account string) (*Note, error) {
	var secret, nullifier fr.Element
	if _, err := secret.SetRandom(); err != nil {
		return nil, err
	}
	if _, err := nullifier.SetRandom(); err != nil {
		return nil, err
	}
	return &Note{
		Secret:    ToHex(secret.BigInt(new(big.Int))),
		Nullifier: ToHex(nullifier.BigInt(new(big.Int))),
		Account:   account,
	}, nil
}

func (n *Note) values() (secret, nullifier, accountHash *big.Int, err error) {
	secret, nullifier = new(big.Int), new(big.Int)
	if err = FromHex(secret, n.Secret); err != nil {
		return nil, nil, nil, fmt.Errorf("note secret: %w", err)
	}
	if err = FromHex(nullifier, n.Nullifier); err != nil {
		return nil, nil, nil, fmt.Errorf("note nullifier: %w", err)
	}
	accountHash, err = fieldhash.AccountHash(n.Account)
	return secret, nullifier, accountHash, err
}

func (n *Note) Commitment() (*big.Int, error) {
	secret, nullifier, accountHash, err := n.values()
	if err != nil {
		return nil, err
	}
	return fieldhash.Commitment(secret, nullifier, accountHash), nil
}

func (n *Note) NullifierHash() (*big.Int, error) {
	_, nullifier, _, err := n.values()
	if err != nil {
		return nil, err
	}
	return fieldhash.NullifierHash(nullifier), nil
}

// TreeSnapshot is a leaf log plus the parameters needed to rebuild the tree from it.
type TreeSnapshot struct {
	Height    uint32
	ZeroValue big.Int
	Leaves    []big.Int
}

func (s *TreeSnapshot) pathFor(leaf *big.Int) (uint64, []big.Int, *big.Int, error) {
	index := -1
	for i := range s.Leaves {
		if s.Leaves[i].Cmp(leaf) == 0 {
			index = i
			break
		}
	}
	if index < 0 {
		return 0, nil, nil, fmt.Errorf("leaf %s not found among %d leaves", ToHex(leaf), len(s.Leaves))
	}
	tree, err := merkle_tree.BuildTree(int(s.Height), &s.ZeroValue, s.Leaves)
	if err != nil {
		return 0, nil, nil, err
	}
	root := tree.RootValue()
	return uint64(index), tree.GetProofByIndex(index), &root, nil
}

type WithdrawRequest struct {
	Note        Note
	Recipient   string
	Relayer     string
	Fee         big.Int
	Refund      big.Int
	Commitments TreeSnapshot
	Whitelist   TreeSnapshot
}

// BuildWithdrawParameters derives the full witness for a withdrawal against the latest
// roots of both snapshots.
func BuildWithdrawParameters(req *WithdrawRequest) (*WithdrawParameters, error) {
	secret, nullifier, accountHash, err := req.Note.values()
	if err != nil {
		return nil, err
	}
	commitment := fieldhash.Commitment(secret, nullifier, accountHash)

	pathIndex, path, root, err := req.Commitments.pathFor(commitment)
	if err != nil {
		return nil, fmt.Errorf("commitment tree: %w", err)
	}
	wlIndex, wlPath, wlRoot, err := req.Whitelist.pathFor(accountHash)
	if err != nil {
		return nil, fmt.Errorf("whitelist tree: %w", err)
	}
	recipientHash, err := fieldhash.AccountHash(req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	relayerHash, err := fieldhash.AccountHash(req.Relayer)
	if err != nil {
		return nil, fmt.Errorf("relayer: %w", err)
	}

	params := &WithdrawParameters{
		PathIndex:             pathIndex,
		PathElements:          path,
		WhitelistPathIndex:    wlIndex,
		WhitelistPathElements: wlPath,
	}
	params.Root.Set(root)
	params.NullifierHash.Set(fieldhash.NullifierHash(nullifier))
	params.Recipient.Set(recipientHash)
	params.Relayer.Set(relayerHash)
	params.Fee.Set(&req.Fee)
	params.Refund.Set(&req.Refund)
	params.WhitelistRoot.Set(wlRoot)
	params.Secret.Set(secret)
	params.Nullifier.Set(nullifier)
	params.AccountHash.Set(accountHash)
	return params, nil
}
