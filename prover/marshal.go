package prover

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
)

func FromHex(i *big.Int, s string) error {
	s = strings.TrimPrefix(s, "0x")
	_, ok := i.SetString(s, 16)
	if !ok {
		return fmt.Errorf("invalid number: %s", s)
	}
	return nil
}

func ToHex(i *big.Int) string {
	return fmt.Sprintf("0x%064x", i)
}

type ProofJSON struct {
	Ar  [2]string    `json:"ar"`
	Bs  [2][2]string `json:"bs"`
	Krs [2]string    `json:"krs"`
}

const fpSize = 32

func (p *Proof) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	_, err := p.Proof.WriteRawTo(&buf)
	if err != nil {
		return nil, err
	}
	proofBytes := buf.Bytes()
	if len(proofBytes) < 8*fpSize {
		return nil, fmt.Errorf("short proof encoding: %d bytes", len(proofBytes))
	}
	var hexNumbers [8]string
	for i := 0; i < 8; i++ {
		hexNumbers[i] = ToHex(new(big.Int).SetBytes(proofBytes[i*fpSize : (i+1)*fpSize]))
	}
	return json.Marshal(ProofJSON{
		Ar:  [2]string{hexNumbers[0], hexNumbers[1]},
		Bs:  [2][2]string{{hexNumbers[2], hexNumbers[3]}, {hexNumbers[4], hexNumbers[5]}},
		Krs: [2]string{hexNumbers[6], hexNumbers[7]},
	})
}

func (p *Proof) UnmarshalJSON(data []byte) error {
	var proofJson ProofJSON
	if err := json.Unmarshal(data, &proofJson); err != nil {
		return err
	}
	hexNumbers := [8]string{
		proofJson.Ar[0], proofJson.Ar[1],
		proofJson.Bs[0][0], proofJson.Bs[0][1],
		proofJson.Bs[1][0], proofJson.Bs[1][1],
		proofJson.Krs[0], proofJson.Krs[1],
	}
	proofBytes := make([]byte, 8*fpSize)
	for i := 0; i < 8; i++ {
		var v big.Int
		if err := FromHex(&v, hexNumbers[i]); err != nil {
			return err
		}
		b := v.Bytes()
		if len(b) > fpSize {
			return fmt.Errorf("proof coordinate %d exceeds %d bytes", i, fpSize)
		}
		copy(proofBytes[(i+1)*fpSize-len(b):(i+1)*fpSize], b)
	}

	// WriteRawTo appends the (empty) commitment section after the 256 point bytes.
	var tempBuf bytes.Buffer
	if _, err := groth16.NewProof(ecc.BN254).WriteRawTo(&tempBuf); err != nil {
		return err
	}
	if tempBuf.Len() > len(proofBytes) {
		proofBytes = append(proofBytes, make([]byte, tempBuf.Len()-len(proofBytes))...)
	}

	p.Proof = groth16.NewProof(ecc.BN254)
	_, err := p.Proof.ReadFrom(bytes.NewReader(proofBytes))
	return err
}

type withdrawParametersJSON struct {
	Root                  string   `json:"root"`
	NullifierHash         string   `json:"nullifierHash"`
	Recipient             string   `json:"recipientHash"`
	Relayer               string   `json:"relayerHash"`
	Fee                   string   `json:"fee"`
	Refund                string   `json:"refund"`
	WhitelistRoot         string   `json:"whitelistRoot"`
	Secret                string   `json:"secret"`
	Nullifier             string   `json:"nullifier"`
	AccountHash           string   `json:"accountHash"`
	PathIndex             uint64   `json:"pathIndex"`
	PathElements          []string `json:"pathElements"`
	WhitelistPathIndex    uint64   `json:"whitelistPathIndex"`
	WhitelistPathElements []string `json:"whitelistPathElements"`
}

func hexList(values []big.Int) []string {
	out := make([]string, len(values))
	for i := range values {
		out[i] = ToHex(&values[i])
	}
	return out
}

func fromHexList(values []string) ([]big.Int, error) {
	out := make([]big.Int, len(values))
	for i, s := range values {
		if err := FromHex(&out[i], s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *WithdrawParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(withdrawParametersJSON{
		Root:                  ToHex(&p.Root),
		NullifierHash:         ToHex(&p.NullifierHash),
		Recipient:             ToHex(&p.Recipient),
		Relayer:               ToHex(&p.Relayer),
		Fee:                   ToHex(&p.Fee),
		Refund:                ToHex(&p.Refund),
		WhitelistRoot:         ToHex(&p.WhitelistRoot),
		Secret:                ToHex(&p.Secret),
		Nullifier:             ToHex(&p.Nullifier),
		AccountHash:           ToHex(&p.AccountHash),
		PathIndex:             p.PathIndex,
		PathElements:          hexList(p.PathElements),
		WhitelistPathIndex:    p.WhitelistPathIndex,
		WhitelistPathElements: hexList(p.WhitelistPathElements),
	})
}

func (p *WithdrawParameters) UnmarshalJSON(data []byte) error {
	var params withdrawParametersJSON
	if err := json.Unmarshal(data, &params); err != nil {
		return err
	}
	fields := []struct {
		dst *big.Int
		src string
	}{
		{&p.Root, params.Root},
		{&p.NullifierHash, params.NullifierHash},
		{&p.Recipient, params.Recipient},
		{&p.Relayer, params.Relayer},
		{&p.Fee, params.Fee},
		{&p.Refund, params.Refund},
		{&p.WhitelistRoot, params.WhitelistRoot},
		{&p.Secret, params.Secret},
		{&p.Nullifier, params.Nullifier},
		{&p.AccountHash, params.AccountHash},
	}
	for _, f := range fields {
		if err := FromHex(f.dst, f.src); err != nil {
			return err
		}
	}
	var err error
	p.PathIndex = params.PathIndex
	p.WhitelistPathIndex = params.WhitelistPathIndex
	if p.PathElements, err = fromHexList(params.PathElements); err != nil {
		return err
	}
	if p.WhitelistPathElements, err = fromHexList(params.WhitelistPathElements); err != nil {
		return err
	}
	return nil
}

func (ps *WithdrawProofSystem) WriteTo(w io.Writer) (int64, error) {
	var totalWritten int64
	var intBuf [4]byte

	for _, field := range []uint32{ps.TreeHeight, ps.WhitelistHeight} {
		binary.BigEndian.PutUint32(intBuf[:], field)
		written, err := w.Write(intBuf[:])
		totalWritten += int64(written)
		if err != nil {
			return totalWritten, err
		}
	}

	for _, part := range []io.WriterTo{ps.ProvingKey, ps.VerifyingKey, ps.ConstraintSystem} {
		written, err := part.WriteTo(w)
		totalWritten += written
		if err != nil {
			return totalWritten, err
		}
	}
	return totalWritten, nil
}

func (ps *WithdrawProofSystem) UnsafeReadFrom(r io.Reader) (int64, error) {
	var totalRead int64
	var intBuf [4]byte

	for _, field := range []*uint32{&ps.TreeHeight, &ps.WhitelistHeight} {
		read, err := io.ReadFull(r, intBuf[:])
		totalRead += int64(read)
		if err != nil {
			return totalRead, err
		}
		*field = binary.BigEndian.Uint32(intBuf[:])
	}

	ps.ProvingKey = groth16.NewProvingKey(ecc.BN254)
	keyRead, err := ps.ProvingKey.UnsafeReadFrom(r)
	totalRead += keyRead
	if err != nil {
		return totalRead, err
	}

	ps.VerifyingKey = groth16.NewVerifyingKey(ecc.BN254)
	keyRead, err = ps.VerifyingKey.UnsafeReadFrom(r)
	totalRead += keyRead
	if err != nil {
		return totalRead, err
	}

	ps.ConstraintSystem = groth16.NewCS(ecc.BN254)
	keyRead, err = ps.ConstraintSystem.ReadFrom(r)
	totalRead += keyRead
	return totalRead, err
}
