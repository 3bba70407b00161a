// Command proofcli generates and verifies Merkle inclusion proofs (spec
// §4.5) against a boundary set rebuilt from the same raw records
// cmd/snapshot commits from.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"github.com/shadowatlas/commitment/pkg/boundary"
	"github.com/shadowatlas/commitment/pkg/config"
	"github.com/shadowatlas/commitment/pkg/crypto"
	"github.com/shadowatlas/commitment/pkg/field"
	"github.com/shadowatlas/commitment/pkg/merkletree"
	"github.com/shadowatlas/commitment/pkg/poseidon"
	"github.com/shadowatlas/commitment/pkg/proof"
)

// wireProof is the JSON-serializable form of proof.InclusionProof: field
// elements as canonical hex strings, matching snapshot.LeafRecord's
// convention of never round-tripping an fr.Element through reflection.
type wireProof struct {
	LeafHash   string   `json:"leaf_hash"`
	Root       string   `json:"root"`
	Depth      int      `json:"depth"`
	LeafIndex  int      `json:"leaf_index"`
	Siblings   []string `json:"siblings"`
	Directions []int    `json:"directions"`
}

// wireNullifierWitness is the JSON-serializable form of
// proof.NullifierWitness, matching wireProof's hex-string convention.
type wireNullifierWitness struct {
	RootHash      string   `json:"root_hash"`
	Nullifier     string   `json:"nullifier"`
	AuthorityHash string   `json:"authority_hash"`
	EpochID       string   `json:"epoch_id"`
	CampaignID    string   `json:"campaign_id"`
	Leaf          string   `json:"leaf"`
	MerklePath    []string `json:"merkle_path"`
	LeafIndex     int      `json:"leaf_index"`
	UserSecret    string   `json:"user_secret"`
}

// wireKeypair is the JSON-serializable form of a generated voter secret
// key and its public commitment (cmd/proofcli keygen).
type wireKeypair struct {
	SecretKey string `json:"secret_key"`
	PublicKey string `json:"public_key"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		runGenerate(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "witness":
		runWitness(os.Args[2:])
	case "keygen":
		runKeygen(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func runGenerate(args []string) {
	fs := flagSet("generate")
	boundariesPath := fs.String("boundaries", "", "path to a JSON array of boundary.RawBoundaryRecord")
	jurisdiction := fs.String("jurisdiction", "", "jurisdiction of the target boundary")
	boundaryType := fs.String("boundary-type", "", "boundary type of the target boundary")
	id := fs.String("id", "", "id of the target boundary")
	out := fs.String("out", "", "path to write the proof JSON (default: stdout)")
	fs.Parse(args)

	if *boundariesPath == "" || *jurisdiction == "" || *boundaryType == "" || *id == "" {
		log.Fatal("usage: proofcli generate -boundaries records.json -jurisdiction J -boundary-type T -id ID [-out proof.json]")
	}

	normalized, err := loadNormalized(*boundariesPath)
	if err != nil {
		log.Fatalf("load boundaries: %v", err)
	}

	cfg := config.Default()
	h := poseidon.NewHasher()
	leaves, err := merkletree.BuildLeaves(h, normalized)
	if err != nil {
		log.Fatalf("build leaves: %v", err)
	}
	tree, err := merkletree.Build(h, leaves, cfg.MerkleDepth)
	if err != nil {
		log.Fatalf("build tree: %v", err)
	}

	p, err := proof.Generate(tree, leaves, *jurisdiction, *boundaryType, *id)
	if err != nil {
		log.Fatalf("generate proof: %v", err)
	}

	wp := toWire(p)
	data, err := json.MarshalIndent(wp, "", "  ")
	if err != nil {
		log.Fatalf("marshal proof: %v", err)
	}
	if *out == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		log.Fatalf("write proof file: %v", err)
	}
}

func runVerify(args []string) {
	fs := flagSet("verify")
	proofPath := fs.String("proof", "", "path to a proof JSON produced by generate")
	fs.Parse(args)

	if *proofPath == "" {
		log.Fatal("usage: proofcli verify -proof proof.json")
	}

	data, err := os.ReadFile(*proofPath)
	if err != nil {
		log.Fatalf("read proof file: %v", err)
	}
	var wp wireProof
	if err := json.Unmarshal(data, &wp); err != nil {
		log.Fatalf("unmarshal proof: %v", err)
	}
	p, err := fromWire(wp)
	if err != nil {
		log.Fatalf("decode proof: %v", err)
	}

	h := poseidon.NewHasher()
	if proof.Verify(h, p) {
		fmt.Println("valid")
		return
	}
	fmt.Println("invalid")
	os.Exit(1)
}

// runWitness builds the full external-circuit witness bundle of spec
// §4.6: the inclusion path for the target boundary plus the derived
// nullifier/authority_hash for a given voter secret, epoch, and campaign.
func runWitness(args []string) {
	fs := flagSet("witness")
	boundariesPath := fs.String("boundaries", "", "path to a JSON array of boundary.RawBoundaryRecord")
	jurisdiction := fs.String("jurisdiction", "", "jurisdiction of the target boundary")
	boundaryType := fs.String("boundary-type", "", "boundary type of the target boundary")
	id := fs.String("id", "", "id of the target boundary")
	userSecretHex := fs.String("user-secret", "", "voter's secret, as a 0x-prefixed field element")
	epochID := fs.Int64("epoch-id", 0, "election epoch")
	campaignID := fs.Int64("campaign-id", 0, "campaign id")
	authorityID := fs.String("authority-id", "", "authority/registrar id")
	out := fs.String("out", "", "path to write the witness JSON (default: stdout)")
	fs.Parse(args)

	if *boundariesPath == "" || *jurisdiction == "" || *boundaryType == "" || *id == "" || *userSecretHex == "" || *authorityID == "" {
		log.Fatal("usage: proofcli witness -boundaries records.json -jurisdiction J -boundary-type T -id ID -user-secret 0x.. -epoch-id N -campaign-id N -authority-id A [-out witness.json]")
	}

	normalized, err := loadNormalized(*boundariesPath)
	if err != nil {
		log.Fatalf("load boundaries: %v", err)
	}

	cfg := config.Default()
	h := poseidon.NewHasher()
	leaves, err := merkletree.BuildLeaves(h, normalized)
	if err != nil {
		log.Fatalf("build leaves: %v", err)
	}
	tree, err := merkletree.Build(h, leaves, cfg.MerkleDepth)
	if err != nil {
		log.Fatalf("build tree: %v", err)
	}

	userSecret, err := field.FromHexString(*userSecretHex)
	if err != nil {
		log.Fatalf("parse user secret: %v", err)
	}
	epoch := field.FromInt64(*epochID)
	campaign := field.FromInt64(*campaignID)

	w, err := proof.PrepareNullifierWitness(h, tree, leaves, *jurisdiction, *boundaryType, *id, userSecret, epoch, campaign, *authorityID)
	if err != nil {
		log.Fatalf("prepare witness: %v", err)
	}

	path := make([]string, len(w.MerklePath))
	for i, s := range w.MerklePath {
		path[i] = hexVar(s)
	}
	ww := wireNullifierWitness{
		RootHash:      hexVar(w.RootHash),
		Nullifier:     hexVar(w.Nullifier),
		AuthorityHash: hexVar(w.AuthorityHash),
		EpochID:       hexVar(w.EpochID),
		CampaignID:    hexVar(w.CampaignID),
		Leaf:          hexVar(w.Leaf),
		MerklePath:    path,
		LeafIndex:     w.LeafIndex,
		UserSecret:    hexVar(w.UserSecret),
	}
	data, err := json.MarshalIndent(ww, "", "  ")
	if err != nil {
		log.Fatalf("marshal witness: %v", err)
	}
	if *out == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		log.Fatalf("write witness file: %v", err)
	}
}

// runKeygen generates a voter secret key and its public commitment (the
// value a registrar records at enrollment, per pkg/crypto's scope).
func runKeygen(args []string) {
	fs := flagSet("keygen")
	out := fs.String("out", "", "path to write the keypair JSON (default: stdout)")
	fs.Parse(args)

	secretKey, err := crypto.GenerateSecretKey()
	if err != nil {
		log.Fatalf("generate secret key: %v", err)
	}
	publicKey := crypto.DerivePublicKey(secretKey)

	kp := wireKeypair{
		SecretKey: fmt.Sprintf("0x%064x", secretKey),
		PublicKey: fmt.Sprintf("0x%064x", publicKey),
	}
	data, err := json.MarshalIndent(kp, "", "  ")
	if err != nil {
		log.Fatalf("marshal keypair: %v", err)
	}
	if *out == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		log.Fatalf("write keypair file: %v", err)
	}
}

// hexVar renders a gnark frontend.Variable produced by this package's
// own proof/witness helpers (always a *big.Int) as a 0x-prefixed,
// 64-hex-nibble left-padded string, matching field.HexString's
// convention for fr.Element.
func hexVar(v frontend.Variable) string {
	bi, ok := v.(*big.Int)
	if !ok {
		return ""
	}
	return fmt.Sprintf("0x%064x", bi)
}

func loadNormalized(path string) ([]boundary.NormalizedBoundary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var raw []boundary.RawBoundaryRecord
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}
	normalized := make([]boundary.NormalizedBoundary, 0, len(raw))
	for _, r := range raw {
		nb, err := boundary.Normalize(r)
		if err != nil {
			continue
		}
		normalized = append(normalized, *nb)
	}
	return normalized, nil
}

func toWire(p proof.InclusionProof) wireProof {
	siblings := make([]string, len(p.Siblings))
	for i, s := range p.Siblings {
		siblings[i] = field.HexString(s)
	}
	return wireProof{
		LeafHash:   field.HexString(p.LeafHash),
		Root:       field.HexString(p.Root),
		Depth:      p.Depth,
		LeafIndex:  p.LeafIndex,
		Siblings:   siblings,
		Directions: p.Directions,
	}
}

func fromWire(wp wireProof) (proof.InclusionProof, error) {
	leafHash, err := field.FromHexString(wp.LeafHash)
	if err != nil {
		return proof.InclusionProof{}, err
	}
	root, err := field.FromHexString(wp.Root)
	if err != nil {
		return proof.InclusionProof{}, err
	}
	parsedSiblings := make([]fr.Element, len(wp.Siblings))
	for i, s := range wp.Siblings {
		e, err := field.FromHexString(s)
		if err != nil {
			return proof.InclusionProof{}, err
		}
		parsedSiblings[i] = e
	}
	return proof.InclusionProof{
		LeafHash:   leafHash,
		Root:       root,
		Depth:      wp.Depth,
		LeafIndex:  wp.LeafIndex,
		Siblings:   parsedSiblings,
		Directions: wp.Directions,
	}, nil
}

func flagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

func printUsage() {
	fmt.Println(`Usage:
  proofcli generate -boundaries records.json -jurisdiction J -boundary-type T -id ID [-out proof.json]
  proofcli verify -proof proof.json
  proofcli witness -boundaries records.json -jurisdiction J -boundary-type T -id ID -user-secret 0x.. -epoch-id N -campaign-id N -authority-id A [-out witness.json]
  proofcli keygen [-out keypair.json]`)
}
