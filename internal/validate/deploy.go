package validate

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// flexString decodes a JSON value that may arrive as a string or a number.
// BRC-420 payloads in the wild use both forms for max and price.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type deployPayload struct {
	P     string     `json:"p"`
	Op    string     `json:"op"`
	ID    string     `json:"id"` // source inscription whose content the token clones
	Name  string     `json:"name"`
	Max   flexString `json:"max"`
	Price flexString `json:"price"`
}

// Deploy validates a BRC-420 deploy inscription and, when valid, records the
// Deploy row and its wallet entry.
func (v *Validator) Deploy(ctx context.Context, ins models.Inscription, content []byte) (Result, error) {
	var payload deployPayload
	if err := json.Unmarshal(content, &payload); err != nil {
		return skip("deploy: malformed JSON payload"), nil
	}
	if payload.P != "brc-420" || payload.Op != "deploy" {
		return skip("deploy: not a brc-420 deploy payload"), nil
	}
	if payload.ID == "" || strings.TrimSpace(payload.Name) == "" {
		return skip("deploy: missing source id or name"), nil
	}

	maxSupply, err := strconv.ParseInt(string(payload.Max), 10, 64)
	if err != nil || maxSupply <= 0 {
		return skip("deploy: max must be a positive integer"), nil
	}
	priceBTC, priceSats, ok := parsePrice(string(payload.Price))
	if !ok {
		return skip("deploy: price must be a positive 8-place decimal"), nil
	}

	// The deployer is the holder of the deploy inscription; the deploy is
	// only valid when the same address holds the source inscription.
	owner, err := v.ord.SourceOwner(ctx, payload.ID)
	if err != nil {
		if upstream.IsNotFound(err) {
			return skip("deploy: source inscription not found"), nil
		}
		return Result{}, err
	}
	if owner == "" || owner != ins.Address {
		return skip("deploy: deployer does not hold the source inscription"), nil
	}

	// One deploy per source inscription, first-seen wins.
	existing, err := v.store.GetDeployBySourceID(ctx, payload.ID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return skip("deploy: source already deployed"), nil
	}

	d := models.Deploy{
		ID:              ins.ID,
		SourceID:        payload.ID,
		Name:            payload.Name,
		MaxSupply:       maxSupply,
		PriceBTC:        priceBTC,
		PriceSats:       priceSats,
		DeployerAddress: ins.Address,
		BlockHeight:     ins.Height,
		Timestamp:       time.Unix(ins.Timestamp, 0).UTC(),
		Wallet:          ins.Address,
	}
	if err := v.store.InsertDeploy(ctx, d); err != nil {
		return Result{}, err
	}
	if err := v.wallets.Add(ctx, models.Wallet{
		InscriptionID: ins.ID,
		Address:       ins.Address,
		Kind:          "deploy",
		UpdatedAt:     time.Now(),
	}); err != nil {
		return Result{}, err
	}
	return committed(), nil
}

// parsePrice parses a BTC-denominated price with at most 8 decimal places
// and returns it plus its exact satoshi value.
func parsePrice(s string) (priceBTC float64, priceSats int64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, 0, false
	}
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > 8 {
		return 0, 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, 0, false
	}
	amt, err := btcutil.NewAmount(f)
	if err != nil || amt <= 0 {
		return 0, 0, false
	}
	return f, int64(amt), true
}
