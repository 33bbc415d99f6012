package validate

import (
	"context"
	"time"

	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// Mint validates a BRC-420 mint inscription. sourceID is the inscription id
// referenced by the mint's "/content/<source_id>" body.
func (v *Validator) Mint(ctx context.Context, ins models.Inscription, sourceID string) (Result, error) {
	deploy, err := v.store.GetDeployBySourceID(ctx, sourceID)
	if err != nil {
		return Result{}, err
	}
	if deploy == nil {
		return skip("mint: no deploy for referenced source"), nil
	}

	txid, _, err := ConvertInscriptionID(ins.ID)
	if err != nil {
		return skip("mint: unparseable inscription id"), nil
	}

	// Royalty: the mint transaction must pay the deploy price to the
	// deployer, summed across outputs, in satoshis.
	tx, err := v.tx.Tx(ctx, txid)
	if err != nil {
		if upstream.IsNotFound(err) {
			return skip("mint: transaction not found"), nil
		}
		return Result{}, err
	}
	var paid int64
	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress == deploy.DeployerAddress {
			paid += out.Value
		}
	}
	if paid < deploy.PriceSats {
		return skip("mint: royalty underpaid"), nil
	}

	// Content-type parity with the source inscription.
	source, err := v.ord.Inscription(ctx, sourceID)
	if err != nil {
		if upstream.IsNotFound(err) {
			return skip("mint: source inscription not found"), nil
		}
		return Result{}, err
	}
	if source.ContentType != ins.ContentType {
		return skip("mint: content type differs from source"), nil
	}

	// Supply cap.
	minted, err := v.store.CountMints(ctx, deploy.ID)
	if err != nil {
		return Result{}, err
	}
	if minted >= deploy.MaxSupply {
		return skip("mint: supply cap reached"), nil
	}

	m := models.Mint{
		ID:            ins.ID,
		DeployID:      deploy.ID,
		SourceID:      sourceID,
		MintAddress:   ins.Address,
		TransactionID: txid,
		BlockHeight:   ins.Height,
		Timestamp:     time.Unix(ins.Timestamp, 0).UTC(),
		Wallet:        ins.Address,
	}
	if err := v.store.InsertMint(ctx, m); err != nil {
		return Result{}, err
	}
	if err := v.wallets.Add(ctx, models.Wallet{
		InscriptionID: ins.ID,
		Address:       ins.Address,
		Kind:          "mint",
		UpdatedAt:     time.Now(),
	}); err != nil {
		return Result{}, err
	}
	return committed(), nil
}
