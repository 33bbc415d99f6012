package validate

import (
	"context"
	"slices"
	"time"

	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// Parcel validates a "<P>.<N>.bitmap" sub-claim inscribed at blockHeight.
func (v *Validator) Parcel(ctx context.Context, ins models.Inscription, content string, blockHeight int64) (Result, error) {
	parcelNum, bitmapNum, ok := ParseParcelContent(content)
	if !ok {
		return skip("parcel: content is not <P>.<N>.bitmap"), nil
	}

	parent, err := v.store.GetBitmapByNumber(ctx, bitmapNum)
	if err != nil {
		return Result{}, err
	}
	if parent == nil {
		return skip("parcel: parent bitmap not indexed"), nil
	}

	// Provenance: the parcel must be a child inscription of the parent
	// bitmap's inscription.
	children, err := v.ord.Children(ctx, parent.InscriptionID)
	if err != nil {
		return Result{}, err
	}
	if !slices.Contains(children, ins.ID) {
		return skip("parcel: not a child of the parent bitmap"), nil
	}

	// Range: the parcel number indexes a transaction of the parent bitmap's
	// block. When the count is unavailable the claim is accepted tentatively
	// with a null count.
	var txCount *int64
	count, err := v.tx.BlockTxCount(ctx, parent.BlockHeight)
	switch {
	case err == nil:
		if parcelNum >= count {
			return skip("parcel: number out of range for block"), nil
		}
		txCount = &count
	case upstream.IsNotFound(err):
		// count unknown, accept tentatively
	default:
		return Result{}, err
	}

	p := models.Parcel{
		InscriptionID:       ins.ID,
		ParcelNumber:        parcelNum,
		BitmapNumber:        bitmapNum,
		BitmapInscriptionID: parent.InscriptionID,
		Content:             content,
		Address:             ins.Address,
		BlockHeight:         blockHeight,
		Timestamp:           time.Unix(ins.Timestamp, 0).UTC(),
		TransactionCount:    txCount,
		Wallet:              ins.Address,
	}

	existing, err := v.store.GetParcelBySlot(ctx, parcelNum, bitmapNum)
	if err != nil {
		return Result{}, err
	}
	switch {
	case existing == nil:
		if err := v.store.InsertParcel(ctx, p); err != nil {
			return Result{}, err
		}
	case existing.InscriptionID == ins.ID:
		return skip("parcel: already recorded"), nil
	case earlier(p.BlockHeight, p.InscriptionID, existing.BlockHeight, existing.InscriptionID):
		if err := v.store.ReplaceParcel(ctx, existing.InscriptionID, p); err != nil {
			return Result{}, err
		}
	default:
		return skip("parcel: slot held by an earlier claim"), nil
	}

	if err := v.wallets.Add(ctx, models.Wallet{
		InscriptionID: ins.ID,
		Address:       ins.Address,
		Kind:          "parcel",
		UpdatedAt:     time.Now(),
	}); err != nil {
		return Result{}, err
	}
	return committed(), nil
}
