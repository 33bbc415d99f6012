package validate

import (
	"context"
	"time"

	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// Bitmap validates a "<N>.bitmap" claim inscribed at blockHeight. A bitmap
// number can only be claimed once; the earlier claim wins, where earlier
// means lower block height, then lexicographically lower inscription id.
// The same-block case matters because inscription tasks run in parallel.
func (v *Validator) Bitmap(ctx context.Context, ins models.Inscription, content string, blockHeight int64) (Result, error) {
	n, ok := ParseBitmapContent(content)
	if !ok {
		return skip("bitmap: content is not a canonical <N>.bitmap"), nil
	}
	if n > blockHeight {
		return skip("bitmap: number exceeds mint height"), nil
	}

	b := models.Bitmap{
		InscriptionID: ins.ID,
		BitmapNumber:  n,
		Content:       content,
		Address:       ins.Address,
		BlockHeight:   blockHeight,
		Timestamp:     time.Unix(ins.Timestamp, 0).UTC(),
		Sat:           ins.Sat,
		Wallet:        ins.Address,
	}

	existing, err := v.store.GetBitmapByNumber(ctx, n)
	if err != nil {
		return Result{}, err
	}
	switch {
	case existing == nil:
		if err := v.store.InsertBitmap(ctx, b); err != nil {
			return Result{}, err
		}
	case existing.InscriptionID == ins.ID:
		return skip("bitmap: already recorded"), nil
	case earlier(b.BlockHeight, b.InscriptionID, existing.BlockHeight, existing.InscriptionID):
		if err := v.store.ReplaceBitmap(ctx, existing.InscriptionID, b); err != nil {
			return Result{}, err
		}
	default:
		return skip("bitmap: number already claimed"), nil
	}

	if err := v.wallets.Add(ctx, models.Wallet{
		InscriptionID: ins.ID,
		Address:       ins.Address,
		Kind:          "bitmap",
		UpdatedAt:     time.Now(),
	}); err != nil {
		return Result{}, err
	}
	return committed(), nil
}

// earlier implements the (block_height, inscription_id) ordering used by
// both the bitmap and parcel tie-breakers.
func earlier(height1 int64, id1 string, height2 int64, id2 string) bool {
	if height1 != height2 {
		return height1 < height2
	}
	return id1 < id2
}
