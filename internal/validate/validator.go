// Package validate implements the protocol rules for BRC-420 deploys and
// mints, bitmap claims, and parcel sub-claims.
//
// A rule that is not satisfied is a validation *failure*: the inscription is
// skipped silently and nothing is stored. An upstream or decode problem is a
// validation *error* and surfaces as err so the pipeline can retry.
package validate

import (
	"context"

	"github.com/rawblock/ordinals-indexer/internal/txapi"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// Store is the slice of the persistence layer the validators write through.
type Store interface {
	GetDeployBySourceID(ctx context.Context, sourceID string) (*models.Deploy, error)
	InsertDeploy(ctx context.Context, d models.Deploy) error
	CountMints(ctx context.Context, deployID string) (int64, error)
	InsertMint(ctx context.Context, m models.Mint) error
	GetBitmapByNumber(ctx context.Context, n int64) (*models.Bitmap, error)
	InsertBitmap(ctx context.Context, b models.Bitmap) error
	ReplaceBitmap(ctx context.Context, displacedID string, b models.Bitmap) error
	GetParcelBySlot(ctx context.Context, parcelNumber, bitmapNumber int64) (*models.Parcel, error)
	InsertParcel(ctx context.Context, p models.Parcel) error
	ReplaceParcel(ctx context.Context, displacedID string, p models.Parcel) error
}

// Wallets receives the wallet upsert for every committed artifact; backed by
// the write batcher.
type Wallets interface {
	Add(ctx context.Context, w models.Wallet) error
}

// OrdClient is the slice of the Ordinals client the validators need.
type OrdClient interface {
	Inscription(ctx context.Context, id string) (models.Inscription, error)
	SourceOwner(ctx context.Context, id string) (string, error)
	Content(ctx context.Context, id string) ([]byte, error)
	Children(ctx context.Context, id string) ([]string, error)
}

// TxClient is the slice of the tx service client the validators need.
type TxClient interface {
	Tx(ctx context.Context, txid string) (txapi.Tx, error)
	BlockTxCount(ctx context.Context, height int64) (int64, error)
}

// Validator bundles the collaborators for all four protocols.
type Validator struct {
	store   Store
	wallets Wallets
	ord     OrdClient
	tx      TxClient
}

func New(store Store, wallets Wallets, ord OrdClient, tx TxClient) *Validator {
	return &Validator{store: store, wallets: wallets, ord: ord, tx: tx}
}

// Result reports what a validator did with an inscription.
type Result struct {
	Committed bool
	Reason    string // rule that failed, for DEBUG-level visibility; empty when committed
}

func skip(reason string) Result { return Result{Reason: reason} }

func committed() Result { return Result{Committed: true} }
