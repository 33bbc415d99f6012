package models

import "time"

// InscriptionKind is the result of preview classification. The pipeline
// dispatches on it exhaustively; there is no stringly-typed routing.
type InscriptionKind int

const (
	KindUnknown InscriptionKind = iota
	KindBrc420Deploy
	KindBrc420Mint
	KindBitmap
	KindParcel
	KindBinary
	KindJson
	KindText
)

func (k InscriptionKind) String() string {
	switch k {
	case KindBrc420Deploy:
		return "brc420-deploy"
	case KindBrc420Mint:
		return "brc420-mint"
	case KindBitmap:
		return "bitmap"
	case KindParcel:
		return "parcel"
	case KindBinary:
		return "binary"
	case KindJson:
		return "json"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Inscription is the typed metadata record returned by the Ordinals service.
// Optional upstream fields stay pointers so absence is distinguishable.
type Inscription struct {
	ID            string `json:"id"`
	Address       string `json:"address"`
	Sat           *int64 `json:"sat,omitempty"`
	ContentType   string `json:"content_type"`
	ContentLength int64  `json:"content_length"`
	Height        int64  `json:"height"`
	Timestamp     int64  `json:"timestamp"`
	Value         int64  `json:"value"`
	Fee           int64  `json:"fee"`
}

// Deploy represents a validated BRC-420 token deployment.
type Deploy struct {
	ID              string    `json:"id"` // deploy inscription id
	SourceID        string    `json:"sourceId"`
	Name            string    `json:"name"`
	MaxSupply       int64     `json:"maxSupply"`
	PriceBTC        float64   `json:"priceBtc"`
	PriceSats       int64     `json:"priceSats"` // floor(PriceBTC * 1e8), fixed at deploy time
	DeployerAddress string    `json:"deployerAddress"`
	BlockHeight     int64     `json:"blockHeight"`
	Timestamp       time.Time `json:"timestamp"`
	Wallet          string    `json:"wallet"`
}

// Mint is one unit minted against a Deploy.
type Mint struct {
	ID            string    `json:"id"`
	DeployID      string    `json:"deployId"`
	SourceID      string    `json:"sourceId"`
	MintAddress   string    `json:"mintAddress"`
	TransactionID string    `json:"transactionId"`
	BlockHeight   int64     `json:"blockHeight"`
	Timestamp     time.Time `json:"timestamp"`
	Wallet        string    `json:"wallet"`
}

// Bitmap is a validated claim of a block number ("<N>.bitmap").
type Bitmap struct {
	InscriptionID string    `json:"inscriptionId"`
	BitmapNumber  int64     `json:"bitmapNumber"`
	Content       string    `json:"content"`
	Address       string    `json:"address"` // original mint address
	BlockHeight   int64     `json:"blockHeight"`
	Timestamp     time.Time `json:"timestamp"`
	Sat           *int64    `json:"sat,omitempty"`
	Wallet        string    `json:"wallet"` // current holder
}

// Parcel is a validated sub-claim inside a Bitmap ("<P>.<N>.bitmap").
// TransactionCount is nil when the parent block's tx count was unavailable
// at validation time; range checks are then deferred.
type Parcel struct {
	InscriptionID       string    `json:"inscriptionId"`
	ParcelNumber        int64     `json:"parcelNumber"`
	BitmapNumber        int64     `json:"bitmapNumber"`
	BitmapInscriptionID string    `json:"bitmapInscriptionId"`
	Content             string    `json:"content"`
	Address             string    `json:"address"`
	BlockHeight         int64     `json:"blockHeight"`
	Timestamp           time.Time `json:"timestamp"`
	TransactionCount    *int64    `json:"transactionCount,omitempty"`
	Wallet              string    `json:"wallet"`
}

// Wallet tracks the current holder of an indexed inscription.
type Wallet struct {
	InscriptionID string    `json:"inscriptionId"`
	Address       string    `json:"address"`
	Kind          string    `json:"kind"` // deploy | mint | bitmap | parcel
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ErrorBlock is a block whose processing failed and is scheduled for retry
// once the scanner reaches RetryAt.
type ErrorBlock struct {
	BlockHeight  int64     `json:"blockHeight"`
	ErrorMessage string    `json:"errorMessage"`
	RetryCount   int       `json:"retryCount"`
	RetryAt      int64     `json:"retryAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FailedInscription records a single inscription that exhausted its retries.
type FailedInscription struct {
	ID            string    `json:"id"` // uuid
	InscriptionID string    `json:"inscriptionId"`
	BlockHeight   int64     `json:"blockHeight"`
	ErrorMessage  string    `json:"errorMessage"`
	FailedAt      time.Time `json:"failedAt"`
}

// BlockStats summarises one processed block.
type BlockStats struct {
	BlockHeight       int64     `json:"blockHeight"`
	TotalTransactions int64     `json:"totalTransactions"`
	TotalInscriptions int64     `json:"totalInscriptions"`
	Brc420Deploys     int64     `json:"brc420Deploys"`
	Brc420Mints       int64     `json:"brc420Mints"`
	Bitmaps           int64     `json:"bitmaps"`
	Parcels           int64     `json:"parcels"`
	ProcessedAt       time.Time `json:"processedAt"`
}

// AddressHistory is one append-only ownership change entry.
type AddressHistory struct {
	InscriptionID string    `json:"inscriptionId"`
	OldAddress    string    `json:"oldAddress"`
	NewAddress    string    `json:"newAddress"`
	BlockHeight   int64     `json:"blockHeight"`
	Timestamp     time.Time `json:"timestamp"`
}

// IndexEvent is broadcast over the websocket hub whenever a new artifact is
// committed to the store.
type IndexEvent struct {
	Type          string `json:"type"` // deploy | mint | bitmap | parcel
	InscriptionID string `json:"inscriptionId"`
	BlockHeight   int64  `json:"blockHeight"`
	Address       string `json:"address"`
	Detail        string `json:"detail,omitempty"` // e.g. "792000.bitmap" or token name
	Timestamp     string `json:"timestamp"`
}
