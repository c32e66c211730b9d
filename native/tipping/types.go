package tipping

// TipAccount is the per-tipper ledger entry. Tipper and Creator are fixed at
// initialization; TotalTips only grows.
type TipAccount struct {
	Tipper    [20]byte `json:"tipper"`
	Creator   [20]byte `json:"creator"`
	TotalTips uint64   `json:"totalTips"`
	Deposit   uint64   `json:"deposit"`
	CreatedAt int64    `json:"createdAt"`
}

// Clone returns a copy of the record.
func (a *TipAccount) Clone() *TipAccount {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Params tunes the balance requirements enforced by the engine.
type Params struct {
	// MinBalance must remain on the tipper account after any debit.
	MinBalance uint64
	// RecordDeposit is charged to the tipper when its tip account is created
	// and held on the record.
	RecordDeposit uint64
}

// DefaultParams mirrors the reserve sizes of the original deployment: the
// minimum for an empty account and the deposit for an 80-byte record.
func DefaultParams() Params {
	return Params{
		MinBalance:    890_880,
		RecordDeposit: 1_447_680,
	}
}
