package chain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// Receipt statuses.
const (
	StatusOK  = "ok"
	StatusErr = "err"
)

// Receipt is the recorded outcome of one executed operation.
type Receipt struct {
	ID        string          `json:"id"`
	Block     uint64          `json:"block"`
	TxIndex   uint32          `json:"txIndex"`
	Operation string          `json:"operation"`
	Caller    common.Address  `json:"caller"`
	Params    json.RawMessage `json:"params"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ReceiptError   `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ReceiptError is the reason an operation was rejected.
type ReceiptError struct {
	Code    ledger.Code `json:"code"`
	Message string      `json:"message"`
}

// OK reports whether the operation took effect.
func (r *Receipt) OK() bool {
	return r.Status == StatusOK
}

func (r *Receipt) model() *store.ReceiptModel {
	m := &store.ReceiptModel{
		ID:          r.ID,
		BlockNumber: r.Block,
		TxIndex:     r.TxIndex,
		Operation:   r.Operation,
		Caller:      r.Caller.Hex(),
		Params:      string(r.Params),
		Status:      r.Status,
		CreatedAt:   r.CreatedAt.UnixMilli(),
	}
	if r.Result != nil {
		result := string(r.Result)
		m.Result = &result
	}
	if r.Error != nil {
		code, msg := string(r.Error.Code), r.Error.Message
		m.ErrorCode = &code
		m.ErrorMessage = &msg
	}
	return m
}

func receiptFromModel(m *store.ReceiptModel) *Receipt {
	r := &Receipt{
		ID:        m.ID,
		Block:     m.BlockNumber,
		TxIndex:   m.TxIndex,
		Operation: m.Operation,
		Caller:    common.HexToAddress(m.Caller),
		Params:    json.RawMessage(m.Params),
		Status:    m.Status,
		CreatedAt: time.UnixMilli(m.CreatedAt),
	}
	if m.Result != nil {
		r.Result = json.RawMessage(*m.Result)
	}
	if m.ErrorCode != nil {
		r.Error = &ReceiptError{Code: ledger.Code(*m.ErrorCode)}
		if m.ErrorMessage != nil {
			r.Error.Message = *m.ErrorMessage
		}
	}
	return r
}
