package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tipchain/core"
	"tipchain/core/types"
	"tipchain/crypto"
	"tipchain/indexer"
	"tipchain/native/tipping"
)

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	return s.submit(w, r, req, types.RequestInitialize)
}

func (s *Server) handleSendTip(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	return s.submit(w, r, req, types.RequestSendTip)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req *RPCRequest, kind types.RequestKind) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	var params SignedRequestParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return codeInvalidParams
	}
	tipReq, err := params.toRequest(kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return codeInvalidParams
	}
	result, err := s.node.Submit(r.Context(), tipReq)
	if err != nil {
		return s.writeLedgerError(w, req.ID, err)
	}
	writeResult(w, req.ID, SubmitResult{
		Hash:    "0x" + hex.EncodeToString(result.Hash),
		Nonce:   result.Nonce,
		Account: formatTipAccount(result.Account),
	})
	return 0
}

func (p SignedRequestParams) toRequest(kind types.RequestKind) (*types.TipRequest, error) {
	tipper, err := decodeAddressParam("tipper", p.Tipper)
	if err != nil {
		return nil, err
	}
	creator, err := decodeAddressParam("creator", p.Creator)
	if err != nil {
		return nil, err
	}
	var amount uint64
	if kind == types.RequestSendTip {
		amount, err = parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
	}
	sig, err := decodeHex(p.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	return &types.TipRequest{
		Kind:      kind,
		Nonce:     p.Nonce,
		Tipper:    tipper,
		Creator:   creator,
		Amount:    amount,
		Signature: sig,
	}, nil
}

// writeLedgerError maps node errors onto JSON-RPC errors. Ledger rejections
// carry their kind in data.
func (s *Server) writeLedgerError(w http.ResponseWriter, id interface{}, err error) int {
	kind, ok := tipping.KindOf(err)
	switch {
	case ok && kind == tipping.KindUnauthorized:
		writeError(w, http.StatusOK, id, codeUnauthorized, err.Error(), LedgerErrorData{Kind: string(kind)})
		return codeUnauthorized
	case ok:
		writeError(w, http.StatusOK, id, codeLedgerRejected, err.Error(), LedgerErrorData{Kind: string(kind)})
		return codeLedgerRejected
	case errors.Is(err, core.ErrAirdropAmount), errors.Is(err, core.ErrUnknownRequest):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
		return codeInvalidParams
	default:
		s.logger.Error("ledger operation failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", nil)
		return codeServerError
	}
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	tipper, code := s.singleAddressParam(w, req, "tipper")
	if code != 0 {
		return code
	}
	account, err := s.node.TipAccount(tipper)
	if err != nil {
		return s.writeLedgerError(w, req.ID, err)
	}
	writeResult(w, req.ID, formatTipAccount(account))
	return 0
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	addr, code := s.singleAddressParam(w, req, "address")
	if code != 0 {
		return code
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		return s.writeLedgerError(w, req.ID, err)
	}
	writeResult(w, req.ID, BalanceResult{
		Address: crypto.FormatAddress(addr),
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
	return 0
}

func (s *Server) handleGetNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	addr, code := s.singleAddressParam(w, req, "address")
	if code != 0 {
		return code
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		return s.writeLedgerError(w, req.ID, err)
	}
	writeResult(w, req.ID, account.Nonce)
	return 0
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if s.receipts == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "receipt indexer disabled", nil)
		return codeServerError
	}
	var params ReceiptsParams
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "too many parameters", nil)
		return codeInvalidParams
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
			return codeInvalidParams
		}
	}
	filter, err := params.toFilter()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return codeInvalidParams
	}
	rows, err := s.receipts.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list receipts", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list receipts", nil)
		return codeServerError
	}
	out := make([]ReceiptResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatReceipt(row))
	}
	writeResult(w, req.ID, out)
	return 0
}

func (s *Server) singleAddressParam(w http.ResponseWriter, req *RPCRequest, name string) ([20]byte, int) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, name+" parameter required", nil)
		return [20]byte{}, codeInvalidParams
	}
	var raw string
	if err := json.Unmarshal(req.Params[0], &raw); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, name+" must be a string", err.Error())
		return [20]byte{}, codeInvalidParams
	}
	addr, err := decodeAddressParam(name, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return [20]byte{}, codeInvalidParams
	}
	return addr, 0
}

func decodeAddressParam(name, raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s required", name)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %v", name, err)
	}
	return addr.Array(), nil
}

func parseAmount(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("amount required")
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount must be a base-10 unsigned integer")
	}
	return amount, nil
}

func decodeHex(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	return hex.DecodeString(trimmed)
}

func (p ReceiptsParams) toFilter() (indexer.Filter, error) {
	filter := indexer.Filter{Kind: strings.TrimSpace(p.Kind), Limit: p.Limit, Offset: p.Offset}
	if p.Limit < 0 || p.Offset < 0 {
		return filter, fmt.Errorf("limit and offset must not be negative")
	}
	if strings.TrimSpace(p.Tipper) != "" {
		addr, err := decodeAddressParam("tipper", p.Tipper)
		if err != nil {
			return filter, err
		}
		filter.Tipper = crypto.FormatAddress(addr)
	}
	if strings.TrimSpace(p.Creator) != "" {
		addr, err := decodeAddressParam("creator", p.Creator)
		if err != nil {
			return filter, err
		}
		filter.Creator = crypto.FormatAddress(addr)
	}
	return filter, nil
}
