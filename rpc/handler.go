package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/ruxir-ig/clawrrency/consensus"
	"github.com/ruxir-ig/clawrrency/ledger"
	"github.com/ruxir-ig/clawrrency/skillmarket"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	ledger    *ledger.Engine
	consensus *consensus.Engine // nil if this node runs without PBFT (e.g. genesis tooling)
	market    *skillmarket.Market
}

// NewHandler creates an RPC Handler. cons may be nil.
func NewHandler(led *ledger.Engine, cons *consensus.Engine, market *skillmarket.Market) *Handler {
	return &Handler{ledger: led, consensus: cons, market: market}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBalance":
		return h.getBalance(req)

	case "getAccount":
		return h.getAccount(req)

	case "getTransaction":
		return h.getTransaction(req)

	case "getHistory":
		return h.getHistory(req)

	case "submitTx":
		return h.submitTx(req)

	case "getSkill":
		return h.getSkill(req)

	case "getListing":
		return h.getListing(req)

	case "getConsensusStatus":
		return h.getConsensusStatus(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.PublicKey == "" {
		return errResponse(req.ID, CodeInvalidParams, "public_key is required")
	}
	balance, err := h.ledger.GetBalance(params.PublicKey)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"public_key": params.PublicKey, "balance": balance})
}

func (h *Handler) getAccount(req Request) Response {
	var params struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.PublicKey == "" {
		return errResponse(req.ID, CodeInvalidParams, "public_key is required")
	}
	acc, err := h.ledger.GetAccount(params.PublicKey)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, acc)
}

func (h *Handler) getTransaction(req Request) Response {
	var params struct {
		Digest string `json:"digest"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Digest == "" {
		return errResponse(req.ID, CodeInvalidParams, "digest is required")
	}
	stx, err := h.ledger.GetTransactionByHash(params.Digest)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, stx)
}

func (h *Handler) getHistory(req Request) Response {
	var params struct {
		PublicKey string `json:"public_key"`
		Limit     int    `json:"limit"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.PublicKey == "" {
		return errResponse(req.ID, CodeInvalidParams, "public_key is required")
	}
	history, err := h.ledger.GetTransactionHistory(params.PublicKey, params.Limit)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, history)
}

func (h *Handler) submitTx(req Request) Response {
	var tx ledger.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if h.consensus == nil {
		stx, err := h.ledger.ApplyTransaction(&tx)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		return okResponse(req.ID, stx)
	}
	stx, err := h.consensus.SubmitTransaction(&tx)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, stx)
}

func (h *Handler) getSkill(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	if h.market == nil {
		return errResponse(req.ID, CodeInternalError, "marketplace not enabled on this node")
	}
	skill, err := h.market.GetSkill(params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, skill)
}

func (h *Handler) getListing(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	if h.market == nil {
		return errResponse(req.ID, CodeInternalError, "marketplace not enabled on this node")
	}
	listing, err := h.market.GetListing(params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, listing)
}

func (h *Handler) getConsensusStatus(req Request) Response {
	if h.consensus == nil {
		return errResponse(req.ID, CodeInternalError, "consensus not enabled on this node")
	}
	return okResponse(req.ID, map[string]any{
		"is_leader":     h.consensus.IsLeader(),
		"pending_count": h.consensus.PendingCount(),
	})
}
