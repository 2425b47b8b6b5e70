package adminapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/squeaknode/node/internal/models"
)

// Each handler maps one-to-one onto a Controller method: decode the
// request, call straight through, encode the result. No orchestration
// lives here — an item's signature and pubkey are supplied by the
// caller, never computed in this package.

func (s *Server) handleSaveItem(c *gin.Context) {
	var req saveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: err.Error()})
		return
	}
	item, err := req.toModel()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: err.Error()})
		return
	}
	if err := s.ctl.SaveItem(c.Request.Context(), item, req.Signature, req.AuthorPubkey, req.RequireKey); err != nil {
		status, body := bodyFor(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, newItemResponse(item))
}

func (s *Server) handleGetBuyOffer(c *gin.Context) {
	itemHash, err := parseHash(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: err.Error()})
		return
	}
	var req struct {
		ClientHost string `json:"client_host"`
		ClientPort int    `json:"client_port"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: err.Error()})
		return
	}
	wireOffer, err := s.ctl.GetBuyOffer(c.Request.Context(), itemHash, req.ClientHost, req.ClientPort)
	if err != nil {
		status, body := bodyFor(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, newBuyOfferResponse(wireOffer))
}

func (s *Server) handlePayOffer(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: "id must be an integer"})
		return
	}
	payment, err := s.ctl.PayOffer(c.Request.Context(), id)
	if err != nil {
		status, body := bodyFor(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, newSentPaymentResponse(payment))
}

func (s *Server) handleLookupItems(c *gin.Context) {
	addresses := c.QueryArray("address")
	minBlock, _ := strconv.ParseInt(c.DefaultQuery("min_block_height", "0"), 10, 64)
	maxBlock, _ := strconv.ParseInt(c.DefaultQuery("max_block_height", "0"), 10, 64)

	hashes, err := s.ctl.LookupItems(c.Request.Context(), addresses, minBlock, maxBlock)
	if err != nil {
		status, body := bodyFor(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, newLookupItemsResponse(hashes))
}

func (s *Server) handleFilterUnknown(c *gin.Context) {
	var req filterUnknownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: err.Error()})
		return
	}
	invs := make([]models.Inv, 0, len(req.Invs))
	for _, d := range req.Invs {
		inv, err := d.toModel()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: err.Error()})
			return
		}
		invs = append(invs, inv)
	}

	useful, err := s.ctl.FilterUnknown(c.Request.Context(), invs)
	if err != nil {
		status, body := bodyFor(err)
		c.JSON(status, body)
		return
	}
	out := make([]invDTO, len(useful))
	for i, inv := range useful {
		out[i] = newInvDTO(inv)
	}
	c.JSON(http.StatusOK, filterUnknownResponse{Invs: out})
}

func (s *Server) handleSyncTimeline(c *gin.Context) {
	count, err := s.ctl.SyncTimeline(c.Request.Context())
	if err != nil {
		status, body := bodyFor(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, syncResponse{Count: count})
}

func (s *Server) handleShareItems(c *gin.Context) {
	count, err := s.ctl.ShareItems(c.Request.Context())
	if err != nil {
		status, body := bodyFor(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, syncResponse{Count: count})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
