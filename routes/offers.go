package routes

import (
	"errors"
	"net/http"

	"signature-elite-server/apperror"
	"signature-elite-server/middleware"
	"signature-elite-server/models"
	"signature-elite-server/offers"
	"signature-elite-server/payment"
	"signature-elite-server/utils"

	"github.com/kataras/iris/v12"
)

func (h *Handlers) SubmitOffer(ctx iris.Context) {
	var req offers.SubmitRequest
	if !readJSON(ctx, &req) {
		return
	}

	offer, err := h.Offers.Submit(ctx.Request().Context(), middleware.Claim(ctx), req)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(offer)
}

func (h *Handlers) GetOffer(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	offer, err := h.Offers.Get(ctx.Request().Context(), middleware.Claim(ctx), id)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(offer)
}

func (h *Handlers) DecideOffer(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var body struct {
		Status models.OfferStatus `json:"status"`
	}
	if !readJSON(ctx, &body) {
		return
	}

	offer, err := h.Offers.Decide(ctx.Request().Context(), middleware.Claim(ctx), id, body.Status)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(offer)
}

func (h *Handlers) RequestPayment(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var body struct {
		Amount float64 `json:"amount"`
	}
	if ctx.GetContentLength() > 0 && !readJSON(ctx, &body) {
		return
	}

	intent, err := h.Offers.RequestPayment(ctx.Request().Context(), middleware.Claim(ctx), id, body.Amount)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(intent)
}

func (h *Handlers) ConfirmPayment(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var body struct {
		TransactionID string `json:"transactionId"`
	}
	if !readJSON(ctx, &body) {
		return
	}

	offer, err := h.Offers.ConfirmPaymentAs(ctx.Request().Context(), middleware.Claim(ctx), id, body.TransactionID)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(offer)
}

func (h *Handlers) ListBuyerOffers(ctx iris.Context) {
	list, err := h.Offers.ListForBuyer(ctx.Request().Context(), middleware.Claim(ctx), ctx.Params().Get("email"))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) ListAgentOffers(ctx iris.Context) {
	list, err := h.Offers.ListForAgent(ctx.Request().Context(), middleware.Claim(ctx), ctx.Params().Get("email"))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

// StripeWebhook marks offers paid when Stripe reports a succeeded intent.
// Events that can never apply are acknowledged so Stripe stops retrying them.
func (h *Handlers) StripeWebhook(ctx iris.Context) {
	if h.StripeWebhookSecret == "" {
		utils.CreateError(ctx, http.StatusServiceUnavailable, "webhooks are not configured")
		return
	}
	payload, err := ctx.GetBody()
	if err != nil {
		utils.CreateError(ctx, http.StatusBadRequest, "Invalid request payload")
		return
	}

	succeeded, ok, err := payment.ParseWebhook(payload, ctx.GetHeader("Stripe-Signature"), h.StripeWebhookSecret)
	if err != nil {
		utils.CreateError(ctx, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		ctx.JSON(iris.Map{"received": true})
		return
	}

	_, err = h.Offers.ConfirmCharge(ctx.Request().Context(), succeeded.OfferID, succeeded.TransactionID, succeeded.AmountMinor)
	switch {
	case err == nil:
		ctx.JSON(iris.Map{"received": true, "applied": true})
	case errors.Is(err, apperror.ErrConflict), errors.Is(err, apperror.ErrNotFound):
		ctx.Application().Logger().Warnf("stripe webhook: offer %d, transaction %s not applied: %v",
			succeeded.OfferID, succeeded.TransactionID, err)
		ctx.JSON(iris.Map{"received": true, "applied": false})
	default:
		utils.WriteError(ctx, err)
	}
}
