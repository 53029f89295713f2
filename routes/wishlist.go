package routes

import (
	"net/http"

	"signature-elite-server/middleware"
	"signature-elite-server/utils"

	"github.com/kataras/iris/v12"
)

func (h *Handlers) ListWishlist(ctx iris.Context) {
	list, err := h.Wishlist.ListForUser(ctx.Request().Context(), middleware.Claim(ctx), ctx.Params().Get("email"))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) AddToWishlist(ctx iris.Context) {
	var body struct {
		PropertyID uint `json:"propertyId"`
	}
	if !readJSON(ctx, &body) {
		return
	}

	entry, err := h.Wishlist.Add(ctx.Request().Context(), middleware.Claim(ctx), ctx.Params().Get("email"), body.PropertyID)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(entry)
}

func (h *Handlers) RemoveFromWishlist(ctx iris.Context) {
	propertyID, ok := pathID(ctx, "propertyId")
	if !ok {
		return
	}

	if err := h.Wishlist.Remove(ctx.Request().Context(), middleware.Claim(ctx), ctx.Params().Get("email"), propertyID); err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.StatusCode(http.StatusNoContent)
}
