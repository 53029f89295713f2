package routes

import (
	"net/http"

	"signature-elite-server/middleware"
	"signature-elite-server/reviews"
	"signature-elite-server/utils"

	"github.com/kataras/iris/v12"
)

func (h *Handlers) AddReview(ctx iris.Context) {
	var req reviews.AddRequest
	if !readJSON(ctx, &req) {
		return
	}

	review, err := h.Reviews.Add(ctx.Request().Context(), middleware.Claim(ctx), req)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(review)
}

func (h *Handlers) ListPropertyReviews(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	list, err := h.Reviews.ListForProperty(ctx.Request().Context(), id)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) ListUserReviews(ctx iris.Context) {
	list, err := h.Reviews.ListByAuthor(ctx.Request().Context(), middleware.Claim(ctx), ctx.Params().Get("email"))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) ListAllReviews(ctx iris.Context) {
	list, err := h.Reviews.ListAll(ctx.Request().Context(), middleware.Claim(ctx))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) DeleteReview(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := h.Reviews.Delete(ctx.Request().Context(), middleware.Claim(ctx), id); err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.StatusCode(http.StatusNoContent)
}
