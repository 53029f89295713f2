package routes

import (
	"net/http"

	"signature-elite-server/middleware"
	"signature-elite-server/models"
	"signature-elite-server/registry"
	"signature-elite-server/utils"

	"github.com/kataras/iris/v12"
)

// ListProperties serves the public catalogue: verified listings filtered by
// ?search= on location and ordered by ?sort=asc|desc on minimum price. Other sort values are ignored.
func (h *Handlers) ListProperties(ctx iris.Context) {
	list, err := h.Registry.ListPublic(ctx.Request().Context(), registry.Filter{
		SearchText: ctx.URLParam("search"),
		Sort:       registry.ParseSortDirection(ctx.URLParam("sort")),
	})
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) ListAdvertisedProperties(ctx iris.Context) {
	list, err := h.Registry.ListAdvertised(ctx.Request().Context())
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) ListMyProperties(ctx iris.Context) {
	list, err := h.Registry.ListByAgent(ctx.Request().Context(), middleware.Claim(ctx))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) ListAllProperties(ctx iris.Context) {
	list, err := h.Registry.ListAll(ctx.Request().Context(), middleware.Claim(ctx))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) GetProperty(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	property, err := h.Registry.View(ctx.Request().Context(), middleware.Claim(ctx), id)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(property)
}

func (h *Handlers) CreateProperty(ctx iris.Context) {
	var in registry.PropertyInput
	if !readJSON(ctx, &in) {
		return
	}

	property, err := h.Registry.Create(ctx.Request().Context(), middleware.Claim(ctx), in)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(property)
}

func (h *Handlers) UpdateProperty(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var in registry.PropertyInput
	if !readJSON(ctx, &in) {
		return
	}

	property, err := h.Registry.Update(ctx.Request().Context(), middleware.Claim(ctx), id, in)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(property)
}

func (h *Handlers) DeleteProperty(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := h.Registry.Delete(ctx.Request().Context(), middleware.Claim(ctx), id); err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.StatusCode(http.StatusNoContent)
}

func (h *Handlers) SetVerification(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var body struct {
		Status models.VerificationStatus `json:"status"`
	}
	if !readJSON(ctx, &body) {
		return
	}

	property, err := h.Registry.SetVerification(ctx.Request().Context(), middleware.Claim(ctx), id, body.Status)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(property)
}

func (h *Handlers) AdvertiseProperty(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	property, err := h.Registry.SetAdvertised(ctx.Request().Context(), middleware.Claim(ctx), id)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(property)
}

// UploadPropertyImage expects a multipart form with the file under "image".
func (h *Handlers) UploadPropertyImage(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	file, header, err := ctx.FormFile("image")
	if err != nil {
		utils.CreateError(ctx, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	property, err := h.Media.UploadPropertyImage(ctx.Request().Context(), middleware.Claim(ctx), id, file, header.Filename)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(property)
}
