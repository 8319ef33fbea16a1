package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/imaging"
	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/store"
)

// ItemsHandler handles item CRUD endpoints.
type ItemsHandler struct {
	DB     *sql.DB
	Images imaging.Processor
}

// itemView is an item with its texts resolved for the caller's language.
type itemView struct {
	model.Item
	Label            string `json:"label"`
	DescriptionLabel string `json:"description_label"`
}

func viewItem(item model.Item, lang string) itemView {
	return itemView{
		Item:             item,
		Label:            item.Name.Text(lang),
		DescriptionLabel: item.Description.Text(lang),
	}
}

// itemRequest is the JSON form of a create or update. Name and description
// accept an {"en", "nl"} object or a plain string.
type itemRequest struct {
	Name        model.Localized `json:"name"`
	Description model.Localized `json:"description"`
	Location    string          `json:"location"`
	Quantity    *int            `json:"quantity"`
	ImageRef    *string         `json:"image_ref"`
}

// itemForm is a parsed create or update request.
type itemForm struct {
	itemRequest
	image      *imaging.Image
	clearImage bool
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location != "" && !model.ValidLocation(location) {
		writeError(w, r, model.Invalid("location", "unknown location %q", location))
		return
	}

	items, err := store.ListItems(r.Context(), h.DB, location)
	if err != nil {
		writeError(w, r, err)
		return
	}

	lang := requestLang(r)
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, viewItem(item, lang))
	}
	jsonResponse(w, http.StatusOK, views)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	jsonResponse(w, http.StatusOK, viewItem(*item, requestLang(r)))
}

// Create handles POST /api/items. The body is either JSON or a multipart
// form with an optional image file.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseItemForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if form.Quantity == nil {
		writeError(w, r, model.Invalid("quantity", "required"))
		return
	}
	in := form.input(*form.Quantity)
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	var item *model.Item
	err = db.RunInTx(r.Context(), h.DB, func(tx db.DBTX) error {
		created, err := store.CreateItem(r.Context(), tx, in)
		if err != nil {
			return err
		}
		if form.image != nil {
			if err := store.SetItemImage(r.Context(), tx, created.ID, form.image.Data, form.image.MIME); err != nil {
				return err
			}
		}
		item, err = store.GetItem(r.Context(), tx, created.ID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item created", "user", GetClaims(r.Context()).Username, "item_id", item.ID,
		"name", item.Name.EN, "location", item.Location, "quantity", item.Quantity)
	jsonResponse(w, http.StatusCreated, viewItem(*item, requestLang(r)))
}

// Update handles PUT /api/items/{id}. A new image file replaces the stored
// one; an empty image_ref clears it.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	form, err := h.parseItemForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var item *model.Item
	err = db.RunInTx(r.Context(), h.DB, func(tx db.DBTX) error {
		current, err := store.GetItem(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return model.ErrNotFound
		}

		in := form.input(current.Quantity)
		if err := in.Validate(); err != nil {
			return err
		}
		if err := store.UpdateItem(r.Context(), tx, id, in); err != nil {
			return err
		}

		switch {
		case form.image != nil:
			err = store.SetItemImage(r.Context(), tx, id, form.image.Data, form.image.MIME)
		case form.clearImage:
			err = store.SetItemImage(r.Context(), tx, id, nil, "")
		}
		if err != nil {
			return err
		}

		item, err = store.GetItem(r.Context(), tx, id)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item updated", "user", GetClaims(r.Context()).Username, "item_id", id,
		"quantity", item.Quantity, "reserved", item.Reserved)
	jsonResponse(w, http.StatusOK, viewItem(*item, requestLang(r)))
}

// Delete handles DELETE /api/items/{id}. Reservations of the item are kept
// and drop out of the listings.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var orphaned int
	err = db.RunInTx(r.Context(), h.DB, func(tx db.DBTX) error {
		reservations, err := store.ListItemReservations(r.Context(), tx, id)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			if res.Status.Held() {
				orphaned++
			}
		}
		return store.DeleteItem(r.Context(), tx, id)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item deleted", "user", GetClaims(r.Context()).Username, "item_id", id, "orphaned_holds", orphaned)
	jsonResponse(w, http.StatusOK, deleteItemResponse{Message: "item deleted", OrphanedHolds: orphaned})
}

// deleteItemResponse reports how many held reservations lost their item.
type deleteItemResponse struct {
	Message       string `json:"message"`
	OrphanedHolds int    `json:"orphaned_holds"`
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := parseMultipart(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	img, err := h.formImage(r.MultipartForm)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if img == nil {
		writeError(w, r, model.Invalid("image", "file required"))
		return
	}

	if err := store.SetItemImage(r.Context(), h.DB, id, img.Data, img.MIME); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item image uploaded", "user", GetClaims(r.Context()).Username, "item_id", id,
		"bytes", len(img.Data), "width", img.Width, "height", img.Height)
	jsonResponse(w, http.StatusOK, map[string]string{"image_url": model.ItemImageRef(id, true)})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// GetHistory handles GET /api/items/{id}/history. History outlives the item.
func (h *ItemsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := store.ListEvents(r.Context(), h.DB, id, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.ReservationEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// input turns the form into an ItemInput, using defaultQty when the request
// left the quantity out.
func (f *itemForm) input(defaultQty int) model.ItemInput {
	qty := defaultQty
	if f.Quantity != nil {
		qty = *f.Quantity
	}
	return model.ItemInput{
		Name:        f.Name.Mirror(),
		Description: f.Description.Mirror(),
		Location:    strings.TrimSpace(f.Location),
		Quantity:    qty,
	}
}

func (h *ItemsHandler) parseItemForm(w http.ResponseWriter, r *http.Request) (*itemForm, error) {
	form := &itemForm{}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := decodeJSON(r, &form.itemRequest); err != nil {
			return nil, err
		}
		form.clearImage = form.ImageRef != nil && *form.ImageRef == ""
		return form, nil
	}

	if err := parseMultipart(w, r); err != nil {
		return nil, err
	}
	values := r.MultipartForm.Value

	form.Name = model.ParseLocalized(r.FormValue("name"))
	form.Description = model.ParseLocalized(r.FormValue("description"))
	form.Location = r.FormValue("location")
	if raw := strings.TrimSpace(r.FormValue("quantity")); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, model.Invalid("quantity", "must be a whole number")
		}
		form.Quantity = &qty
	}
	if refs, ok := values["image_ref"]; ok && len(refs) > 0 && refs[0] == "" {
		form.clearImage = true
	}

	img, err := h.formImage(r.MultipartForm)
	if err != nil {
		return nil, err
	}
	form.image = img
	return form, nil
}

// formImage processes the "image" file of a multipart form, if there is one.
func (h *ItemsHandler) formImage(form *multipart.Form) (*imaging.Image, error) {
	files := form.File["image"]
	if len(files) == 0 {
		return nil, nil
	}

	file, err := files[0].Open()
	if err != nil {
		return nil, model.Invalid("image", "cannot read upload")
	}
	defer file.Close()

	return h.Images.Process(file)
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	// Leave room for the other form fields.
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.Invalid("image", "larger than %d MB", imaging.MaxUploadBytes>>20)
		}
		return model.Invalid("", "invalid multipart form")
	}
	return nil
}
