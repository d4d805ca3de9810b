package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"github.com/avvvet/idcard-services/internal/cardsvc/service"
	errs "github.com/avvvet/idcard-services/internal/errors"
	"github.com/go-chi/chi"
)

// maxBodyBytes covers a photo and a signature plus the text fields.
const maxBodyBytes = 2*service.MaxImageBytes + 1<<20

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := atoiOrZero(q.Get("limit"))
	if limit == 0 {
		limit = atoiOrZero(q.Get("pageSize"))
	}

	page, err := h.cards.List(r.Context(), models.ListQuery{
		Page:   atoiOrZero(q.Get("page")),
		Limit:  limit,
		Search: q.Get("q"),
	})
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "cards", page)
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.cards.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "card", card)
}

func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	in, err := decodeCardInput(w, r)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	card, err := h.cards.Create(r.Context(), in)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusCreated, "Card created successfully", card)
}

func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeCardPatch(w, r)
	if err != nil {
		h.WriteError(w, err)
		return
	}

	card, err := h.cards.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "Card updated successfully", card)
}

func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := h.cards.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "Card deleted successfully", nil)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func decodeCardInput(w http.ResponseWriter, r *http.Request) (*models.CardInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	in := &models.CardInput{}

	if !isMultipart(r) {
		if err := json.NewDecoder(r.Body).Decode(in); err != nil {
			return nil, errs.Validation("body", "must be a JSON object or multipart form")
		}
		return in, nil
	}

	form, err := parseForm(r)
	if err != nil {
		return nil, err
	}
	get := func(name string) string {
		if v := form.Value[name]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	in.Name = get("name")
	in.FatherName = get("fathername")
	in.CNIC = get("cnic")
	in.DOB = get("dob")
	in.Address = get("address")
	in.Gender = get("gender")
	in.Religion = get("religion")
	in.BloodGroup = get("bloodGroup")
	in.MaritalStatus = get("maritalStatus")
	in.Profession = get("profession")
	in.BirthMark = get("birthMark")
	in.Province = get("province")
	in.City = get("city")
	in.Photo = get("photo")
	in.Signature = get("signature")

	if in.PhotoUpload, err = readUpload(form, "photo"); err != nil {
		return nil, err
	}
	if in.SignatureUpload, err = readUpload(form, "signature"); err != nil {
		return nil, err
	}
	return in, nil
}

func decodeCardPatch(w http.ResponseWriter, r *http.Request) (*models.CardPatch, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	p := &models.CardPatch{}

	if !isMultipart(r) {
		if err := json.NewDecoder(r.Body).Decode(p); err != nil && err != io.EOF {
			return nil, errs.Validation("body", "must be a JSON object or multipart form")
		}
		return p, nil
	}

	form, err := parseForm(r)
	if err != nil {
		return nil, err
	}
	get := func(name string) *string {
		if v, ok := form.Value[name]; ok && len(v) > 0 {
			s := v[0]
			return &s
		}
		return nil
	}
	p.Name = get("name")
	p.FatherName = get("fathername")
	p.CNIC = get("cnic")
	p.DOB = get("dob")
	p.Address = get("address")
	p.Gender = get("gender")
	p.Religion = get("religion")
	p.BloodGroup = get("bloodGroup")
	p.MaritalStatus = get("maritalStatus")
	p.Profession = get("profession")
	p.BirthMark = get("birthMark")
	p.Province = get("province")
	p.City = get("city")
	p.Photo = get("photo")
	p.Signature = get("signature")

	if p.PhotoUpload, err = readUpload(form, "photo"); err != nil {
		return nil, err
	}
	if p.SignatureUpload, err = readUpload(form, "signature"); err != nil {
		return nil, err
	}
	return p, nil
}

func parseForm(r *http.Request) (*multipart.Form, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		return nil, errs.Validation("body", "malformed or too large multipart form")
	}
	return r.MultipartForm, nil
}

func readUpload(form *multipart.Form, field string) (*models.Upload, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, nil
	}

	fh := files[0]
	if fh.Size > service.MaxImageBytes {
		return nil, errs.Validation(field, "must be at most 5MB")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errs.Validation(field, "could not be read")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, service.MaxImageBytes+1))
	if err != nil {
		return nil, errs.Validation(field, "could not be read")
	}
	return &models.Upload{ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}
